// Package console implements the operator console: a line-oriented
// read-eval-print loop over the account service.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/accounts/internal/netx"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"golang.org/x/term"
)

// Test seams for golang.org/x/term and the presigned upload.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
	putPresigned = netx.PutPresigned
)

var errUsage = errors.New("usage")

// AccountService is the command surface the console drives.
// *services.UsersService satisfies it.
type AccountService interface {
	ListUsers(ctx context.Context, q models.ListQuery) (*models.UsersPage, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, data *models.User) (*models.User, error)
	UpdateUser(ctx context.Context, id string, data *models.User) (*models.User, error)
	DeleteUser(ctx context.Context, id string) (*models.User, error)
	Register(ctx context.Context, u *models.User) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	UpdateProfile(ctx context.Context, id string, data *models.User) (*models.User, error)
	ProfileUploadURL(ctx context.Context, id string) (string, string, error)
	DiscardProfileAsset(ctx context.Context, ref string) error
	Authenticate(token string) (string, error)
}

// Console reads commands from in and writes results to out.
type Console struct {
	svc AccountService
	in  *bufio.Reader
	out io.Writer

	// stdin is consulted for no-echo password reads; nil unless in is a
	// terminal-backed *os.File.
	stdin *os.File
}

// New returns a Console over svc. When in is an *os.File attached to a
// terminal, passwords are read without echo.
func New(svc AccountService, in io.Reader, out io.Writer) *Console {
	c := &Console{svc: svc, in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && isTerminal(int(f.Fd())) {
		c.stdin = f
	}
	return c
}

const helpText = `Available commands:
  list [skip] [size]                 list users
  get <id>                           show a user
  create <email> [name]              create a user record (no password)
  update <id> field=value...         patch email, password, name, profile or metadata
  delete <id>                        delete a user
  register <email> [name]            sign up with a password
  login <email>                      log in and print an access token
  profile <id> <ref>                 replace the profile asset reference
  upload <id> [file]                 get a presigned upload URL, or upload file as the new profile
  whoami <token>                     show the user id carried by a token
  exit | quit                        leave the console`

// Run serves commands until EOF, exit/quit, or ctx cancellation. Command
// failures are reported on out and do not stop the loop.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(c.out, "accounts> ")
		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out)
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			fmt.Fprintln(c.out, "Bye!")
			return nil
		}

		if err := c.dispatch(ctx, args[0], args[1:]); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

func (c *Console) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(c.out, helpText)
		return nil
	case "list", "l":
		return c.list(ctx, args)
	case "get":
		return c.get(ctx, args)
	case "create":
		return c.create(ctx, args)
	case "update":
		return c.update(ctx, args)
	case "delete":
		return c.delete(ctx, args)
	case "register":
		return c.register(ctx, args)
	case "login":
		return c.login(ctx, args)
	case "profile":
		return c.profile(ctx, args)
	case "upload":
		return c.upload(ctx, args)
	case "whoami":
		return c.whoami(args)
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n", cmd)
		return nil
	}
}

func (c *Console) list(ctx context.Context, args []string) error {
	var q models.ListQuery
	if len(args) > 0 {
		q.Skip = args[0]
	}
	if len(args) > 1 {
		q.Size = args[1]
	}
	page, err := c.svc.ListUsers(ctx, q)
	if err != nil {
		return err
	}
	return c.printJSON(page)
}

func (c *Console) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: get <id>", errUsage)
	}
	u, err := c.svc.GetUserByID(ctx, args[0])
	if err != nil {
		return err
	}
	if u == nil {
		fmt.Fprintln(c.out, "no such user")
		return nil
	}
	return c.printJSON(u)
}

func (c *Console) create(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: create <email> [name]", errUsage)
	}
	u, err := c.svc.CreateUser(ctx, &models.User{Email: args[0], Name: strings.Join(args[1:], " ")})
	if err != nil {
		return err
	}
	return c.printJSON(u)
}

func (c *Console) update(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: update <id> field=value...", errUsage)
	}
	patch, err := parsePatch(args[1:])
	if err != nil {
		return err
	}
	u, err := c.svc.UpdateUser(ctx, args[0], patch)
	if err != nil {
		return err
	}
	return c.printJSON(u)
}

// parsePatch turns field=value pairs into a partial user.
func parsePatch(pairs []string) (*models.User, error) {
	patch := &models.User{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%w: expected field=value, got %q", errUsage, p)
		}
		switch name {
		case "email":
			patch.Email = value
		case "password":
			patch.Password = value
		case "name":
			patch.Name = value
		case "profile":
			patch.Profile = value
		case "metadata":
			if !json.Valid([]byte(value)) {
				return nil, fmt.Errorf("metadata is not valid JSON: %q", value)
			}
			patch.Metadata = json.RawMessage(value)
		default:
			return nil, fmt.Errorf("unknown field %q", name)
		}
	}
	return patch, nil
}

func (c *Console) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: delete <id>", errUsage)
	}
	u, err := c.svc.DeleteUser(ctx, args[0])
	if err != nil {
		return err
	}
	return c.printJSON(u)
}

func (c *Console) register(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: register <email> [name]", errUsage)
	}
	password, err := c.password()
	if err != nil {
		return err
	}
	u, err := c.svc.Register(ctx, &models.User{
		Email:    args[0],
		Name:     strings.Join(args[1:], " "),
		Password: password,
	})
	if err != nil {
		return err
	}
	return c.printJSON(u)
}

func (c *Console) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: login <email>", errUsage)
	}
	password, err := c.password()
	if err != nil {
		return err
	}
	token, err := c.svc.Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, token)
	return nil
}

func (c *Console) profile(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: profile <id> <ref>", errUsage)
	}
	u, err := c.svc.UpdateProfile(ctx, args[0], &models.User{Profile: args[1]})
	if err != nil {
		return err
	}
	return c.printJSON(u)
}

func (c *Console) upload(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: upload <id> [file]", errUsage)
	}
	key, url, err := c.svc.ProfileUploadURL(ctx, args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		fmt.Fprintf(c.out, "key: %s\nurl: %s\n", key, url)
		return nil
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}
	if err := putPresigned(ctx, nil, url, data); err != nil {
		return err
	}
	u, err := c.svc.UpdateProfile(ctx, args[0], &models.User{Profile: key})
	if err != nil {
		if derr := c.svc.DiscardProfileAsset(ctx, key); derr != nil {
			fmt.Fprintf(c.out, "warning: uploaded object %s left in storage: %v\n", key, derr)
		}
		return err
	}
	return c.printJSON(u)
}

func (c *Console) whoami(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: whoami <token>", errUsage)
	}
	id, err := c.svc.Authenticate(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, id)
	return nil
}

// password prompts for a password. On a terminal it is read without echo,
// otherwise the next input line is used.
func (c *Console) password() (string, error) {
	fmt.Fprint(c.out, "Enter password: ")
	if c.stdin != nil {
		pw, err := readPassword(int(c.stdin.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}
	pw, err := c.readLine()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}

// readLine returns the next line without its terminator. A final line
// without a newline is returned as is.
func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Console) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	fmt.Fprintln(c.out, string(b))
	return nil
}
