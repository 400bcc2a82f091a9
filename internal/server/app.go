// Package server wires the accounts application together: configuration,
// the PostgreSQL connection and migrations, the profile asset store, the
// password hasher, the account service and the operator console.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/accounts/internal/filex"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/auth"
	"github.com/dmitrijs2005/accounts/internal/server/config"
	"github.com/dmitrijs2005/accounts/internal/server/console"
	"github.com/dmitrijs2005/accounts/internal/server/profiles"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accounts/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	userService *services.UsersService
	in          io.Reader
	out         io.Writer
}

// Seams for tests.
var (
	openDB         = repomanager.Open
	newRepoManager = repomanager.NewPostgresRepositoryManager
	newS3Store     = profiles.NewS3Store
)

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	hasher, err := auth.NewHasher(c.PasswordHasher, c.BcryptCost)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store, err := newProfileStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("profile store init error: %w", err)
	}

	us := services.NewUsersService(db, rm, store, hasher, c, logger)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		userService: us,
		in:          os.Stdin,
		out:         os.Stdout,
	}, nil
}

func newProfileStore(ctx context.Context, c *config.Config) (profiles.Store, error) {
	switch c.ProfileStorage {
	case config.ProfileStorageFS:
		root, err := filex.EnsureDir(c.PublicDir)
		if err != nil {
			return nil, err
		}
		return profiles.NewFSStore(root), nil
	case config.ProfileStorageS3:
		return newS3Store(ctx, profiles.S3Config{
			User:     c.S3RootUser,
			Password: c.S3RootPassword,
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown profile storage %q", c.ProfileStorage)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startConsole(ctx context.Context, cancelFunc context.CancelFunc) {
	defer cancelFunc()

	c := console.New(app.userService, app.in, app.out)
	if err := c.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}

// Run serves the console until it exits or a termination signal arrives,
// then closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	// The console may stay blocked on input after a signal, so Run waits
	// on the context rather than on the console goroutine.
	go app.startConsole(ctx, cancelFunc)

	<-ctx.Done()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
