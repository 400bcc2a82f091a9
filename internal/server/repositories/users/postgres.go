// Package users implements the users storage access layer on top of
// PostgreSQL through database/sql.
package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, password, profile, name, metadata, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindPage returns at most size users after skip, ordered by creation, plus
// the total count. When the handle can begin transactions both reads share
// one snapshot; otherwise, or if the transaction fails, they run as two
// independent reads and the total may disagree with the page.
func (r *PostgresRepository) FindPage(ctx context.Context, skip, size int) (*models.UsersPage, error) {
	if b, ok := dbx.CanBegin(r.db); ok {
		var page *models.UsersPage
		err := dbx.WithTx(ctx, b, dbx.ReadSnapshot, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			page, err = findPage(ctx, tx, skip, size)
			return err
		})
		if err == nil {
			return page, nil
		}
	}

	page, err := findPage(ctx, r.db, skip, size)
	if err != nil {
		return nil, common.NewStorageError("find users page", err)
	}
	return page, nil
}

// pageCapHint bounds the preallocation for a page; size comes from callers.
const pageCapHint = 100

func findPage(ctx context.Context, db dbx.DBTX, skip, size int) (*models.UsersPage, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 ORDER BY created_at, id
		 LIMIT $1 OFFSET $2
		 `

	rows, err := db.QueryContext(ctx, query, size, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &models.UsersPage{Users: make([]*models.User, 0, min(max(size, 0), pageCapHint))}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		page.Users = append(page.Users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&page.Total); err != nil {
		return nil, err
	}

	return page, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.findOne(ctx, "find user by id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "find user by email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) findOne(ctx context.Context, op, query string, arg any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, common.NewStorageError(op, err)
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, password, profile, name, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING ` + userColumns

	metadata := []byte(user.Metadata)
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	u, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.Email, user.Password, user.Profile, user.Name, metadata))
	if err != nil {
		return nil, common.NewStorageError("create user", err)
	}
	return u, nil
}

// Update applies a patch: empty strings and nil metadata keep the stored
// values.
func (r *PostgresRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if !isUUID(id) {
		return nil, common.NewStorageError("update user", common.ErrorNotFound)
	}

	query :=
		`UPDATE users SET
		   email = COALESCE(NULLIF($2, ''), email),
		   password = COALESCE(NULLIF($3, ''), password),
		   profile = COALESCE(NULLIF($4, ''), profile),
		   name = COALESCE(NULLIF($5, ''), name),
		   metadata = COALESCE($6::jsonb, metadata),
		   updated_at = now()
		 WHERE id = $1
		 RETURNING ` + userColumns

	var metadata any
	if len(user.Metadata) > 0 {
		metadata = []byte(user.Metadata)
	}

	u, err := scanUser(r.db.QueryRowContext(ctx, query,
		id, user.Email, user.Password, user.Profile, user.Name, metadata))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NewStorageError("update user", common.ErrorNotFound)
		}
		return nil, common.NewStorageError("update user", err)
	}
	return u, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (*models.User, error) {
	if !isUUID(id) {
		return nil, common.NewStorageError("delete user", common.ErrorNotFound)
	}

	u, err := scanUser(r.db.QueryRowContext(ctx, `DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NewStorageError("delete user", common.ErrorNotFound)
		}
		return nil, common.NewStorageError("delete user", err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var metadata []byte
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Profile, &u.Name, &metadata, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		u.Metadata = metadata
	}
	return u, nil
}

// ids are UUIDs; anything else cannot match a row.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
