package server

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/server/config"
	"github.com/dmitrijs2005/accounts/internal/server/profiles"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepoManager struct {
	migrateErr error
	migrated   bool
}

func (m *stubRepoManager) RunMigrations(context.Context, *sql.DB) error {
	m.migrated = true
	return m.migrateErr
}

func (m *stubRepoManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.PublicDir = filepath.Join(t.TempDir(), "public")
	c.LogLevel = "error"
	return c
}

func withSeams(t *testing.T, db *sql.DB, openErr error, rm *stubRepoManager) {
	t.Helper()
	origOpen, origRM := openDB, newRepoManager
	t.Cleanup(func() { openDB, newRepoManager = origOpen, origRM })

	openDB = func(context.Context, string) (*sql.DB, error) { return db, openErr }
	newRepoManager = func() repomanager.RepositoryManager { return rm }
}

func TestNewApp_OpenError(t *testing.T) {
	withSeams(t, nil, errors.New("refused"), &stubRepoManager{})

	_, err := NewApp(context.Background(), testConfig(t))
	assert.ErrorContains(t, err, "db init error: refused")
}

func TestNewApp_MigrationErrorClosesDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	rm := &stubRepoManager{migrateErr: errors.New("bad sql")}
	withSeams(t, db, nil, rm)

	_, err = NewApp(context.Background(), testConfig(t))
	assert.ErrorContains(t, err, "db migration error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_UnknownHasher(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	withSeams(t, db, nil, &stubRepoManager{})

	c := testConfig(t)
	c.PasswordHasher = "md5"
	_, err = NewApp(context.Background(), c)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_RunUntilExit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	rm := &stubRepoManager{}
	withSeams(t, db, nil, rm)

	c := testConfig(t)
	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, rm.migrated)
	assert.DirExists(t, c.PublicDir)

	var out bytes.Buffer
	app.in = strings.NewReader("help\nexit\n")
	app.out = &out

	mock.ExpectClose()
	app.Run(context.Background())

	assert.Contains(t, out.String(), "Available commands")
	assert.Contains(t, out.String(), "Bye!")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewProfileStore(t *testing.T) {
	c := testConfig(t)

	store, err := newProfileStore(context.Background(), c)
	require.NoError(t, err)
	assert.IsType(t, &profiles.FSStore{}, store)

	origS3 := newS3Store
	t.Cleanup(func() { newS3Store = origS3 })
	var got profiles.S3Config
	newS3Store = func(_ context.Context, sc profiles.S3Config) (*profiles.S3Store, error) {
		got = sc
		return &profiles.S3Store{}, nil
	}

	c.ProfileStorage = config.ProfileStorageS3
	store, err = newProfileStore(context.Background(), c)
	require.NoError(t, err)
	assert.IsType(t, &profiles.S3Store{}, store)
	assert.Equal(t, c.S3Bucket, got.Bucket)
	assert.Equal(t, c.S3BaseEndpoint, got.Endpoint)

	c.ProfileStorage = "ftp"
	_, err = newProfileStore(context.Background(), c)
	assert.ErrorContains(t, err, `unknown profile storage "ftp"`)
}
