package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/auth"
	"github.com/dmitrijs2005/accounts/internal/server/config"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/profiles"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/users"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// memUsersRepo is an in-memory users.Repository. Errors set on the struct
// are returned by the matching operation.
type memUsersRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.User
	seq   int
	calls map[string]int

	findErr   error
	createErr error
	updateErr error
	deleteErr error
	nilPage   bool
	nilCreate bool
}

var _ users.Repository = (*memUsersRepo)(nil)

func newMemUsersRepo() *memUsersRepo {
	return &memUsersRepo{byID: map[string]*models.User{}, calls: map[string]int{}}
}

func clone(u *models.User) *models.User {
	c := *u
	return &c
}

func (r *memUsersRepo) FindPage(_ context.Context, skip, size int) (*models.UsersPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["FindPage"]++
	if r.findErr != nil {
		return nil, common.NewStorageError("find users page", r.findErr)
	}
	if r.nilPage {
		return nil, nil
	}

	all := make([]*models.User, 0, len(r.byID))
	for _, u := range r.byID {
		all = append(all, clone(u))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	page := &models.UsersPage{Users: []*models.User{}, Total: int64(len(all))}
	for i := skip; i < len(all) && len(page.Users) < size; i++ {
		page.Users = append(page.Users, all[i])
	}
	return page, nil
}

func (r *memUsersRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["FindByID"]++
	if r.findErr != nil {
		return nil, common.NewStorageError("find user by id", r.findErr)
	}
	if u, ok := r.byID[id]; ok {
		return clone(u), nil
	}
	return nil, nil
}

func (r *memUsersRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["FindByEmail"]++
	if r.findErr != nil {
		return nil, common.NewStorageError("find user by email", r.findErr)
	}
	for _, u := range r.byID {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (r *memUsersRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["Create"]++
	if r.createErr != nil {
		return nil, common.NewStorageError("create user", r.createErr)
	}
	if r.nilCreate {
		return nil, nil
	}
	u := clone(user)
	u.ID = uuid.NewString()
	r.seq++
	u.CreatedAt = time.Unix(int64(r.seq), 0)
	u.UpdatedAt = u.CreatedAt
	r.byID[u.ID] = u
	return clone(u), nil
}

func (r *memUsersRepo) Update(_ context.Context, id string, patch *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["Update"]++
	if r.updateErr != nil {
		return nil, common.NewStorageError("update user", r.updateErr)
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, common.NewStorageError("update user", common.ErrorNotFound)
	}
	if patch.Email != "" {
		u.Email = patch.Email
	}
	if patch.Password != "" {
		u.Password = patch.Password
	}
	if patch.Profile != "" {
		u.Profile = patch.Profile
	}
	if patch.Name != "" {
		u.Name = patch.Name
	}
	if len(patch.Metadata) > 0 {
		u.Metadata = patch.Metadata
	}
	return clone(u), nil
}

func (r *memUsersRepo) Delete(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["Delete"]++
	if r.deleteErr != nil {
		return nil, common.NewStorageError("delete user", r.deleteErr)
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, common.NewStorageError("delete user", common.ErrorNotFound)
	}
	delete(r.byID, id)
	return u, nil
}

type fakeRepoManager struct {
	users *memUsersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return m.users }

// recordingStore counts deletions per ref.
type recordingStore struct {
	deleted map[string]int
	err     error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{deleted: map[string]int{}}
}

func (s *recordingStore) Delete(_ context.Context, ref string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted[ref]++
	return nil
}

type presigningStore struct {
	*recordingStore
	key, url string
	err      error
}

func (s *presigningStore) PresignUpload(context.Context) (string, string, error) {
	return s.key, s.url, s.err
}

var _ profiles.Presigner = (*presigningStore)(nil)

func newUsersService(t *testing.T, repo *memUsersRepo, store profiles.Store) *UsersService {
	t.Helper()
	cfg := &config.Config{
		SecretKey:             "k",
		TokenValidityDuration: time.Hour,
	}
	return NewUsersService(nil, &fakeRepoManager{users: repo}, store, auth.NewBcryptHasher(bcrypt.MinCost), cfg, logging.Discard())
}
