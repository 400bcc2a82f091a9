// Package services contains server-side business logic. This file implements
// UsersService: listing and CRUD over the users repository, registration and
// login with password hashing and JWT issuance, and profile replacement.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/auth"
	"github.com/dmitrijs2005/accounts/internal/server/config"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/profiles"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/users"
)

// DefaultPageSize is used when a listing asks for no usable page size.
const DefaultPageSize = 10

// UsersService provides account operations on top of the users repository.
// Every error it returns is a *common.ServiceError except the token errors
// of Authenticate and common.ErrorUnsupported from ProfileUploadURL.
type UsersService struct {
	db                    dbx.DBTX
	repomanager           repomanager.RepositoryManager
	profiles              profiles.Store
	hasher                auth.Hasher
	jwtSecret             []byte
	tokenValidityDuration time.Duration
	logger                logging.Logger

	generateToken func(userID, email string) (string, error)
}

// NewUsersService constructs a UsersService using repositories, the profile
// asset store, the password hasher and server config.
func NewUsersService(db dbx.DBTX, m repomanager.RepositoryManager, store profiles.Store, hasher auth.Hasher,
	cfg *config.Config, logger logging.Logger) *UsersService {
	s := &UsersService{
		db:                    db,
		repomanager:           m,
		profiles:              store,
		hasher:                hasher,
		jwtSecret:             []byte(cfg.SecretKey),
		tokenValidityDuration: cfg.TokenValidityDuration,
		logger:                logger.With("module", "users_service"),
	}
	s.generateToken = s.generateAccessToken
	return s
}

func (s *UsersService) users() users.Repository {
	return s.repomanager.Users(s.db)
}

// ListUsers returns one page of users and the total count. Missing or
// unusable skip means 0; missing or unusable size means DefaultPageSize.
func (s *UsersService) ListUsers(ctx context.Context, q models.ListQuery) (*models.UsersPage, error) {
	skip, size := pageBounds(q)

	page, err := s.users().FindPage(ctx, skip, size)
	if err != nil {
		return nil, common.WrapServiceError(err)
	}
	if page == nil {
		return nil, common.ErrRetrievingUsers
	}
	return page, nil
}

func pageBounds(q models.ListQuery) (skip, size int) {
	skip, err := strconv.Atoi(strings.TrimSpace(q.Skip))
	if err != nil || skip < 0 {
		skip = 0
	}
	size, err = strconv.Atoi(strings.TrimSpace(q.Size))
	if err != nil || size <= 0 {
		size = DefaultPageSize
	}
	return skip, size
}

// GetUserByID returns nil, nil when the user does not exist.
func (s *UsersService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users().FindByID(ctx, id)
	if err != nil {
		return nil, common.WrapServiceError(err)
	}
	return u, nil
}

// CreateUser stores data as given. The password is NOT hashed; use Register
// for credentialed signup.
func (s *UsersService) CreateUser(ctx context.Context, data *models.User) (*models.User, error) {
	u, err := s.users().Create(ctx, data)
	if err != nil {
		return nil, common.WrapServiceError(err)
	}
	return u, nil
}

// UpdateUser patches the user. A non-empty password is hashed first.
func (s *UsersService) UpdateUser(ctx context.Context, id string, data *models.User) (*models.User, error) {
	return s.update(ctx, id, data)
}

// update applies the patch; a password in it is always stored hashed.
func (s *UsersService) update(ctx context.Context, id string, data *models.User) (*models.User, error) {
	patch := *data
	if patch.Password != "" {
		hash, err := s.hasher.Hash(patch.Password)
		if err != nil {
			return nil, common.WrapServiceError(fmt.Errorf("hash password: %w", err))
		}
		patch.Password = hash
	}

	u, err := s.users().Update(ctx, id, &patch)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUpdatingUser.WithCause(err)
		}
		return nil, common.WrapServiceError(err)
	}
	if u == nil {
		return nil, common.ErrUpdatingUser
	}
	return u, nil
}

// DeleteUser removes the user record. The profile asset is left in place.
func (s *UsersService) DeleteUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users().Delete(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrDeletingUser.WithCause(err)
		}
		return nil, common.WrapServiceError(err)
	}
	if u == nil {
		return nil, common.ErrDeletingUser
	}
	return u, nil
}

// Register creates a user with a hashed password. The email check and the
// insert are separate statements; concurrent registrations for one email are
// stopped only by the unique index, surfacing as a storage message.
func (s *UsersService) Register(ctx context.Context, u *models.User) (*models.User, error) {
	repo := s.users()

	existing, err := repo.FindByEmail(ctx, u.Email)
	if err != nil {
		return nil, common.WrapServiceError(err)
	}
	if existing != nil {
		return nil, common.ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(u.Password)
	if err != nil {
		return nil, common.WrapServiceError(fmt.Errorf("hash password: %w", err))
	}

	record := *u
	record.Password = hash

	created, err := repo.Create(ctx, &record)
	if err != nil {
		return nil, common.WrapServiceError(err)
	}
	if created == nil {
		return nil, common.ErrCreatingUser
	}

	s.logger.Info(ctx, "user registered", "user_id", created.ID)
	return created, nil
}

// Login verifies the credentials and returns a signed access token.
func (s *UsersService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users().FindByEmail(ctx, email)
	if err != nil {
		return "", common.WrapServiceError(err)
	}
	if user == nil {
		return "", common.ErrLoginNotFound
	}

	if err := s.hasher.Compare(password, user.Password); err != nil {
		s.logger.Warn(ctx, "login rejected", "user_id", user.ID)
		return "", common.ErrInvalidPassword.WithCause(err)
	}

	token, err := s.generateToken(user.ID, user.Email)
	if err != nil || token == "" {
		return "", common.ErrGeneratingToken.WithCause(err)
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return token, nil
}

// UpdateProfile patches the user and, when a new profile replaces an
// existing one, removes the old asset first. A failed removal aborts the
// update.
func (s *UsersService) UpdateProfile(ctx context.Context, id string, data *models.User) (*models.User, error) {
	user, err := s.users().FindByID(ctx, id)
	if err != nil {
		return nil, common.WrapServiceError(err)
	}
	if user == nil {
		return nil, common.ErrUserNotFound
	}

	if data.Profile != "" && user.Profile != "" {
		if err := s.profiles.Delete(ctx, user.Profile); err != nil {
			return nil, common.WrapServiceError(err)
		}
		s.logger.Info(ctx, "profile asset removed", "user_id", user.ID, "profile", user.Profile)
	}

	return s.update(ctx, id, data)
}

// ProfileUploadURL returns a fresh asset key and a presigned upload URL for
// an existing user, when the profile store supports presigning.
func (s *UsersService) ProfileUploadURL(ctx context.Context, id string) (string, string, error) {
	presigner, ok := s.profiles.(profiles.Presigner)
	if !ok {
		return "", "", common.ErrorUnsupported
	}

	user, err := s.users().FindByID(ctx, id)
	if err != nil {
		return "", "", common.WrapServiceError(err)
	}
	if user == nil {
		return "", "", common.ErrUserNotFound
	}

	key, url, err := presigner.PresignUpload(ctx)
	if err != nil {
		return "", "", common.WrapServiceError(err)
	}
	return key, url, nil
}

// DiscardProfileAsset removes an asset that no user references, such as an
// upload whose profile update failed. Removing a missing asset is not an error.
func (s *UsersService) DiscardProfileAsset(ctx context.Context, ref string) error {
	if err := s.profiles.Delete(ctx, ref); err != nil {
		return common.WrapServiceError(err)
	}
	return nil
}

// Authenticate returns the user id carried by a token issued by Login.
func (s *UsersService) Authenticate(token string) (string, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}

func (s *UsersService) generateAccessToken(userID, email string) (string, error) {
	return auth.GenerateToken(userID, email, s.jwtSecret, s.tokenValidityDuration)
}
