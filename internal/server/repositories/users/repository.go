package users

import (
	"context"

	"github.com/dmitrijs2005/accounts/internal/server/models"
)

// Repository is the storage access layer for users. Lookups return nil, nil
// when the user is absent; every other failure is a *common.StorageError.
type Repository interface {
	FindPage(ctx context.Context, skip, size int) (*models.UsersPage, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, id string, user *models.User) (*models.User, error)
	Delete(ctx context.Context, id string) (*models.User, error)
}
