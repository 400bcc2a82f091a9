// Package profiles stores the assets that user profiles point to (avatars
// and the like) outside the user record.
package profiles

import "context"

// Store removes profile assets. Delete is idempotent: removing an asset that
// does not exist is not an error.
type Store interface {
	Delete(ctx context.Context, ref string) error
}

// Presigner is implemented by stores that can hand out direct upload URLs
// for new assets.
type Presigner interface {
	PresignUpload(ctx context.Context) (key string, url string, err error)
}
