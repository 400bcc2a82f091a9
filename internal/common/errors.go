// Package common defines sentinel errors and the error kinds shared by the
// storage and service layers. Callers should use errors.Is / errors.As to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal    = errors.New("internal error")
	ErrorUnsupported = errors.New("unsupported operation")

	// Profile asset errors.
	ErrorInvalidProfile = errors.New("invalid profile reference")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// StorageError is returned by repositories for any persistence-client
// failure, including "not found" on update and delete. Its message is the
// message of the underlying cause.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// ServiceError is returned by the account service. Errors with the same
// message are considered equal by errors.Is, so the fixed-message values
// below can be used as sentinels even when a cause is attached.
type ServiceError struct {
	Msg string
	Err error
}

func (e *ServiceError) Error() string { return e.Msg }

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Msg == e.Msg
}

// WrapServiceError converts err into a ServiceError keeping its message.
// A ServiceError is returned unchanged.
func WrapServiceError(err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return &ServiceError{Msg: err.Error(), Err: err}
}

// WithCause returns a copy of the sentinel e carrying cause.
func (e *ServiceError) WithCause(cause error) *ServiceError {
	return &ServiceError{Msg: e.Msg, Err: cause}
}

var (
	ErrUserAlreadyExists = &ServiceError{Msg: "User already exists"}
	ErrUserNotFound      = &ServiceError{Msg: "User not found"}
	ErrLoginNotFound     = &ServiceError{Msg: "not found"}
	ErrInvalidPassword   = &ServiceError{Msg: "Invalid password"}
	ErrGeneratingToken   = &ServiceError{Msg: "Error generating token"}
	ErrCreatingUser      = &ServiceError{Msg: "Error creating user"}
	ErrUpdatingUser      = &ServiceError{Msg: "Error updating user"}
	ErrDeletingUser      = &ServiceError{Msg: "Error deleting user"}
	ErrRetrievingUsers   = &ServiceError{Msg: "Error retrieving users"}
)
