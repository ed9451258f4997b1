// Package store is the persistence boundary for users and one-time codes
package store

import (
	"context"
	"errors"
	"time"

	"followpro/api/internal/model"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrUnavailable    = errors.New("store unavailable")
)

// Store persists User and OTPToken records. Implementations enforce email
// uniqueness and report backend failures wrapped in ErrUnavailable.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	// UpdateUser applies column updates to one user. ErrNotFound if no row matched.
	UpdateUser(ctx context.Context, id string, fields map[string]any) error

	CreateOtp(ctx context.Context, t *model.OTPToken) error
	// FindOtp returns a token matching all of userID, code and purpose that
	// is still valid at now (unix ms).
	FindOtp(ctx context.Context, userID, code string, purpose model.Purpose, now int64) (*model.OTPToken, error)
	// DeleteOtp reports whether this call removed the row. Only one of many
	// concurrent callers can observe true for the same id.
	DeleteOtp(ctx context.Context, id uint) (bool, error)
	DeleteOtpsByUserAndPurpose(ctx context.Context, userID string, purpose model.Purpose) (int64, error)

	DeleteExpiredOtps(ctx context.Context, now int64) (int64, error)
	DeleteUnverifiedBefore(ctx context.Context, t time.Time) (int64, error)

	// Transaction runs fn against a Store bound to a single transaction.
	// Any error returned by fn rolls it back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
