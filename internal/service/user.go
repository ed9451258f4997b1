package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"followpro/api/internal/model"
	"followpro/api/internal/store"
	"followpro/api/pkg/security"
)

type UpdateProfileRequest struct {
	Name   string   `json:"name" validate:"required,max=100"`
	Skills []string `json:"skills" validate:"max=50,dive,required,max=50,nocomma"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=72"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72,nefield=CurrentPassword"`
}

// UserService serves the signed in user's own account and the admin listing
type UserService struct {
	store        store.Store
	hasher       security.PasswordHasher
	storeTimeout time.Duration
}

func NewUserService(s store.Store, h security.PasswordHasher, storeTimeout time.Duration) *UserService {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}

	return &UserService{store: s, hasher: h, storeTimeout: storeTimeout}
}

func (u *UserService) Profile(ctx context.Context, userID string) (*model.PublicUser, error) {
	user, err := u.find(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := user.Public()
	return &p, nil
}

// Role resolves the current role of userID from storage
func (u *UserService) Role(ctx context.Context, userID string) (model.Role, error) {
	user, err := u.find(ctx, userID)
	if err != nil {
		return "", err
	}

	return user.Role, nil
}

func (u *UserService) UpdateProfile(ctx context.Context, userID string, r *UpdateProfileRequest) (*model.PublicUser, error) {
	r.Name = strings.TrimSpace(r.Name)
	for i := range r.Skills {
		r.Skills[i] = strings.TrimSpace(r.Skills[i])
	}

	if err := validate(r); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	err := u.store.UpdateUser(sctx, userID, map[string]any{
		"name":              r.Name,
		"skills":            model.StringSlice(r.Skills),
		"profile_completed": true,
	})
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError(err)
	}

	return u.Profile(ctx, userID)
}

func (u *UserService) ChangePassword(ctx context.Context, userID string, r *ChangePasswordRequest) error {
	if err := validate(r); err != nil {
		return err
	}

	user, err := u.find(ctx, userID)
	if err != nil {
		return err
	}

	if !u.hasher.Verify(r.CurrentPassword, user.PasswordHash) {
		return &AuthError{Kind: KindInvalidCredentials, Message: "Current password is incorrect"}
	}

	hash, err := u.hasher.Hash(r.NewPassword)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return validationError("Password is too long",
				FieldError{Field: "newPassword", Message: "must be at most 72 bytes long"})
		}
		return newError(ErrInternal, err)
	}

	sctx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	defer cancel()

	if err := u.store.UpdateUser(sctx, userID, map[string]any{"password_hash": hash}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return storeError(err)
	}

	return nil
}

func (u *UserService) ListUsers(ctx context.Context) ([]model.PublicUser, error) {
	sctx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	defer cancel()

	users, err := u.store.ListUsers(sctx)
	if err != nil {
		return nil, storeError(err)
	}

	out := make([]model.PublicUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}

	return out, nil
}

func (u *UserService) Ping(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	defer cancel()

	if err := u.store.Ping(sctx); err != nil {
		return storeError(err)
	}

	return nil
}

func (u *UserService) find(ctx context.Context, userID string) (*model.User, error) {
	sctx, cancel := context.WithTimeout(ctx, u.storeTimeout)
	defer cancel()

	user, err := u.store.FindUserByID(sctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError(err)
	}

	return user, nil
}
