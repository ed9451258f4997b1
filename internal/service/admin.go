package service

import (
	"context"
	"errors"
	"time"

	"followpro/api/config"
	"followpro/api/internal/model"
	"followpro/api/internal/store"
	"followpro/api/pkg/security"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// SeedAdmin creates a verified admin account from c. It reports false without
// touching anything when the email is already registered.
func SeedAdmin(ctx context.Context, s store.Store, h security.PasswordHasher, c config.Admin) (bool, error) {
	if c.Email == "" || c.Password == "" {
		return false, errors.New("admin.email and admin.password must be set")
	}

	if len(c.Password) < 6 {
		return false, errors.New("admin.password must be at least 6 characters long")
	}

	_, err := s.FindUserByEmail(ctx, c.Email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	hash, err := h.Hash(c.Password)
	if err != nil {
		return false, err
	}

	id, err := gonanoid.Generate(idCharset, 16)
	if err != nil {
		return false, err
	}

	err = s.CreateUser(ctx, &model.User{
		ID:               id,
		Email:            c.Email,
		PasswordHash:     hash,
		Role:             model.RoleAdmin,
		Verified:         true,
		ProfileCompleted: true,
		Name:             c.Name,
		Skills:           model.StringSlice{},
		CreatedAt:        time.Now().UTC(),
	})
	if errors.Is(err, store.ErrDuplicateEmail) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
