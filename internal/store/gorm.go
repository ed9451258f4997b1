package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"followpro/api/internal/model"

	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User

	err := s.db.WithContext(ctx).
		Where("email = ?", model.NormalizeEmail(email)).
		First(&user).
		Error
	if err != nil {
		return nil, translate(err)
	}

	return &user, nil
}

func (s *GormStore) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User

	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).
		Error
	if err != nil {
		return nil, translate(err)
	}

	return &user, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User

	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Find(&users).
		Error
	if err != nil {
		return nil, translate(err)
	}

	return users, nil
}

func (s *GormStore) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = model.NormalizeEmail(u.Email)

	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return translate(err)
	}

	return nil
}

func (s *GormStore) UpdateUser(ctx context.Context, id string, fields map[string]any) error {
	r := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(fields)
	if r.Error != nil {
		return translate(r.Error)
	}

	if r.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *GormStore) CreateOtp(ctx context.Context, t *model.OTPToken) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return translate(err)
	}

	return nil
}

func (s *GormStore) FindOtp(ctx context.Context, userID, code string, purpose model.Purpose, now int64) (*model.OTPToken, error) {
	var token model.OTPToken

	err := s.db.WithContext(ctx).
		Where("user_id = ? AND code = ? AND purpose = ? AND expires_at > ?", userID, code, purpose, now).
		First(&token).
		Error
	if err != nil {
		return nil, translate(err)
	}

	return &token, nil
}

func (s *GormStore) DeleteOtp(ctx context.Context, id uint) (bool, error) {
	r := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.OTPToken{})
	if r.Error != nil {
		return false, translate(r.Error)
	}

	return r.RowsAffected == 1, nil
}

func (s *GormStore) DeleteOtpsByUserAndPurpose(ctx context.Context, userID string, purpose model.Purpose) (int64, error) {
	r := s.db.WithContext(ctx).
		Where("user_id = ? AND purpose = ?", userID, purpose).
		Delete(&model.OTPToken{})
	if r.Error != nil {
		return 0, translate(r.Error)
	}

	return r.RowsAffected, nil
}

func (s *GormStore) DeleteExpiredOtps(ctx context.Context, now int64) (int64, error) {
	r := s.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&model.OTPToken{})
	if r.Error != nil {
		return 0, translate(r.Error)
	}

	return r.RowsAffected, nil
}

func (s *GormStore) DeleteUnverifiedBefore(ctx context.Context, t time.Time) (int64, error) {
	var deleted int64

	err := s.Transaction(ctx, func(tx Store) error {
		db := tx.(*GormStore).db

		expired := db.Model(&model.User{}).
			Select("id").
			Where("verified = ? AND expires_at IS NOT NULL AND expires_at < ?", false, t)

		if err := db.Where("user_id IN (?)", expired).Delete(&model.OTPToken{}).Error; err != nil {
			return translate(err)
		}

		r := db.Where("verified = ? AND expires_at IS NOT NULL AND expires_at < ?", false, t).
			Delete(&model.User{})
		if r.Error != nil {
			return translate(r.Error)
		}

		deleted = r.RowsAffected
		return nil
	})

	return deleted, err
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return translate(err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return translate(err)
	}

	return nil
}

// translate maps driver errors onto the package sentinels
func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateEmail
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrUnavailable):
		return err
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
