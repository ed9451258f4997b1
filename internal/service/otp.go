package service

import (
	"context"
	"errors"
	"time"

	"followpro/api/internal/model"
	"followpro/api/internal/store"
	"followpro/api/pkg/security"
)

// OTPEngine issues and consumes single-use numeric codes
type OTPEngine struct {
	ttl    time.Duration
	length int
	now    func() time.Time
}

func NewOTPEngine(ttl time.Duration, length int, now func() time.Time) *OTPEngine {
	if now == nil {
		now = time.Now
	}

	return &OTPEngine{ttl: ttl, length: length, now: now}
}

// Issue replaces every outstanding code of userID for purpose with a new one
func (o *OTPEngine) Issue(ctx context.Context, s store.Store, userID string, purpose model.Purpose) (*model.OTPToken, error) {
	code, err := security.GenerateOTP(o.length)
	if err != nil {
		return nil, err
	}

	now := o.now()
	token := &model.OTPToken{
		UserID:    userID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(o.ttl).UnixMilli(),
		CreatedAt: now.UnixMilli(),
	}

	err = s.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.DeleteOtpsByUserAndPurpose(ctx, userID, purpose); err != nil {
			return err
		}

		return tx.CreateOtp(ctx, token)
	})
	if err != nil {
		return nil, err
	}

	return token, nil
}

// Consume deletes a matching unexpired code. Of many concurrent callers with
// the same code only one gets nil, the rest get ErrOtpInvalid. Callers that
// must pair the consumption with another write pass a transactional store.
func (o *OTPEngine) Consume(ctx context.Context, s store.Store, userID, code string, purpose model.Purpose) error {
	token, err := s.FindOtp(ctx, userID, code, purpose, o.now().UnixMilli())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOtpInvalid
		}
		return err
	}

	deleted, err := s.DeleteOtp(ctx, token.ID)
	if err != nil {
		return err
	}

	if !deleted {
		return ErrOtpInvalid
	}

	return nil
}
