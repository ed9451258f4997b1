package service

import (
	"context"
	"errors"
	"time"

	"followpro/api/internal/model"
	"followpro/api/internal/store"
	"followpro/api/pkg/security"
	"followpro/api/pkg/validators"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Authenticator is everything the HTTP layer can ask of the auth core. Every
// returned error is an *AuthError.
type Authenticator interface {
	Register(ctx context.Context, r *RegisterRequest) (*RegisterResult, error)
	VerifyOTP(ctx context.Context, r *VerifyOTPRequest) error
	Login(ctx context.Context, r *LoginRequest) (*LoginResult, error)
	ForgotPassword(ctx context.Context, r *ForgotPasswordRequest) (*ForgotPasswordResult, error)
	ResetPassword(ctx context.Context, r *ResetPasswordRequest) error
	RefreshToken(ctx context.Context, r *RefreshTokenRequest) (*security.TokenPair, error)
	ResendOTP(ctx context.Context, r *ResendOTPRequest) error
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type RegisterResult struct {
	UserID string `json:"userId"`
}

type VerifyOTPRequest struct {
	UserID string        `json:"userId" validate:"required,max=64"`
	OTP    string        `json:"otp" validate:"required,numeric,max=12"`
	Type   model.Purpose `json:"type" validate:"required,oneof=VERIFICATION PASSWORD_RESET"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type LoginResult struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	User         model.PublicUser `json:"user"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type ForgotPasswordResult struct {
	UserID string `json:"userId"`
}

type ResetPasswordRequest struct {
	UserID      string `json:"userId" validate:"required,max=64"`
	OTP         string `json:"otp" validate:"required,numeric,max=12"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ResendOTPRequest struct {
	UserID string        `json:"userId" validate:"required,max=64"`
	Email  string        `json:"email" validate:"required,email,max=254"`
	Type   model.Purpose `json:"type" validate:"required,oneof=VERIFICATION PASSWORD_RESET"`
}

type AuthServiceOpts struct {
	Store    store.Store
	Hasher   security.PasswordHasher
	Tokens   *security.TokenIssuer
	OTP      *OTPEngine
	Notifier Notifier

	StoreTimeout time.Duration
	MailTimeout  time.Duration
	// UnverifiedTTL is how long a new account may stay unverified before the
	// cleanup job removes it. 0 keeps such accounts forever.
	UnverifiedTTL time.Duration
	Now           func() time.Time
}

type AuthService struct {
	store    store.Store
	hasher   security.PasswordHasher
	tokens   *security.TokenIssuer
	otp      *OTPEngine
	notifier Notifier

	storeTimeout  time.Duration
	mailTimeout   time.Duration
	unverifiedTTL time.Duration
	now           func() time.Time

	// Verified against when the email is unknown so both login failures cost
	// the same
	dummyHash string
}

var _ Authenticator = (*AuthService)(nil)

func NewAuthService(o *AuthServiceOpts) (*AuthService, error) {
	if o == nil {
		return nil, errors.New("no auth service options provided")
	}

	if o.Store == nil || o.Hasher == nil || o.Tokens == nil || o.OTP == nil || o.Notifier == nil {
		return nil, errors.New("auth service is missing a dependency")
	}

	dummy, err := o.Hasher.Hash("timing-equalizer")
	if err != nil {
		return nil, err
	}

	s := &AuthService{
		store:         o.Store,
		hasher:        o.Hasher,
		tokens:        o.Tokens,
		otp:           o.OTP,
		notifier:      o.Notifier,
		storeTimeout:  o.StoreTimeout,
		mailTimeout:   o.MailTimeout,
		unverifiedTTL: o.UnverifiedTTL,
		now:           o.Now,
		dummyHash:     dummy,
	}

	if s.storeTimeout <= 0 {
		s.storeTimeout = 5 * time.Second
	}
	if s.mailTimeout <= 0 {
		s.mailTimeout = 15 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s, nil
}

func (s *AuthService) Register(ctx context.Context, r *RegisterRequest) (*RegisterResult, error) {
	if err := validate(r); err != nil {
		return nil, err
	}

	email := model.NormalizeEmail(r.Email)

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	_, err := s.store.FindUserByEmail(sctx, email)
	cancel()
	if err == nil {
		return nil, ErrDuplicateEmail
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storeError(err)
	}

	hash, err := s.hash(r.Password)
	if err != nil {
		return nil, err
	}

	userID, err := gonanoid.Generate(idCharset, 16)
	if err != nil {
		return nil, newError(ErrInternal, err)
	}

	user := &model.User{
		ID:           userID,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    s.now().UTC(),
	}

	if s.unverifiedTTL > 0 {
		expiry := s.now().UTC().Add(s.unverifiedTTL)
		user.ExpiresAt = &expiry
	}

	var token *model.OTPToken

	sctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err = s.store.Transaction(sctx, func(tx store.Store) error {
		if err := tx.CreateUser(sctx, user); err != nil {
			return err
		}

		token, err = s.otp.Issue(sctx, tx, userID, model.PurposeVerification)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, storeError(err)
	}

	if err := s.deliver(ctx, user, token); err != nil {
		return nil, err
	}

	return &RegisterResult{UserID: userID}, nil
}

func (s *AuthService) VerifyOTP(ctx context.Context, r *VerifyOTPRequest) error {
	if err := validate(r); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := s.store.Transaction(sctx, func(tx store.Store) error {
		if err := s.otp.Consume(sctx, tx, r.UserID, r.OTP, r.Type); err != nil {
			return err
		}

		if r.Type != model.PurposeVerification {
			return nil
		}

		err := tx.UpdateUser(sctx, r.UserID, map[string]any{
			"verified":   true,
			"expires_at": nil,
		})
		if errors.Is(err, store.ErrNotFound) {
			return ErrOtpInvalid
		}
		return err
	})
	if err != nil {
		return storeError(err)
	}

	return nil
}

func (s *AuthService) Login(ctx context.Context, r *LoginRequest) (*LoginResult, error) {
	if err := validate(r); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	user, err := s.store.FindUserByEmail(sctx, r.Email)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Verify(r.Password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, storeError(err)
	}

	if !s.hasher.Verify(r.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.Verified {
		return nil, &AuthError{
			Kind:    KindEmailNotVerified,
			Message: ErrEmailNotVerified.Message,
			UserID:  user.ID,
		}
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, newError(ErrInternal, err)
	}

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user.Public(),
	}, nil
}

func (s *AuthService) ForgotPassword(ctx context.Context, r *ForgotPasswordRequest) (*ForgotPasswordResult, error) {
	if err := validate(r); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.store.FindUserByEmail(sctx, r.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError(err)
	}

	token, err := s.otp.Issue(sctx, s.store, user.ID, model.PurposePasswordReset)
	if err != nil {
		return nil, storeError(err)
	}

	if err := s.deliver(ctx, user, token); err != nil {
		return nil, err
	}

	return &ForgotPasswordResult{UserID: user.ID}, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, r *ResetPasswordRequest) error {
	if err := validate(r); err != nil {
		return err
	}

	// Hash before opening the transaction, it's the slow part
	hash, err := s.hash(r.NewPassword)
	if err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err = s.store.Transaction(sctx, func(tx store.Store) error {
		if err := s.otp.Consume(sctx, tx, r.UserID, r.OTP, model.PurposePasswordReset); err != nil {
			return err
		}

		err := tx.UpdateUser(sctx, r.UserID, map[string]any{"password_hash": hash})
		if errors.Is(err, store.ErrNotFound) {
			return ErrOtpInvalid
		}
		return err
	})
	if err != nil {
		return storeError(err)
	}

	return nil
}

func (s *AuthService) RefreshToken(_ context.Context, r *RefreshTokenRequest) (*security.TokenPair, error) {
	if err := validate(r); err != nil {
		return nil, err
	}

	pair, err := s.tokens.Refresh(r.RefreshToken)
	if err != nil {
		return nil, newError(ErrInvalidRefreshToken, err)
	}

	return pair, nil
}

func (s *AuthService) ResendOTP(ctx context.Context, r *ResendOTPRequest) error {
	if err := validate(r); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.store.FindUserByID(sctx, r.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return storeError(err)
	}

	if model.NormalizeEmail(r.Email) != user.Email {
		return validationError("Email does not match this account",
			FieldError{Field: "email", Message: "does not match this account"})
	}

	if r.Type == model.PurposeVerification && user.Verified {
		return validationError("This account is already verified")
	}

	token, err := s.otp.Issue(sctx, s.store, user.ID, r.Type)
	if err != nil {
		return storeError(err)
	}

	return s.deliver(ctx, user, token)
}

// deliver sends a freshly persisted code. A failure leaves the code in place
// and tells the caller which account to resend for.
func (s *AuthService) deliver(ctx context.Context, user *model.User, token *model.OTPToken) error {
	mctx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()

	if err := s.notifier.SendCode(mctx, user.Email, token.Code, token.Purpose); err != nil {
		zap.L().Error("Failed to deliver one-time code",
			zap.Error(err),
			zap.String("userID", user.ID),
			zap.String("purpose", string(token.Purpose)))

		return &AuthError{
			Kind:    KindDeliveryError,
			Message: ErrDelivery.Message,
			UserID:  user.ID,
			Err:     err,
		}
	}

	return nil
}

func (s *AuthService) hash(p string) (string, error) {
	h, err := s.hasher.Hash(p)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return "", validationError("Password is too long",
				FieldError{Field: "password", Message: "must be at most 72 bytes long"})
		}
		return "", newError(ErrInternal, err)
	}

	return h, nil
}

func validate(r any) error {
	if fields := validators.Struct(r); len(fields) > 0 {
		return validationError("Invalid request", fields...)
	}

	return nil
}

// storeError passes AuthErrors through and classifies everything else
func storeError(err error) error {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}

	if errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return newError(ErrStoreUnavailable, err)
	}

	return newError(ErrInternal, err)
}
