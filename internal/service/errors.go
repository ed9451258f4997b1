package service

import (
	"fmt"

	"followpro/api/pkg/validators"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindDuplicateEmail
	KindInvalidCredentials
	KindEmailNotVerified
	KindOtpInvalid
	KindUserNotFound
	KindInvalidRefreshToken
	KindUnauthenticated
	KindForbidden
	KindRateLimited
	KindStoreUnavailable
	KindDeliveryError
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindDuplicateEmail:
		return "DuplicateEmail"
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindEmailNotVerified:
		return "EmailNotVerified"
	case KindOtpInvalid:
		return "OtpInvalid"
	case KindUserNotFound:
		return "UserNotFound"
	case KindInvalidRefreshToken:
		return "InvalidRefreshToken"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindForbidden:
		return "Forbidden"
	case KindRateLimited:
		return "RateLimited"
	case KindStoreUnavailable:
		return "StoreUnavailable"
	case KindDeliveryError:
		return "DeliveryError"
	}

	return "Internal"
}

type FieldError = validators.FieldError

// AuthError is the only error type returned by the auth and user services.
// Two AuthErrors match under errors.Is when their kinds are equal.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Fields  []FieldError
	// UserID is set when the caller needs it to recover, e.g. to resend a code
	UserID string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation          = &AuthError{Kind: KindValidation, Message: "Invalid request"}
	ErrDuplicateEmail      = &AuthError{Kind: KindDuplicateEmail, Message: "This email is already registered. Please login or use a different email"}
	ErrInvalidCredentials  = &AuthError{Kind: KindInvalidCredentials, Message: "Invalid email or password"}
	ErrEmailNotVerified    = &AuthError{Kind: KindEmailNotVerified, Message: "Please verify your email before logging in"}
	ErrOtpInvalid          = &AuthError{Kind: KindOtpInvalid, Message: "Invalid or expired code"}
	ErrUserNotFound        = &AuthError{Kind: KindUserNotFound, Message: "User not found"}
	ErrInvalidRefreshToken = &AuthError{Kind: KindInvalidRefreshToken, Message: "Invalid or expired refresh token"}
	ErrUnauthenticated     = &AuthError{Kind: KindUnauthenticated, Message: "Authorization token invalid"}
	ErrForbidden           = &AuthError{Kind: KindForbidden, Message: "You don't have permission to do this"}
	ErrRateLimited         = &AuthError{Kind: KindRateLimited, Message: "Too many requests, please try again later"}
	ErrStoreUnavailable    = &AuthError{Kind: KindStoreUnavailable, Message: "Service temporarily unavailable, please try again"}
	ErrDelivery            = &AuthError{Kind: KindDeliveryError, Message: "Failed to send the code, please request a new one"}
	ErrInternal            = &AuthError{Kind: KindInternal, Message: "Internal server error"}
)

func newError(base *AuthError, err error) *AuthError {
	return &AuthError{Kind: base.Kind, Message: base.Message, Err: err}
}

func validationError(msg string, fields ...FieldError) *AuthError {
	return &AuthError{Kind: KindValidation, Message: msg, Fields: fields}
}
