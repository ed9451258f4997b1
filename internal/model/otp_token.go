package model

type Purpose string

const (
	PurposeVerification  Purpose = "VERIFICATION"
	PurposePasswordReset Purpose = "PASSWORD_RESET"
)

func (p Purpose) Valid() bool {
	return p == PurposeVerification || p == PurposePasswordReset
}

// OTPToken is a single-use code bound to a user and a purpose. Timestamps are
// unix milliseconds.
type OTPToken struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	UserID    string  `gorm:"index:idx_otp_lookup;not null"`
	Code      string  `gorm:"index:idx_otp_lookup;size:12;not null"`
	Purpose   Purpose `gorm:"index:idx_otp_lookup;not null"`
	ExpiresAt int64   `gorm:"index;not null"`
	CreatedAt int64   `gorm:"not null"`
}
