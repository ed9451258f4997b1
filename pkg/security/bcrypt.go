package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordTooLong is returned for inputs bcrypt would otherwise truncate
var ErrPasswordTooLong = errors.New("password is longer than 72 bytes")

type BcryptHash struct {
	Cost int
}

func NewBcrypt(cost int) *BcryptHash {
	return &BcryptHash{Cost: cost}
}

func (b *BcryptHash) Hash(p string) (string, error) {
	if len(p) > 72 {
		return "", ErrPasswordTooLong
	}

	h, err := bcrypt.GenerateFromPassword([]byte(p), b.Cost)
	if err != nil {
		return "", err
	}

	return string(h), nil
}

func (b *BcryptHash) Verify(p, e string) bool {
	return bcrypt.CompareHashAndPassword([]byte(e), []byte(p)) == nil
}
