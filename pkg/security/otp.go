package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// GenerateOTP returns a uniformly sampled numeric code of exactly n digits.
// Leading zeros are kept.
func GenerateOTP(n int) (string, error) {
	if n <= 0 || n > 18 {
		return "", errors.New("otp length must be between 1 and 18")
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)

	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}
