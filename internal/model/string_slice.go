package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

var ErrUnsafeElement = errors.New("list elements can't contain commas")

// StringSlice stores a list of short strings (skills) as one comma separated
// column. Elements must not contain commas.
type StringSlice []string

// Check returns ErrUnsafeElement if any element would break the encoding
func (s StringSlice) Check() error {
	for _, v := range s {
		if strings.Contains(v, ",") {
			return fmt.Errorf("%w: %q", ErrUnsafeElement, v)
		}
	}

	return nil
}

// Value implements the driver.Valuer interface.
func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "", nil
	}

	if err := s.Check(); err != nil {
		return "", err
	}

	return strings.Join(s, ","), nil
}

// Scan implements the sql.Scanner interface.
func (s *StringSlice) Scan(value any) error {
	var str string

	switch v := value.(type) {
	case nil:
		*s = StringSlice{}
		return nil
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("failed to scan StringSlice, %v", value)
	}

	if str == "" {
		*s = StringSlice{}
		return nil
	}

	*s = strings.Split(str, ",")
	return nil
}
