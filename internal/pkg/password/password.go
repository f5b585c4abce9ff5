package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const MinLength = 6

func Validate(plain string) error {
	if len(plain) < MinLength {
		return fmt.Errorf("password must have at least %d characters", MinLength)
	}
	if len(plain) > 72 {
		return fmt.Errorf("password exceeds bcrypt limit")
	}
	return nil
}

func Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func Compare(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
