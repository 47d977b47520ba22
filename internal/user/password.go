package user

import (
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is lowered by tests to keep them fast.
var bcryptCost = bcrypt.DefaultCost

// prehash folds a password of any length into 44 bytes, under bcrypt's
// 72-byte input limit, so every byte of the password counts.
func prehash(pw string) []byte {
	sum := sha256.Sum256([]byte(pw))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func HashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(pw), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, pw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(pw))
}
