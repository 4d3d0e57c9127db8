package security

import "golang.org/x/crypto/bcrypt"

// bcrypt work factor; fixed so hashes stay comparable across deploys.
const bcryptCost = 12

// HashPassword hashes a plain text password with bcrypt. The salt is random
// per call and embedded in the digest.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a plaintext password.
func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
