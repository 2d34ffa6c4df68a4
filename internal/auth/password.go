package auth

import "github.com/alexedwards/argon2id"

// HashPassword returns a PHC-formatted argon2id hash suitable for
// storage alongside the user row.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// VerifyPassword reports whether password matches the stored PHC hash.
func VerifyPassword(password, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, hash)
}
