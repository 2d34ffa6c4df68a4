package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/iohzrd/echora/internal/apperror"
)

func notFound(msg string) error { return apperror.NotFoundf("%s", msg) }

func wrapErr(err error, context string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(context)
	}
	return apperror.Internalf(err, "%s", context)
}

// mapUserInsertErr mirrors the reference's unique-violation-to-domain-error
// mapping: username conflict -> "Username already taken", email -> "Email
// already in use", else a generic conflict.
func mapUserInsertErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "unique") {
		switch {
		case strings.Contains(msg, "username"):
			return apperror.Conflictf("Username already taken")
		case strings.Contains(msg, "email"):
			return apperror.Conflictf("Email already in use")
		default:
			return apperror.Conflictf("User already exists")
		}
	}
	return apperror.Internalf(err, "create user")
}

// mapUniqueErr maps a UNIQUE constraint violation mentioning column to
// a Conflict error with msg, else wraps err as Internal.
func mapUniqueErr(err error, column, msg string) error {
	if err == nil {
		return nil
	}
	text := err.Error()
	if (strings.Contains(text, "UNIQUE") || strings.Contains(text, "unique")) && strings.Contains(text, column) {
		return apperror.Conflictf("%s", msg)
	}
	return apperror.Internalf(err, "write")
}
