package repositories

import (
	"example.com/backstage/services/charity/internal/database"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Common repository errors
var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateKey     = errors.New("duplicate key violation")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrTokenInvalid     = errors.New("token invalid, expired or already used")
	ErrStateConflict    = errors.New("state transition not allowed")
)

const uniqueViolation = "23505"

// isUniqueViolation matches both the translated gorm error and the raw
// postgres error code.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// translate maps driver errors onto repository sentinels and wraps the rest
func translate(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case isSentinel(err):
		return err
	case database.IsRecordNotFoundError(err):
		return ErrNotFound
	case isUniqueViolation(err):
		return ErrDuplicateKey
	default:
		return errors.Wrap(err, msg)
	}
}

func isSentinel(err error) bool {
	for _, sentinel := range []error{ErrNotFound, ErrDuplicateKey, ErrCapacityExceeded, ErrTokenInvalid, ErrStateConflict} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
