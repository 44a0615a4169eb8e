package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrMeetingExists is returned when an event or session already owns a meeting.
	ErrMeetingExists = errors.New("meeting already exists for owner")

	ErrInvalidOutcome = errors.New("invalid auto-end outcome")

	// ErrInvalidOwner is returned when a meeting names both an event and a
	// session, or neither where one is required.
	ErrInvalidOwner = errors.New("meeting must reference exactly one of event or session")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
