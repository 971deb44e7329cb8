package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the Store classifies into domain sentinels
// (domain.ErrConflict, domain.ErrInvalidReference) at the persistence
// boundary (spec §7).
const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
)

// IsPgDuplicateError reports whether err is a unique-constraint violation,
// the case AppendStoryEntry classifies as domain.ErrConflict (spec §3: the
// append-only story log never updates an existing row). UpsertChapter
// resolves (story_id, number) conflicts with ON CONFLICT and does not use
// this check.
func IsPgDuplicateError(err error) bool {
	return pgErrorCode(err) == pgCodeUniqueViolation
}

// IsPgForeignKeyError reports whether err is a foreign-key violation, the
// case the Store classifies as domain.ErrInvalidReference: a row
// referencing a story or chapter id that doesn't exist.
func IsPgForeignKeyError(err error) bool {
	return pgErrorCode(err) == pgCodeForeignKeyViolation
}

// IsPgNoRowsError reports whether err is pgx's no-rows sentinel. The Store
// does not call it: EnsureStory uses Exec and LoadStory uses Query, and
// neither returns that sentinel for a story that hasn't been seeded yet
// (LoadStory returns empty results instead).
func IsPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
