package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/store"
)

func TestClassifyNilIsNil(t *testing.T) {
	require.NoError(t, classify("op", nil))
}

func TestClassifyUniqueViolationIsConflict(t *testing.T) {
	err := classify("identity.create", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	var c *store.Conflict
	require.ErrorAs(t, err, &c)
}

func TestClassifySerializationFailureIsTransient(t *testing.T) {
	err := classify("identity.update", &pgconn.PgError{Code: "40001", Message: "could not serialize"})
	var tr *store.Transient
	require.ErrorAs(t, err, &tr)
}

func TestClassifyDeadlineExceededIsTransient(t *testing.T) {
	err := classify("identity.get", context.DeadlineExceeded)
	var tr *store.Transient
	require.ErrorAs(t, err, &tr)
}

func TestClassifyOtherPgErrorIsFatal(t *testing.T) {
	err := classify("identity.get", &pgconn.PgError{Code: "42601", Message: "syntax error"})
	var f *store.Fatal
	require.ErrorAs(t, err, &f)
}

func TestClassifyUnknownErrorIsFatal(t *testing.T) {
	err := classify("identity.get", errors.New("boom"))
	var f *store.Fatal
	require.ErrorAs(t, err, &f)
}
