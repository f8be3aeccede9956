package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: accounts.code")))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
}

func TestIsConflictErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("update: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"mysql deadlock", errors.New("Error 1213: Deadlock found"), true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"other", errors.New("syntax error"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsConflictErr(tc.err))
		})
	}
}

func TestIsUnavailableErr(t *testing.T) {
	assert.False(t, IsUnavailableErr(nil))
	assert.True(t, IsUnavailableErr(driver.ErrBadConn))
	assert.True(t, IsUnavailableErr(&pgconn.PgError{Code: "08006"}))
	assert.True(t, IsUnavailableErr(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")))
	assert.False(t, IsUnavailableErr(&pgconn.PgError{Code: "40001"}))
}

func TestDialect(t *testing.T) {
	for _, typ := range []string{DialectPostgres, DialectMySQL, DialectSQLite} {
		d, err := Dialect(Config{Type: typ, Path: "test.db"})
		assert.NoError(t, err)
		assert.Equal(t, typ, d.Name())
	}

	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
