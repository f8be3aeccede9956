package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRunAutoMigratesNonPostgres(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Run(conn))
	for _, table := range []string{
		"accounts",
		"journal_entries",
		"journal_entry_lines",
		"account_balance_histories",
		"journal_entry_sequences",
		"taxes",
		"tax_groups",
		"tax_group_members",
		"tax_exemptions",
		"audit_logs",
	} {
		assert.Truef(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}

	require.NoError(t, Run(conn))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = struct{}{}
	}
	for name := range names {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
		_, ok := names[down]
		assert.Truef(t, ok, "missing %s", down)
	}
}

func TestRunRejectsNil(t *testing.T) {
	assert.Error(t, Run(nil))
}
