package postgres

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_UpDownPairs(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file in migrations: %s", name)
		}
	}
	assert.Equal(t, ups, downs, "every up migration needs a down")

	var versions []string
	for v := range ups {
		versions = append(versions, v[:6])
	}
	sort.Strings(versions)
	for i := 1; i < len(versions); i++ {
		assert.NotEqual(t, versions[i-1], versions[i], "duplicate migration version")
	}
}

func TestMigrations_LedgerConstraints(t *testing.T) {
	accounts, err := fs.ReadFile(migrationsFS, "migrations/000001_create_accounts.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(accounts), "CHECK (balance >= 0)")

	settlements, err := fs.ReadFile(migrationsFS, "migrations/000003_create_settlements.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(settlements), "UNIQUE (merchant_id, reference)")
}

func TestMigrator_Down_RejectsNonPositive(t *testing.T) {
	m := NewMigrator("postgres://localhost/none", zerolog.Nop())
	assert.Error(t, m.Down(0))
}

func TestMigrator_BadURL(t *testing.T) {
	m := NewMigrator("::not a url::", zerolog.Nop())
	_, err := m.Status()
	assert.Error(t, err)
}
