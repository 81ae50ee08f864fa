package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docgen/migrations"
)

func TestPendingMigrationsOrdered(t *testing.T) {
	fsys := fstest.MapFS{
		"010_late.sql":  {Data: []byte("SELECT 1;")},
		"001_first.sql": {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("ignored")},
	}
	files, err := PendingMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "010_late.sql"}, files)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	files, err := PendingMigrations(migrations.FS)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_prompt_templates.sql", "002_generation_jobs.sql"}, files)
}

func TestMigrationSourceFallsBackToEmbedded(t *testing.T) {
	fsys := MigrationSource("/does/not/exist")
	files, err := PendingMigrations(fsys)
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}
