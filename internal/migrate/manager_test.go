package migrate

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsHaveBothDirections(t *testing.T) {
	m := NewManager(nil)
	files, err := m.Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "00001_init.sql", files[0])

	for _, name := range files {
		body, err := fs.ReadFile(embedded, migrationsDir+"/"+name)
		require.NoError(t, err)
		text := string(body)
		assert.Contains(t, text, "-- +goose Up", name)
		assert.Contains(t, text, "-- +goose Down", name)
	}
}

func TestInitSchemaConstrainsPlan(t *testing.T) {
	body, err := fs.ReadFile(embedded, "migrations/00001_init.sql")
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "email      text not null unique")
	assert.Contains(t, text, "check (plan in ('free', 'pro'))")
	assert.Contains(t, text, "on delete cascade")
}

func TestOptions(t *testing.T) {
	custom := fstest.MapFS{
		"migrations/00002_b.sql": {Data: []byte("-- +goose Up\n")},
		"migrations/00001_a.sql": {Data: []byte("-- +goose Up\n")},
		"migrations/README.md":   {Data: []byte("docs")},
	}
	m := NewManager(nil, WithMigrationsTable("notenest_schema"), WithFS(custom), WithMigrationsTable(""))
	assert.Equal(t, "notenest_schema", m.migrationsTable)

	files, err := m.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"00001_a.sql", "00002_b.sql"}, files)
	assert.False(t, strings.HasSuffix(files[len(files)-1], ".md"))
}
