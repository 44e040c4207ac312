package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntriesNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.log")
	l := NewIsolatedLogger(path)

	l.Info("TURN", "first", map[string]interface{}{"n": 1})
	l.Warn("OTHER", "noise", nil)
	l.Info("TURN", "second", map[string]interface{}{"n": 2})
	l.Info("TURN", "third", map[string]interface{}{"n": 3})
	require.NoError(t, l.Sync())

	tests := []struct {
		name   string
		module string
		limit  int
		offset int
		want   []string
	}{
		{name: "all modules", limit: 10, want: []string{"third", "second", "noise", "first"}},
		{name: "one module", module: "TURN", limit: 10, want: []string{"third", "second", "first"}},
		{name: "page", module: "TURN", limit: 1, offset: 1, want: []string{"second"}},
		{name: "past the end", module: "TURN", limit: 5, offset: 3, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := l.Entries(tt.module, tt.limit, tt.offset)
			require.NoError(t, err)

			got := make([]string, len(entries))
			for i, e := range entries {
				got[i] = e.Message
				assert.NotEmpty(t, e.Id)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntriesMissingFile(t *testing.T) {
	l := NewIsolatedLogger(filepath.Join(t.TempDir(), "never-written.log"))

	entries, err := l.Entries("", 10, 0)

	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntriesCarryDetails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.log")
	l := NewIsolatedLogger(path)
	l.Info("TURN", "Turn completed", map[string]interface{}{"turn_id": "t-1", "failed": false})
	require.NoError(t, l.Sync())

	entries, err := l.Entries("TURN", 1, 0)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "t-1", entries[0].Details["turn_id"])
}
