package database_test

import (
	"context"
	"fmt"
	"testing"

	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/database"
	"db-agent-be/pkg/database/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteReturnsRows(t *testing.T) {
	cat := dbtest.Catalog(t)
	db := dbtest.Open(t, cat, dbtest.Seed())
	exec := database.NewExecutor(db, dbtest.Logger())

	res := exec.Execute(context.Background(), "SELECT origin, destination FROM flights ORDER BY id")

	require.Nil(t, res.Err)
	assert.Equal(t, []string{"origin", "destination"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "JFK", res.Rows[0]["origin"])
	assert.Equal(t, "CDG", res.Rows[1]["destination"])
	assert.False(t, res.Truncated)
}

func TestExecuteCapsRows(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		wantRows      int
		wantTruncated bool
	}{
		{name: "below the cap", total: 10, wantRows: 10},
		{name: "exactly the cap", total: database.MaxRows, wantRows: database.MaxRows},
		{name: "one over the cap", total: database.MaxRows + 1, wantRows: database.MaxRows, wantTruncated: true},
		{name: "far over the cap", total: 120, wantRows: database.MaxRows, wantTruncated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := dbtest.Catalog(t)
			seed := database.SeedData{}
			for i := 1; i <= tt.total; i++ {
				seed["pilots"] = append(seed["pilots"], map[string]any{
					"id": i, "name": fmt.Sprintf("pilot-%d", i), "license_type": "Commercial",
				})
			}
			db := dbtest.Open(t, cat, seed)

			res := database.NewExecutor(db, dbtest.Logger()).Execute(context.Background(), "SELECT * FROM pilots")

			require.Nil(t, res.Err)
			assert.Len(t, res.Rows, tt.wantRows)
			assert.Equal(t, tt.wantTruncated, res.Truncated)
		})
	}
}

func TestExecuteRevalidates(t *testing.T) {
	cat := dbtest.Catalog(t)
	db := dbtest.Open(t, cat, dbtest.Seed())
	exec := database.NewExecutor(db, dbtest.Logger())

	res := exec.Execute(context.Background(), "DROP TABLE flights")

	require.NotNil(t, res.Err)
	assert.True(t, apperrors.Is(res.Err, apperrors.Validation))
	assert.Contains(t, res.Err.Message, "not allowed")

	after := exec.Execute(context.Background(), "SELECT COUNT(*) AS n FROM flights")
	require.Nil(t, after.Err)
	assert.EqualValues(t, 2, after.Rows[0]["n"])
}

func TestExecuteReportsDatabaseErrorsAsText(t *testing.T) {
	cat := dbtest.Catalog(t)
	db := dbtest.Open(t, cat, dbtest.Seed())

	res := database.NewExecutor(db, dbtest.Logger()).Execute(context.Background(), "SELECT * FROM hangars")

	require.NotNil(t, res.Err)
	assert.True(t, res.Failed())
	assert.True(t, apperrors.Is(res.Err, apperrors.Execution))
	assert.Contains(t, res.Err.Message, "Database error:")
	assert.Contains(t, res.Err.Message, "hangars")
	assert.Empty(t, res.Rows)
}

func TestExecuteReleasesConnection(t *testing.T) {
	cat := dbtest.Catalog(t)
	db := dbtest.Open(t, cat, dbtest.Seed())
	exec := database.NewExecutor(db, dbtest.Logger())

	// The pool holds one connection; a leak would block the second loop iteration.
	for i := 0; i < 5; i++ {
		exec.Execute(context.Background(), "SELECT * FROM hangars")
		res := exec.Execute(context.Background(), "SELECT id FROM planes")
		require.Nil(t, res.Err)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 0, sqlDB.Stats().InUse)
}

func TestCountRows(t *testing.T) {
	cat := dbtest.Catalog(t)
	db := dbtest.Open(t, cat, dbtest.Seed())

	counts, err := database.CountRows(context.Background(), db, cat.Names())

	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"flights": 2, "pilots": 2, "planes": 1}, counts)
}
