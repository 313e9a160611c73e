package replication

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/libsqlgo/types"
)

func TestFrameLog(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	log := FrameLog{}

	last, err := log.LastIndex(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, last)

	entries := []types.Entry{
		{ID: "e1", SQL: "INSERT INTO t VALUES (?)", Args: []types.Value{types.Integer(7)}},
		{ID: "e2", SQL: "DELETE FROM t"},
		{ID: "e3", SQL: "UPDATE t SET x = 1"},
	}
	for i, e := range entries {
		origin := "replica-a"
		if i == 2 {
			origin = ""
		}
		idx, err := log.Append(ctx, db, origin, e)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), idx)
	}

	seen, err := log.Seen(ctx, db, "e2")
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = log.Seen(ctx, db, "e9")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = log.Append(ctx, db, "replica-a", entries[0])
	assert.Error(t, err, "entry ids are unique")

	records, err := log.Since(ctx, db, 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "e2", records[0].ID)
	assert.Equal(t, "", records[1].Origin)

	records, err = log.Since(ctx, db, 0, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	frame, err := records[0].Frame()
	require.NoError(t, err)
	assert.Equal(t, int64(1), frame.Index)
	assert.Equal(t, "e1", frame.ID)
	require.Len(t, frame.Args, 1)
	assert.True(t, types.Integer(7).Equal(frame.Args[0]))

	last, err = log.LastIndex(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}
