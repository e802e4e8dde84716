package syncx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cbt-exam/cbtexam/internal/db"
)

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, db.MemoryDSN(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	repo := NewEventRepo(conn, "")

	require.NoError(t, repo.Append(ctx, "ResultSubmitted", "r1", map[string]any{"score": 3}))
	require.NoError(t, repo.Append(ctx, "ResultGraded", "r1", map[string]any{"score": 7}))

	all, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "local", all[0].SiteID)
	require.Equal(t, "ResultSubmitted", all[0].Type)
	require.JSONEq(t, `{"score":3}`, string(all[0].Data))

	rest, err := repo.List(ctx, all[0].Offset, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "ResultGraded", rest[0].Type)

	require.Error(t, repo.Append(ctx, "Bad", "k", func() {}))
}
