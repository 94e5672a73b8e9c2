package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/adapter/postgres"
	"github.com/pazars/grabeklis/internal/entity"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestResultSink_RoutesByOutcome(t *testing.T) {
	t.Parallel()

	db := &fakeExecer{}
	sink := postgres.NewResultSink(db, zap.NewNop())
	ctx := context.Background()

	art := &entity.ArticleRecord{URL: "https://www.lsm.lv/raksts/a", Title: "Virsraksts"}
	require.NoError(t, sink.Upsert(ctx, entity.Succeeded(art)))
	require.NoError(t, sink.Upsert(ctx, entity.Failed("https://www.lsm.lv/raksts/b", errors.New("no date"))))

	require.Len(t, db.calls, 2)
	assert.Contains(t, db.calls[0].sql, "INTO articles ")
	assert.Equal(t, "https://www.lsm.lv/raksts/a", db.calls[0].args[0])
	var doc map[string]any
	require.NoError(t, json.Unmarshal(db.calls[0].args[1].([]byte), &doc))
	assert.Equal(t, "Virsraksts", doc["virsraksts"])

	assert.Contains(t, db.calls[1].sql, "INTO articles_failed")
	for _, c := range db.calls {
		assert.Contains(t, c.sql, "ON CONFLICT (url) DO UPDATE SET doc = EXCLUDED.doc")
	}
	require.NoError(t, json.Unmarshal(db.calls[1].args[1].([]byte), &doc))
	assert.Equal(t, "no date", doc["error"])
}

func TestResultSink_DuplicateKeySkipped(t *testing.T) {
	t.Parallel()

	db := &fakeExecer{err: &pgconn.PgError{Code: "23505", ConstraintName: "articles_pkey"}}
	sink := postgres.NewResultSink(db, zap.NewNop())

	err := sink.Upsert(context.Background(), entity.Succeeded(&entity.ArticleRecord{URL: "https://www.lsm.lv/raksts/a"}))
	assert.NoError(t, err)
}

func TestResultSink_OtherErrors(t *testing.T) {
	t.Parallel()

	db := &fakeExecer{err: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}}
	sink := postgres.NewResultSink(db, zap.NewNop())

	err := sink.Upsert(context.Background(), entity.Succeeded(&entity.ArticleRecord{URL: "https://www.lsm.lv/raksts/a"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https://www.lsm.lv/raksts/a")

	assert.Error(t, sink.Upsert(context.Background(), entity.Result{}))
}

func TestResultSink_EnsureSchema(t *testing.T) {
	t.Parallel()

	db := &fakeExecer{}
	require.NoError(t, postgres.NewResultSink(db, zap.NewNop()).EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS articles_failed")
}

func TestResultSink_ReplacesKnownURL(t *testing.T) {
	t.Parallel()

	db := &fakeExecer{}
	sink := postgres.NewResultSink(db, zap.NewNop())
	ctx := context.Background()

	url := "https://www.lsm.lv/raksts/a"
	require.NoError(t, sink.Upsert(ctx, entity.Succeeded(&entity.ArticleRecord{URL: url, Title: "Vecais"})))
	require.NoError(t, sink.Upsert(ctx, entity.Succeeded(&entity.ArticleRecord{URL: url, Title: "Jaunais"})))

	require.Len(t, db.calls, 2)
	assert.Equal(t, db.calls[0].sql, db.calls[1].sql)
	assert.Contains(t, db.calls[1].sql, "updated_at = now()")
	assert.Contains(t, db.calls[1].sql, "IS DISTINCT FROM EXCLUDED.doc")
	var doc map[string]any
	require.NoError(t, json.Unmarshal(db.calls[1].args[1].([]byte), &doc))
	assert.Equal(t, "Jaunais", doc["virsraksts"])
}
