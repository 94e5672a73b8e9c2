package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/repository"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	url        TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS articles_failed (
	url        TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE articles ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT now();
ALTER TABLE articles_failed ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT now();
`

// Rows whose document is unchanged are left untouched.
const (
	upsertArticle = `INSERT INTO articles (url, doc) VALUES ($1, $2)
ON CONFLICT (url) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
WHERE articles.doc IS DISTINCT FROM EXCLUDED.doc`
	upsertFailure = `INSERT INTO articles_failed (url, doc) VALUES ($1, $2)
ON CONFLICT (url) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
WHERE articles_failed.doc IS DISTINCT FROM EXCLUDED.doc`
)

// Execer is the subset of pgxpool.Pool the sink needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ResultSinkImpl mirrors results into PostgreSQL, one JSONB document per URL.
type ResultSinkImpl struct {
	db     Execer
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ repository.ResultSink = (*ResultSinkImpl)(nil)

// Connect opens a pool, checks connectivity and ensures the schema exists.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*ResultSinkImpl, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	sink := &ResultSinkImpl{db: pool, pool: pool, logger: logger}
	if err := sink.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

// NewResultSink wraps an existing connection.
func NewResultSink(db Execer, logger *zap.Logger) *ResultSinkImpl {
	return &ResultSinkImpl{db: db, logger: logger}
}

// EnsureSchema creates the articles and articles_failed tables.
func (s *ResultSinkImpl) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Upsert writes the document into articles or articles_failed, replacing the
// stored document of a known URL. A unique violation raised by a concurrent
// writer is logged and skipped.
func (s *ResultSinkImpl) Upsert(ctx context.Context, result entity.Result) error {
	var (
		query string
		doc   any
	)
	switch {
	case result.Article != nil:
		query, doc = upsertArticle, result.Article
	case result.Failure != nil:
		query, doc = upsertFailure, result.Failure
	default:
		return errors.New("empty result")
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", result.URL(), err)
	}

	_, err = s.db.Exec(ctx, query, result.URL(), payload)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		s.logger.Info("Document already stored, skipping",
			zap.String("url", result.URL()),
			zap.String("constraint", pgErr.ConstraintName),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("upsert %s: %w", result.URL(), err)
	}
	return nil
}

// Close releases the pool opened by Connect.
func (s *ResultSinkImpl) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
