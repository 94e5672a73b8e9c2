package repository

import (
	"context"

	"github.com/pazars/grabeklis/internal/entity"
)

// ResultSink mirrors extraction results into an external document store.
type ResultSink interface {
	// Upsert stores the article or failure held by result. Duplicate keys are
	// not an error.
	Upsert(ctx context.Context, result entity.Result) error
	Close()
}
