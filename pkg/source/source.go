package source

import (
	"context"

	"github.com/Sriram-PR/sitemap-gen/pkg/models"
)

// Query describes how one batch is paged out of the data source
type Query struct {
	Batch         string // Batch name, for logging only
	SelectQuery   string
	OrderByColumn string
	PageSize      int
}

// DataSource pages through the rows of one configured query.
// FetchPage returns an empty slice once the result set is exhausted.
// A DataSource is used by one goroutine at a time.
type DataSource interface {
	Configure(q Query)
	FetchPage(ctx context.Context, page int) ([]models.Row, error)
	Close() error
}

// Factory creates independent DataSource instances, one per concurrently processed batch
type Factory func() (DataSource, error)
