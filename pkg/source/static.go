package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sriram-PR/sitemap-gen/pkg/models"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// StaticTables holds in-memory result sets keyed by select query text. It backs previews and
// tests, and records how often each query was fetched.
type StaticTables struct {
	mu      sync.Mutex
	tables  map[string][]models.Row
	fetches map[string]int
	fail    map[string]int // query -> page that returns an error
}

// NewStaticTables creates an empty table set
func NewStaticTables() *StaticTables {
	return &StaticTables{
		tables:  make(map[string][]models.Row),
		fetches: make(map[string]int),
		fail:    make(map[string]int),
	}
}

// Set stores the rows returned for selectQuery
func (t *StaticTables) Set(selectQuery string, rows []models.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tables[selectQuery] = rows
}

// FailAt makes FetchPage fail for selectQuery at the given page
func (t *StaticTables) FailAt(selectQuery string, page int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail[selectQuery] = page
}

// Fetches returns how many pages were requested for selectQuery
func (t *StaticTables) Fetches(selectQuery string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetches[selectQuery]
}

// Factory returns sources reading these tables
func (t *StaticTables) Factory() Factory {
	return func() (DataSource, error) {
		return &StaticSource{tables: t}, nil
	}
}

// StaticSource pages through a StaticTables entry
type StaticSource struct {
	tables *StaticTables
	query  Query
}

// NewStaticSource creates a source over tables
func NewStaticSource(tables *StaticTables) *StaticSource {
	return &StaticSource{tables: tables}
}

func (s *StaticSource) Configure(q Query) {
	s.query = q
}

func (s *StaticSource) FetchPage(ctx context.Context, page int) ([]models.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := s.tables
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fetches[s.query.SelectQuery]++
	if failPage, ok := t.fail[s.query.SelectQuery]; ok && failPage == page {
		return nil, fmt.Errorf("%w: batch %q page %d: simulated failure", utils.ErrDataFetch, s.query.Batch, page)
	}
	if s.query.PageSize <= 0 {
		return nil, fmt.Errorf("%w: batch %q has no page size", utils.ErrDataFetch, s.query.Batch)
	}

	rows := t.tables[s.query.SelectQuery]
	start := page * s.query.PageSize
	if start >= len(rows) {
		return nil, nil
	}
	end := min(start+s.query.PageSize, len(rows))
	return append([]models.Row(nil), rows[start:end]...), nil
}

func (s *StaticSource) Close() error {
	return nil
}
