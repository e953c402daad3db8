package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb" // registers "sqlserver"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // registers "sqlite"

	"github.com/Sriram-PR/sitemap-gen/pkg/models"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// Paging dialects
const (
	DialectANSI      = "ansi"
	DialectSQLServer = "sqlserver"
)

// BuildPageQuery wraps the configured select in a ROW_NUMBER() window ordered by the batch's
// ordering column and selects the rows after page*PageSize. The select text and column are
// inserted verbatim; they come from trusted configuration.
func BuildPageQuery(dialect string, q Query, page int) string {
	offset := page * q.PageSize
	inner := fmt.Sprintf(
		"SELECT ROW_NUMBER() OVER (ORDER BY %s) AS RowNum, * FROM (%s) AS source",
		q.OrderByColumn, strings.TrimRight(strings.TrimSpace(q.SelectQuery), ";"))

	if dialect == DialectSQLServer {
		return fmt.Sprintf("SELECT TOP %d * FROM (%s) AS PagedResults WHERE RowNum > %d ORDER BY RowNum",
			q.PageSize, inner, offset)
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS PagedResults WHERE RowNum > %d ORDER BY RowNum LIMIT %d",
		inner, offset, q.PageSize)
}

// SQLDatabase is a connection pool shared by the SQL sources of one run
type SQLDatabase struct {
	db      *sql.DB
	driver  string
	dialect string
	log     *logrus.Entry
}

// OpenSQL opens and pings a database/sql pool
func OpenSQL(ctx context.Context, driver, dsn, dialect string, log *logrus.Logger) (*SQLDatabase, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s database: %w", utils.ErrDataFetch, driver, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close() // Best effort cleanup
		return nil, fmt.Errorf("%w: connect to %s database: %w", utils.ErrDataFetch, driver, err)
	}
	return NewSQLDatabase(db, driver, dialect, log), nil
}

// NewSQLDatabase wraps an already opened pool
func NewSQLDatabase(db *sql.DB, driver, dialect string, log *logrus.Logger) *SQLDatabase {
	if dialect == "" {
		dialect = DialectANSI
	}
	return &SQLDatabase{
		db:      db,
		driver:  driver,
		dialect: dialect,
		log:     log.WithFields(logrus.Fields{"component": "sql_source", "driver": driver}),
	}
}

// Factory returns sources sharing this pool
func (d *SQLDatabase) Factory() Factory {
	return func() (DataSource, error) {
		return d.NewSource(), nil
	}
}

// NewSource creates an unconfigured source on the pool
func (d *SQLDatabase) NewSource() *SQLSource {
	return &SQLSource{db: d.db, dialect: d.dialect, log: d.log}
}

// Close releases the pool
func (d *SQLDatabase) Close() error {
	return d.db.Close()
}

// SQLSource pages one query through ROW_NUMBER() windows
type SQLSource struct {
	db      *sql.DB
	dialect string
	query   Query
	log     *logrus.Entry
}

// Configure sets the query the next FetchPage calls run
func (s *SQLSource) Configure(q Query) {
	s.query = q
	s.log = s.log.WithField("batch", q.Batch)
}

// FetchPage runs the paged query for a zero-based page
func (s *SQLSource) FetchPage(ctx context.Context, page int) ([]models.Row, error) {
	if s.query.PageSize <= 0 {
		return nil, fmt.Errorf("%w: batch %q has no page size", utils.ErrDataFetch, s.query.Batch)
	}
	stmt := BuildPageQuery(s.dialect, s.query, page)
	s.log.Debugf("Fetching page %d", page)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("%w: batch %q page %d: %w", utils.ErrDataFetch, s.query.Batch, page, err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: batch %q page %d: %w", utils.ErrDataFetch, s.query.Batch, page, err)
	}
	s.log.WithField("duration", time.Since(start)).Debugf("Page %d returned %d rows", page, len(out))
	return out, nil
}

// Close is a no-op; the pool is closed through SQLDatabase
func (s *SQLSource) Close() error {
	return nil
}

// scanRows reads every row generically, keeping driver value types
func scanRows(rows *sql.Rows) ([]models.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []models.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, models.NewRow(columns, values))
	}
	return out, rows.Err()
}
