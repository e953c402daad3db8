package models

import (
	"fmt"
	"strconv"
	"time"
)

// Row is one record returned by the data source: column names in select order plus values
// as produced by the driver. Rows are read-only and live for one template evaluation.
type Row struct {
	Columns []string
	Values  map[string]any
}

// NewRow builds a Row from parallel column/value slices
func NewRow(columns []string, values []any) Row {
	row := Row{
		Columns: make([]string, 0, len(columns)),
		Values:  make(map[string]any, len(columns)),
	}
	for i, col := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		if _, dup := row.Values[col]; !dup {
			row.Columns = append(row.Columns, col)
		}
		row.Values[col] = v
	}
	return row
}

// RowFromMap builds a Row from a map; column order follows the supplied order, extra keys are appended unordered
func RowFromMap(values map[string]any, order ...string) Row {
	cols := make([]string, 0, len(values))
	vals := make([]any, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, col := range order {
		if v, ok := values[col]; ok && !seen[col] {
			cols = append(cols, col)
			vals = append(vals, v)
			seen[col] = true
		}
	}
	for col, v := range values {
		if !seen[col] {
			cols = append(cols, col)
			vals = append(vals, v)
		}
	}
	return NewRow(cols, vals)
}

// Get returns the raw value of a column and whether the column exists
func (r Row) Get(column string) (any, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Text returns the column value converted to text. NULL converts to "".
func (r Row) Text(column string) (string, bool) {
	v, ok := r.Values[column]
	if !ok {
		return "", false
	}
	return ValueText(v), true
}

// ValueText converts a scalar produced by a SQL driver to its text form
func ValueText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		if val.Nanosecond() == 0 {
			return val.Format("2006-01-02 15:04:05")
		}
		return val.Format("2006-01-02 15:04:05.999999999")
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// EmittedFile describes one file written by a run
type EmittedFile struct {
	Path       string `json:"path"`
	URL        string `json:"url"`
	Compressed bool   `json:"compressed"`
	Bytes      int64  `json:"bytes"`
	SHA256     string `json:"sha256,omitempty"`
	URLCount   int    `json:"url_count"`
}

// BatchResult is what a processed batch hands back to the run coordinator
type BatchResult struct {
	Batch     string        `json:"batch"`
	Strategy  BatchStrategy `json:"strategy"`
	Rows      int           `json:"rows"`
	Pages     int           `json:"pages"`
	IndexURL  string        `json:"index_url,omitempty"` // URL registered in the root index ("" when skipped)
	Files     []EmittedFile `json:"files,omitempty"`
	Duration  time.Duration `json:"duration"`
	ErrorType string        `json:"error_type,omitempty"`

	DisallowedURLs int `json:"disallowed_urls,omitempty"` // URLs robots.txt disallows for "*"
	DateFallbacks  int `json:"date_fallbacks,omitempty"`  // Rows whose lastmod fell back to the generation time
}

// RunRecord is the persisted outcome of one generation run
type RunRecord struct {
	ID           string        `json:"id"`
	Status       RunStatus     `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	OutputDir    string        `json:"output_dir"`
	RootURL      string        `json:"root_url,omitempty"`
	ConfigSHA256 string        `json:"config_sha256,omitempty"`
	TotalURLs    int           `json:"total_urls"`
	TotalFiles   int           `json:"total_files"`
	ErrorType    string        `json:"error_type,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Batches      []BatchResult `json:"batches"`
}
