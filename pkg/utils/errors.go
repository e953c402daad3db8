package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrConfigValidation = errors.New("configuration validation error")
	ErrMissingColumn    = errors.New("column missing from row")
	ErrDataFetch        = errors.New("data source fetch failed")
	// ErrCompression and ErrDateParse are recoverable: the run continues with a fallback.
	ErrCompression = errors.New("compression failed")
	ErrDateParse   = errors.New("modified date could not be parsed")
	ErrParsing     = errors.New("parsing error")    // Wraps specific parsing error (XML, template, row)
	ErrFilesystem  = errors.New("filesystem error") // Wraps os errors
	ErrDatabase    = errors.New("database error")   // Wraps badger errors

	// Remote robots.txt fetching
	ErrRetryFailed     = errors.New("request failed after all retries")
	ErrClientHTTPError = errors.New("client HTTP error")
	ErrServerHTTPError = errors.New("server HTTP error")
	ErrOtherHTTPError  = errors.New("non-2xx HTTP status")
)

// MissingColumnError identifies the batch and column of a template or row mismatch.
type MissingColumnError struct {
	Batch  string
	Column string
}

func (e *MissingColumnError) Error() string {
	if e.Batch == "" {
		return fmt.Sprintf("%s: %q", ErrMissingColumn, e.Column)
	}
	return fmt.Sprintf("%s: batch %q references column %q", ErrMissingColumn, e.Batch, e.Column)
}

// Is lets errors.Is(err, ErrMissingColumn) match.
func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}

// WrapErrorf adds formatted context in front of err. Returns nil if err is nil.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrMissingColumn):
		return "Config_MissingColumn"
	case errors.Is(err, ErrDataFetch):
		errMsg := strings.ToLower(err.Error())
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(errMsg, "timeout") {
			return "DataFetch_Timeout"
		}
		if strings.Contains(errMsg, "connection refused") {
			return "DataFetch_ConnectionRefused"
		}
		return "DataFetch_Other"
	case errors.Is(err, ErrCompression):
		return "Output_Compression"
	case errors.Is(err, ErrDateParse):
		return "Content_DateParse"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "XML") {
			return "Content_ParsingXML"
		}
		if strings.Contains(errMsg, "template") {
			return "Content_ParsingTemplate"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		if errors.Is(err, os.ErrExist) {
			return "Filesystem_Exist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrClientHTTPError):
		return "HTTP_Client"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_Server"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_Other"
	case errors.Is(err, ErrRetryFailed):
		return "HTTP_RetryFailed"
	}

	// Context errors
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	return "Unknown"
}
