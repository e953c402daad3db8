package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/sitemap-gen/pkg/models"
)

// RunStore is the ledger of generation runs
type RunStore interface {
	// SaveRun stores a finished run. Records are keyed by start time, so saving the same
	// record twice overwrites it.
	SaveRun(rec *models.RunRecord) error

	// GetRun returns the run with the given ID, or found=false
	GetRun(id string) (rec *models.RunRecord, found bool, err error)

	// ListRuns returns up to limit runs, newest first. limit <= 0 returns all runs.
	ListRuns(limit int) ([]models.RunRecord, error)

	// LastRun returns the most recent run, or found=false on an empty ledger
	LastRun() (rec *models.RunRecord, found bool, err error)

	// Prune deletes all but the newest keep runs and returns how many were removed
	Prune(keep int) (int, error)

	// RunGC runs periodic value log garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}
