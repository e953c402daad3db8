package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-gen/pkg/log"
	"github.com/Sriram-PR/sitemap-gen/pkg/models"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

const (
	runKeyPrefix = "run:"       // Prefix for run record keys in DB
	ledgerDBDir  = "run_ledger" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements RunStore using BadgerDB
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerStore opens (or creates) the run ledger under stateDir
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, ledgerDBDir)
	logger.Debugf("Opening run ledger at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogger(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}
	return &BadgerStore{db: db, log: logger}, nil
}

// runKey orders records by start time; the zero padded nanosecond stamp sorts lexically
func runKey(rec *models.RunRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runKeyPrefix, rec.StartedAt.UnixNano(), rec.ID))
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// SaveRun implements RunStore
func (s *BadgerStore) SaveRun(rec *models.RunRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: run record needs an ID", utils.ErrDatabase)
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal run %s: %w", utils.ErrParsing, rec.ID, err)
	}
	key := runKey(rec)

	err = s.dbUpdate(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, val))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in SaveRun: %v", err)
		return fmt.Errorf("%w: saving run '%s': %w", utils.ErrDatabase, rec.ID, err)
	}
	s.log.Debugf("Saved run %s (%s)", rec.ID, rec.Status)
	return nil
}

// scan walks run records newest first until fn returns false
func (s *BadgerStore) scan(fn func(key []byte, rec models.RunRecord) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek positions at the last key <= the seek key
		for it.Seek([]byte(runKeyPrefix + "\xff")); it.ValidForPrefix([]byte(runKeyPrefix)); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			var rec models.RunRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				s.log.Warnf("Skipping unreadable run record '%s': %v", string(key), err)
				continue
			}
			if !fn(key, rec) {
				return nil
			}
		}
		return nil
	})
}

// ListRuns implements RunStore
func (s *BadgerStore) ListRuns(limit int) ([]models.RunRecord, error) {
	var runs []models.RunRecord
	err := s.scan(func(_ []byte, rec models.RunRecord) bool {
		runs = append(runs, rec)
		return limit <= 0 || len(runs) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing runs: %w", utils.ErrDatabase, err)
	}
	return runs, nil
}

// LastRun implements RunStore
func (s *BadgerStore) LastRun() (*models.RunRecord, bool, error) {
	runs, err := s.ListRuns(1)
	if err != nil || len(runs) == 0 {
		return nil, false, err
	}
	return &runs[0], true, nil
}

// GetRun implements RunStore. IDs are not part of the key prefix, so this is a scan.
func (s *BadgerStore) GetRun(id string) (*models.RunRecord, bool, error) {
	var found *models.RunRecord
	err := s.scan(func(_ []byte, rec models.RunRecord) bool {
		if rec.ID == id {
			found = &rec
			return false
		}
		return true
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: looking up run '%s': %w", utils.ErrDatabase, id, err)
	}
	return found, found != nil, nil
}

// Prune implements RunStore
func (s *BadgerStore) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	var stale [][]byte
	seen := 0
	err := s.scan(func(key []byte, _ models.RunRecord) bool {
		seen++
		if seen > keep {
			stale = append(stale, key)
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("%w: scanning runs for pruning: %w", utils.ErrDatabase, err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = s.dbUpdate(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: pruning runs: %w", utils.ErrDatabase, err)
	}
	s.log.Infof("Pruned %d old run record(s), kept %d", len(stale), keep)
	return len(stale), nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close implements RunStore
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing run ledger: %v", err)
		return err
	}
	s.log.Debug("Run ledger closed.")
	return nil
}
