package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

const stateFileName = "watch_state.json"

// JobState is the last run of one watched configuration
type JobState struct {
	LastRunTime         time.Time `json:"last_run_time"`
	LastRunSuccess      bool      `json:"last_run_success"`
	URLCount            int       `json:"url_count"`
	RootURL             string    `json:"root_url,omitempty"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures,omitempty"`
}

// WatchState is the persisted content of watch_state.json
type WatchState struct {
	Jobs      map[string]JobState `json:"jobs"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// StateManager persists per-job run state so a restarted watcher keeps its schedule
type StateManager struct {
	stateDir  string
	statePath string
	now       func() time.Time
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a state manager writing under stateDir
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		now:       time.Now,
		state:     WatchState{Jobs: make(map[string]JobState)},
	}
}

// Load reads the state file. A missing file is a fresh start.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{Jobs: make(map[string]JobState)}
			return nil
		}
		return fmt.Errorf("%w: read watch state: %w", utils.ErrFilesystem, err)
	}

	var loaded WatchState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("%w: watch state file: %v", utils.ErrParsing, err)
	}
	if loaded.Jobs == nil {
		loaded.Jobs = make(map[string]JobState)
	}
	m.state = loaded
	return nil
}

// Save writes the state file, replacing it atomically
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = m.now()
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: create state directory: %w", utils.ErrFilesystem, err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal watch state: %w", err)
	}

	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: write watch state: %w", utils.ErrFilesystem, err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return fmt.Errorf("%w: replace watch state: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// GetJobState returns the state of job
func (m *StateManager) GetJobState(job string) (JobState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Jobs[job]
	return state, ok
}

// RecordRun stores the outcome of a run of job
func (m *StateManager) RecordRun(job string, urlCount int, rootURL string, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state.Jobs[job]
	next := JobState{
		LastRunTime:    m.now(),
		LastRunSuccess: runErr == nil,
		URLCount:       urlCount,
		RootURL:        rootURL,
	}
	if runErr != nil {
		next.ErrorMessage = runErr.Error()
		next.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		// Keep pointing at the last published index.
		next.RootURL = prev.RootURL
	}
	m.state.Jobs[job] = next
}

// ShouldRun reports whether job has never run or its interval has elapsed
func (m *StateManager) ShouldRun(job string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Jobs[job]
	if !ok {
		return true
	}
	return m.now().Sub(state.LastRunTime) >= interval
}

// NextRunTime returns when job is due next
func (m *StateManager) NextRunTime(job string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Jobs[job]
	if !ok {
		return m.now()
	}
	return state.LastRunTime.Add(interval)
}

// Jobs returns a copy of all job states
func (m *StateManager) Jobs() map[string]JobState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]JobState, len(m.state.Jobs))
	for k, v := range m.state.Jobs {
		result[k] = v
	}
	return result
}
