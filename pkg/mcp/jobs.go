package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a generation job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsActive reports whether the job has not finished yet
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// Job is a background generation into one output directory
type Job struct {
	ID           string    `json:"id"`
	OutputDir    string    `json:"output_dir"`
	Status       JobStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	RootURL      string    `json:"root_url,omitempty"`
	URLCount     int       `json:"url_count"`
	FileCount    int       `json:"file_count"`
	ErrorMessage string    `json:"error_message,omitempty"`

	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager tracks background jobs. At most one job runs per output directory, since two
// runs writing the same tree would interleave files.
type JobManager struct {
	jobs  map[string]*Job
	mu    sync.RWMutex
	byDir map[string]string // outputDir -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:  make(map[string]*Job),
		byDir: make(map[string]string),
	}
}

// CreateJob registers a pending job for outputDir. If one is already active there, it is
// returned with created=false.
func (m *JobManager) CreateJob(outputDir string) (job Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byDir[outputDir]; ok {
		if existing := m.jobs[id]; existing != nil && existing.Status.IsActive() {
			return *existing, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		ID:        uuid.New().String(),
		OutputDir: outputDir,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[j.ID] = j
	m.byDir[outputDir] = j.ID
	return *j, true
}

// GetJob returns a snapshot of the job
func (m *JobManager) GetJob(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// IsRunning reports whether a job is active for outputDir
func (m *JobManager) IsRunning(outputDir string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byDir[outputDir]
	return ok && m.jobs[id] != nil && m.jobs[id].Status.IsActive()
}

// Start marks the job running and returns the context the run must honour
func (m *JobManager) Start(jobID string) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return context.Background()
	}
	if j.Status == JobStatusPending {
		j.Status = JobStatusRunning
	}
	return j.ctx
}

// Finish records the outcome of a job. A job already cancelled stays cancelled.
func (m *JobManager) Finish(jobID string, status JobStatus, rootURL string, urls, files int, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return
	}
	if j.Status == JobStatusCancelled {
		status = JobStatusCancelled
	}
	j.Status = status
	j.CompletedAt = time.Now()
	j.RootURL = rootURL
	j.URLCount = urls
	j.FileCount = files
	if errMsg != "" {
		j.ErrorMessage = errMsg
	}
	j.cancel()
	if m.byDir[j.OutputDir] == j.ID {
		delete(m.byDir, j.OutputDir)
	}
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || !j.Status.IsActive() {
		return false
	}
	m.cancelLocked(j)
	return true
}

// CancelAll cancels every active job
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status.IsActive() {
			m.cancelLocked(j)
		}
	}
}

func (m *JobManager) cancelLocked(j *Job) {
	j.cancel()
	j.Status = JobStatusCancelled
	j.CompletedAt = time.Now()
	if m.byDir[j.OutputDir] == j.ID {
		delete(m.byDir, j.OutputDir)
	}
}

// ListJobs returns snapshots of all jobs, oldest first
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].StartedAt.Before(jobs[b].StartedAt) })
	return jobs
}
