package watch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-gen/pkg/orchestrate"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// RunFunc performs one full generation
type RunFunc func(ctx context.Context) (*orchestrate.RunSummary, error)

// Scheduler regenerates the sitemaps of one configuration every interval. Every run is a full
// regeneration; runs never overlap.
type Scheduler struct {
	job      string
	run      RunFunc
	interval time.Duration
	state    *StateManager
	log      *logrus.Entry
}

// NewScheduler creates a scheduler for job (a name identifying the configuration in the state file)
func NewScheduler(job string, run RunFunc, interval time.Duration, stateDir string, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		job:      job,
		run:      run,
		interval: interval,
		state:    NewStateManager(stateDir),
		log:      log.WithFields(logrus.Fields{"component": "watch", "job": job}),
	}
}

// Run blocks until ctx is cancelled, generating whenever the job is due
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.state.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}
	s.logSchedule()

	s.RunIfDue(ctx)

	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-ticker.C:
			s.RunIfDue(ctx)
		}
	}
}

// RunIfDue runs the generation when the interval has elapsed and records the outcome.
// Returns whether a run happened.
func (s *Scheduler) RunIfDue(ctx context.Context) bool {
	if !s.state.ShouldRun(s.job, s.interval) {
		return false
	}

	s.log.Info("Regenerating sitemaps")
	summary, err := s.run(ctx)
	if ctx.Err() != nil {
		// A run cut short by shutdown is not recorded, so it is retried on the next start.
		s.log.Warnf("Run interrupted: %v", err)
		return true
	}

	urls, root := 0, ""
	if summary != nil {
		urls, root = summary.TotalURLs, summary.RootURL
	}
	if err != nil {
		s.log.WithField("error_type", utils.CategorizeError(err)).Errorf("Scheduled run failed: %v", err)
	}
	s.state.RecordRun(s.job, urls, root, err)
	if saveErr := s.state.Save(); saveErr != nil {
		s.log.Errorf("Failed to save watch state: %v", saveErr)
	}
	s.logNextRun()
	return true
}

// tickInterval returns how often to check whether the job is due: a tenth of the interval,
// clamped to [1m, 10m].
func (s *Scheduler) tickInterval() time.Duration {
	return min(max(s.interval/10, time.Minute), 10*time.Minute)
}

func (s *Scheduler) logSchedule() {
	state, ok := s.state.GetJobState(s.job)
	if !ok {
		s.log.Infof("Watching every %s; never run, generating now", FormatInterval(s.interval))
		return
	}
	status := "success"
	if !state.LastRunSuccess {
		status = "failed"
	}
	s.log.Infof("Watching every %s; last run %s (%s, %d URLs), next run %s",
		FormatInterval(s.interval),
		state.LastRunTime.Format(time.RFC3339),
		status,
		state.URLCount,
		s.state.NextRunTime(s.job, s.interval).Format(time.RFC3339))
}

func (s *Scheduler) logNextRun() {
	next := s.state.NextRunTime(s.job, s.interval)
	until := max(time.Until(next), 0)
	s.log.Infof("Next generation in %v (at %s)", until.Round(time.Second), next.Format("15:04:05"))
}

// Status is a snapshot of the watched job
type Status struct {
	Job string
	JobState
	NextRunTime time.Time
	NeverRun    bool
}

// Status returns the current state of the watched job
func (s *Scheduler) Status() Status {
	state, ok := s.state.GetJobState(s.job)
	return Status{
		Job:         s.job,
		JobState:    state,
		NextRunTime: s.state.NextRunTime(s.job, s.interval),
		NeverRun:    !ok,
	}
}

// FormatInterval formats a duration for display using the largest whole units, e.g. 1d12h
func FormatInterval(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		hours, mins := int(d.Hours()), int(d.Minutes())%60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days, hours := int(d.Hours())/24, int(d.Hours())%24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a Go duration with an optional leading day count: 30m, 24h, 7d, 1d12h.
// The result must be positive.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	invalid := fmt.Errorf("invalid interval %q (examples: 30m, 1h, 24h, 7d)", s)

	var d time.Duration
	if dayPart, rest, ok := strings.Cut(s, "d"); ok {
		days, err := strconv.Atoi(dayPart)
		if err != nil || days < 0 {
			return 0, invalid
		}
		d = time.Duration(days) * 24 * time.Hour
		s = rest
	}
	if s != "" {
		extra, err := time.ParseDuration(s)
		if err != nil {
			return 0, invalid
		}
		d += extra
	}
	if d <= 0 {
		return 0, invalid
	}
	return d, nil
}
