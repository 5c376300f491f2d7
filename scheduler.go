package relicdig

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hanlin-zhu/relicdig/store"
)

// Result is the per-job outcome of a scheduled batch.
type Result struct {
	TaskID       string   `json:"task_id"`
	ReportFolder string   `json:"report_folder"`
	Summary      *Summary `json:"summary,omitempty"`
	Err          error    `json:"-"`
}

// Scheduler runs report extractions concurrently across a credential
// pool. Each worker slot maps to one credential, so the effective
// parallelism never exceeds the pool size; within a task all LLM calls
// stay strictly sequential.
type Scheduler struct {
	cfg Config
}

// NewScheduler validates the credential pool and returns a scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if len(cfg.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	return &Scheduler{cfg: cfg}, nil
}

// Workers reports the effective worker count: the configured
// concurrency capped by the credential pool, never below one.
func (s *Scheduler) Workers() int {
	n := s.cfg.Concurrency
	if n < 1 {
		n = 1
	}
	if n > len(s.cfg.Credentials) {
		n = len(s.cfg.Credentials)
	}
	return n
}

// Run registers every job as a pending task up front, then drains the
// batch through the worker pool. Per-job failures land in the result
// slice; Run itself only fails on setup errors.
func (s *Scheduler) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	workers := s.Workers()
	slog.Info("scheduler starting", "jobs", len(jobs), "workers", workers,
		"credentials", len(s.cfg.Credentials))

	// Pre-register tasks so queued jobs are visible as pending before
	// a worker picks them up.
	setup, err := NewWorkflow(s.taskConfig(0))
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(jobs))
	for i := range jobs {
		results[i].ReportFolder = jobs[i].ReportFolder
		if jobs[i].TaskID != "" {
			results[i].TaskID = jobs[i].TaskID
			continue
		}
		taskID, err := setup.CreateTask(ctx, jobs[i].ReportFolder, jobs[i].ReportName)
		if err != nil {
			results[i].Err = err
			continue
		}
		jobs[i].TaskID = taskID
		results[i].TaskID = taskID
	}
	setup.Close()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range jobs {
		if results[i].Err != nil {
			continue
		}
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// Round-robin credential assignment keeps each provider
			// account within its own rate limit.
			wf, err := NewWorkflow(s.taskConfig(i % len(s.cfg.Credentials)))
			if err != nil {
				results[i].Err = err
				return
			}
			defer wf.Close()

			summary, err := wf.Run(ctx, job)
			results[i].Summary = summary
			results[i].Err = err
		}(i, jobs[i])
	}
	wg.Wait()

	completed := 0
	for _, r := range results {
		if r.Err == nil {
			completed++
		}
	}
	slog.Info("scheduler finished", "completed", completed, "failed", len(results)-completed)
	return results, nil
}

// Abort flags a task so its workflow stops at the next checkpoint.
func (s *Scheduler) Abort(ctx context.Context, taskID string) error {
	st, err := store.New(s.cfg.resolveDBPath())
	if err != nil {
		return err
	}
	defer st.Close()
	return st.UpdateTaskStatus(ctx, taskID, store.StatusAborted)
}

// taskConfig copies the base config with the pool credential at index i
// applied to the LLM settings.
func (s *Scheduler) taskConfig(i int) Config {
	cfg := s.cfg
	cfg.LLM = cfg.LLM.WithCredential(s.cfg.Credentials[i])
	return cfg
}
