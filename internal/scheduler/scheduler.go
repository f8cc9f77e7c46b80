// Package scheduler runs autonomous agent passes for every active student on
// a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/service/agent"
)

// Config holds scheduler settings.
type Config struct {
	Enabled     bool
	Interval    time.Duration
	Objective   string
	Model       string
	Concurrency int
	// MaxStudents bounds how many students one pass visits.
	MaxStudents int
}

// Runner is the agent operation a pass invokes. *agent.Service implements it.
type Runner interface {
	RunAutonomous(ctx context.Context, studentID uuid.UUID, in agent.AutonomousInput) (agent.AutonomousResult, error)
}

// StudentLister returns the students a pass should visit.
type StudentLister interface {
	ListActiveStudents(ctx context.Context, limit int) ([]model.Student, error)
}

// PassResult summarizes one pass over all active students.
type PassResult struct {
	Students    int
	Runs        int
	AppliedSafe int
	Failed      int
}

// Scheduler triggers autonomous runs.
type Scheduler struct {
	cfg      Config
	runner   Runner
	students StudentLister
	logger   *slog.Logger
}

// New creates a Scheduler, filling zero config fields with defaults.
func New(cfg Config, runner Runner, students StudentLister, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxStudents <= 0 {
		cfg.MaxStudents = 100
	}
	return &Scheduler{cfg: cfg, runner: runner, students: students, logger: logger}
}

// Run blocks, running a pass on each tick until ctx is canceled. It returns
// immediately when the scheduler is disabled.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler: disabled")
		return
	}
	s.logger.Info("scheduler: started", "interval", s.cfg.Interval, "concurrency", s.cfg.Concurrency)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return
		case <-ticker.C:
			if _, err := s.Pass(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("scheduler: pass failed", "error", err)
			}
		}
	}
}

// Pass runs one autonomous run per active student with bounded concurrency.
// A failing student is logged and counted; it does not stop the pass.
func (s *Scheduler) Pass(ctx context.Context) (PassResult, error) {
	students, err := s.students.ListActiveStudents(ctx, s.cfg.MaxStudents)
	if err != nil {
		return PassResult{}, err
	}

	var runs, applied, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, st := range students {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.runner.RunAutonomous(gctx, st.ID, agent.AutonomousInput{Objective: s.cfg.Objective, Model: s.cfg.Model})
			if err != nil {
				failed.Add(1)
				s.logger.Warn("scheduler: autonomous run failed", "student_id", st.ID, "error", err)
				return nil
			}
			runs.Add(1)
			applied.Add(int64(res.AppliedSafe))
			return nil
		})
	}
	err = g.Wait()

	res := PassResult{
		Students:    len(students),
		Runs:        int(runs.Load()),
		AppliedSafe: int(applied.Load()),
		Failed:      int(failed.Load()),
	}
	s.logger.Info("scheduler: pass complete",
		"students", res.Students, "runs", res.Runs, "applied_safe", res.AppliedSafe, "failed", res.Failed)
	return res, err
}
