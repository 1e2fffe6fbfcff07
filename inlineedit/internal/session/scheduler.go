package session

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Step is one dependency load.
type Step struct {
	Name string
	// Hard steps fail the run. A failed soft step is logged and counted as
	// satisfied.
	Hard bool
	// Done reports whether the step is already satisfied; such steps are
	// skipped.
	Done func() bool
	Run  func(ctx context.Context) error
	// Satisfy records completion. Called after a successful run, and after
	// a failed run of a soft step.
	Satisfy func()
}

// Stage groups steps that run concurrently. Stages run in order.
type Stage []Step

// Pending reports whether any step of the stages still has to run.
func Pending(stages ...Stage) bool {
	for _, st := range stages {
		for _, s := range st {
			if s.Done == nil || !s.Done() {
				return true
			}
		}
	}
	return false
}

// RunStages runs each stage to completion before starting the next. A
// hard failure cancels the other steps of its stage and stops the run; it
// is returned as a *StepError. A soft step cut short by that cancellation
// is not marked satisfied.
func RunStages(ctx context.Context, logger *slog.Logger, stages ...Stage) error {
	for _, st := range stages {
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range st {
			if s.Done != nil && s.Done() {
				continue
			}
			g.Go(func() error {
				err := s.Run(gctx)
				switch {
				case err != nil && s.Hard:
					return &StepError{Step: s.Name, Err: err}
				case err != nil && gctx.Err() != nil:
					return nil
				case err != nil:
					logger.WarnContext(ctx, "session: optional step failed", "step", s.Name, "error", err)
				}
				if s.Satisfy != nil {
					s.Satisfy()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
