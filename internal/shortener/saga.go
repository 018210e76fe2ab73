package shortener

import (
	"context"
	"errors"
	"fmt"
)

// Saga collects compensating actions for writes that must be all-or-nothing
// but span stores without a shared transaction.
type Saga struct {
	steps []compensation
}

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// Add registers undo for a write that just succeeded.
func (s *Saga) Add(name string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, compensation{name: name, undo: undo})
}

// Len returns the number of registered compensations.
func (s *Saga) Len() int {
	return len(s.steps)
}

// Rollback runs every compensation in reverse order of registration. It is
// not cut short by cancellation of ctx, and keeps going after a failed step.
func (s *Saga) Rollback(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error

	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	s.steps = nil

	return errors.Join(errs...)
}
