package shared

import (
	"context"
	"fmt"
	"log/slog"
)

// SagaError reports the step that failed together with every
// compensation failure hit while rolling back, so callers can persist
// the full rollback outcome instead of just the trigger.
type SagaError struct {
	Step             string
	Err              error
	CompensationErrs []error
}

func (e *SagaError) Error() string {
	if len(e.CompensationErrs) > 0 {
		return fmt.Sprintf("saga step %s: %v (rollback hit %d compensation failure(s))", e.Step, e.Err, len(e.CompensationErrs))
	}
	return fmt.Sprintf("saga step %s: %v", e.Step, e.Err)
}

func (e *SagaError) Unwrap() error { return e.Err }

// SagaStep couples a named forward action with its compensation.
type SagaStep struct {
	Name       string
	Run        func(context.Context) error
	Compensate func(context.Context) error
}

// Saga executes steps in order. When a step fails, the compensations of
// every previously completed step run in reverse order so partial state
// is rolled back. Compensation failures are logged, never swallowed
// silently, and reported alongside the original failure.
type Saga struct {
	logger *slog.Logger
	steps  []SagaStep
}

// NewSaga builds an empty saga.
func NewSaga(logger *slog.Logger) *Saga {
	return &Saga{logger: logger}
}

// AddStep appends a step. Steps without a Run func are skipped.
func (s *Saga) AddStep(step SagaStep) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs the saga to completion or rolls back.
func (s *Saga) Execute(ctx context.Context) error {
	completed := make([]SagaStep, 0, len(s.steps))
	for _, step := range s.steps {
		if step.Run == nil {
			continue
		}
		if err := step.Run(ctx); err != nil {
			return &SagaError{
				Step:             step.Name,
				Err:              err,
				CompensationErrs: s.rollback(ctx, completed),
			}
		}
		completed = append(completed, step)
	}
	return nil
}

func (s *Saga) rollback(ctx context.Context, completed []SagaStep) []error {
	var failures []error
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			failures = append(failures, fmt.Errorf("compensate %s: %w", step.Name, err))
			if s.logger != nil {
				s.logger.Error("saga compensation failed",
					slog.String("step", step.Name),
					slog.Any("error", err))
			}
		}
	}
	return failures
}
