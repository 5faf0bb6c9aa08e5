// Package saga runs ordered workflows whose steps carry their own undo.
// Completed steps are compensated in reverse order when a later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step is one external call of a workflow. Compensate may be nil for steps
// that are not rolled back.
type Step struct {
	Name       string
	Forward    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// ErrOutcomeUnknown marks a step that timed out and had not reported back
// by the end of its grace period.
var ErrOutcomeUnknown = errors.New("step outcome unknown after timeout")

// Error is returned when a workflow fails. It unwraps to the cause of the
// failing step. CompensationErrors holds every rollback call that failed and
// every step whose outcome stayed unknown.
type Error struct {
	Workflow           string
	RunID              string
	Step               string
	Completed          []string
	Cause              error
	CompensationErrors []error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed at step %s: %v", e.Workflow, e.Step, e.Cause)
	if len(e.CompensationErrors) > 0 {
		msg += fmt.Sprintf(" (%d compensation calls failed: %v)", len(e.CompensationErrors), e.CompensationError())
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NeedsReconciliation reports whether the rollback left side effects behind.
func (e *Error) NeedsReconciliation() bool {
	return len(e.CompensationErrors) > 0
}

func (e *Error) CompensationError() error {
	return errors.Join(e.CompensationErrors...)
}

type Result struct {
	RunID     string
	Completed []string
}

type Runner struct {
	logger      *zap.Logger
	stepTimeout time.Duration
}

// NewRunner builds a runner that bounds every forward and compensation call
// by stepTimeout. A zero timeout leaves calls unbounded.
func NewRunner(logger *zap.Logger, stepTimeout time.Duration) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, stepTimeout: stepTimeout}
}

func (r *Runner) Run(ctx context.Context, workflow string, steps []Step) (*Result, error) {
	runID := uuid.NewString()
	log := r.logger.With(zap.String("workflow", workflow), zap.String("run_id", runID))

	completed := make([]Step, 0, len(steps))
	for _, step := range steps {
		err := ctx.Err()
		if err == nil {
			err = r.call(ctx, step.Forward)
		}
		if err != nil {
			log.Warn("saga step failed", zap.String("step", step.Name), zap.Error(err))
			sagaErr := &Error{
				Workflow:  workflow,
				RunID:     runID,
				Step:      step.Name,
				Completed: names(completed),
				Cause:     err,
			}
			toUndo := completed
			var timeout *timeoutError
			if errors.As(err, &timeout) {
				switch settled, lateErr := r.awaitLate(timeout); {
				case !settled:
					sagaErr.CompensationErrors = append(sagaErr.CompensationErrors, fmt.Errorf("%s: %w", step.Name, ErrOutcomeUnknown))
					r.compensateWhenSettled(ctx, log, step, timeout)
				case lateErr == nil:
					log.Warn("saga step succeeded after timeout", zap.String("step", step.Name))
					toUndo = append(toUndo, step)
				}
			}
			sagaErr.CompensationErrors = append(sagaErr.CompensationErrors, r.compensate(ctx, log, toUndo)...)
			if sagaErr.NeedsReconciliation() {
				log.Error("saga compensation incomplete",
					zap.String("step", step.Name),
					zap.Int("failed_compensations", len(sagaErr.CompensationErrors)),
					zap.Error(sagaErr.CompensationError()))
			}
			return nil, sagaErr
		}
		completed = append(completed, step)
		log.Debug("saga step completed", zap.String("step", step.Name))
	}

	log.Info("saga completed", zap.Int("steps", len(completed)))
	return &Result{RunID: runID, Completed: names(completed)}, nil
}

// compensate undoes completed steps newest first. It keeps going after a
// failed compensation and returns every failure.
func (r *Runner) compensate(ctx context.Context, log *zap.Logger, completed []Step) []error {
	// rollback must outlive a cancelled or expired request
	ctx = context.WithoutCancel(ctx)

	var failures []error
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := r.call(ctx, step.Compensate); err != nil {
			log.Error("saga compensation failed", zap.String("step", step.Name), zap.Error(err))
			failures = append(failures, fmt.Errorf("compensate %s: %w", step.Name, err))
			continue
		}
		log.Info("saga step compensated", zap.String("step", step.Name))
	}
	return failures
}

func (r *Runner) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.stepTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return &timeoutError{after: r.stepTimeout, cause: callCtx.Err(), late: done}
	}
}

// timeoutError keeps the channel of a call the runner stopped waiting for,
// so a late result can still be observed.
type timeoutError struct {
	after time.Duration
	cause error
	late  <-chan error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("step timed out after %s: %v", e.after, e.cause)
}

func (e *timeoutError) Unwrap() error {
	return e.cause
}

// awaitLate waits one more step timeout for a timed-out call to report.
func (r *Runner) awaitLate(timeout *timeoutError) (bool, error) {
	grace := time.NewTimer(r.stepTimeout)
	defer grace.Stop()
	select {
	case err := <-timeout.late:
		return true, err
	case <-grace.C:
		return false, nil
	}
}

// compensateWhenSettled undoes a step in the background if it eventually
// succeeds after the workflow already returned.
func (r *Runner) compensateWhenSettled(ctx context.Context, log *zap.Logger, step Step, timeout *timeoutError) {
	if step.Compensate == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := <-timeout.late; err != nil {
			log.Info("saga step failed after timeout", zap.String("step", step.Name), zap.Error(err))
			return
		}
		if err := r.call(ctx, step.Compensate); err != nil {
			log.Error("saga late compensation failed", zap.String("step", step.Name), zap.Error(err))
			return
		}
		log.Warn("saga step compensated after late success", zap.String("step", step.Name))
	}()
}

func names(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}

// Describe summarises a failed workflow for operators.
func Describe(err *Error) string {
	if len(err.Completed) == 0 {
		return fmt.Sprintf("%s failed at %s before any change was made", err.Workflow, err.Step)
	}
	return fmt.Sprintf("%s failed at %s after %s", err.Workflow, err.Step, strings.Join(err.Completed, ", "))
}
