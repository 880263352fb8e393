package provisioning

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Step names.
const (
	StepOwner    = "resolve-owner"
	StepTenant   = "resolve-tenant"
	StepContract = "create-contract"
	StepSchedule = "materialize-schedule"
	StepTenants  = "attach-tenants"
)

// Step is one unit of the provisioning saga. Compensate undoes Run and is
// called in reverse order when a later step fails; nil means nothing to undo.
type Step struct {
	Name        string
	Description string
	Run         func(ctx context.Context, st *state) error
	Compensate  func(ctx context.Context, st *state) error
}

// StepError reports the step at which provisioning aborted.
type StepError struct {
	Step string
	Err  error
	// CompensationErrs lists compensations that failed while unwinding.
	CompensationErrs []error
}

func (e *StepError) Error() string {
	if len(e.CompensationErrs) > 0 {
		return fmt.Sprintf("provisioning step %s: %v (%d compensations failed)", e.Step, e.Err, len(e.CompensationErrs))
	}
	return fmt.Sprintf("provisioning step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type saga struct {
	steps  []Step
	tracer trace.Tracer
	log    *zap.Logger
}

// run executes the steps in order. On failure it compensates every completed
// step in reverse and returns a *StepError.
func (s saga) run(ctx context.Context, st *state) error {
	done := make([]Step, 0, len(s.steps))
	for _, step := range s.steps {
		stepCtx, span := s.tracer.Start(ctx, "provisioning."+step.Name,
			trace.WithAttributes(attribute.String("saga.step", step.Name)))
		err := step.Run(stepCtx, st)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if err != nil {
			s.log.Warn("provisioning step failed, compensating",
				zap.String("step", step.Name),
				zap.Int("completed", len(done)),
				zap.Error(err),
			)
			return &StepError{Step: step.Name, Err: err, CompensationErrs: s.compensate(ctx, done, st)}
		}
		done = append(done, step)
	}
	return nil
}

func (s saga) compensate(ctx context.Context, done []Step, st *state) []error {
	// Compensation must finish even if the caller gave up.
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		cctx, span := s.tracer.Start(ctx, "provisioning.compensate."+step.Name)
		if err := step.Compensate(cctx, st); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Error("compensation failed", zap.String("step", step.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("compensating %s: %w", step.Name, err))
		}
		span.End()
	}
	return errs
}
