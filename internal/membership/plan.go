package membership

import (
	"context"
	"fmt"
	"log/slog"
)

type StepName string

const (
	StepClearAuthoredRows   StepName = "clear-authored-rows"
	StepReassignCreatedBy   StepName = "reassign-created-by"
	StepDeleteMembershipRow StepName = "delete-membership-row"
	StepDeleteIdentity      StepName = "delete-identity"
)

// Step is one cleanup action. A failed advisory step is logged and the plan
// carries on; any other failure stops the plan.
type Step struct {
	Name     StepName
	Advisory bool
	Run      func(ctx context.Context) error
}

// Plan is an ordered list of steps. Each step must be safe to have run even
// if a later one fails.
type Plan []Step

type Outcome struct {
	Completed        []StepName
	AdvisoryFailures map[StepName]error
}

type StepError struct {
	Step StepName
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Execute runs the steps in order and stops at the first hard failure.
func (p Plan) Execute(ctx context.Context, logger *slog.Logger) (Outcome, error) {
	out := Outcome{AdvisoryFailures: map[StepName]error{}}
	for _, step := range p {
		if err := step.Run(ctx); err != nil {
			if step.Advisory {
				logger.Warn("advisory cleanup step failed", "step", step.Name, "error", err)
				out.AdvisoryFailures[step.Name] = err
				continue
			}
			return out, &StepError{Step: step.Name, Err: err}
		}
		out.Completed = append(out.Completed, step.Name)
	}
	return out, nil
}

// Names lists the plan's step names in order.
func (p Plan) Names() []StepName {
	names := make([]StepName, len(p))
	for i, step := range p {
		names[i] = step.Name
	}
	return names
}
