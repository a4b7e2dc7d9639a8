// ABOUTME: Minimal saga runner for multi-step writes with per-step failure policies
// ABOUTME: Makes accepted inconsistency windows an explicit property, not an accident

package chatapi

import "context"

// failurePolicy decides what a saga does when a step fails.
type failurePolicy int

const (
	// abortSaga stops the saga and surfaces the step's error to the caller.
	abortSaga failurePolicy = iota
	// continueLogged records the failure and proceeds to the next step,
	// trading strict consistency for forward progress.
	continueLogged
)

// sagaStep is one ordered step of a multi-step write.
type sagaStep struct {
	name      string
	onFailure failurePolicy
	run       func(ctx context.Context) error
}

// runSaga executes steps in order, applying each step's failure policy.
func (c *Client) runSaga(ctx context.Context, name string, steps []sagaStep) error {
	for _, step := range steps {
		err := step.run(ctx)
		if err == nil {
			continue
		}
		if step.onFailure == continueLogged {
			c.logger.Warn("saga step failed, continuing",
				"saga", name,
				"step", step.name,
				"error", err)
			continue
		}
		c.logger.Error("saga step failed, aborting",
			"saga", name,
			"step", step.name,
			"error", err)
		return err
	}
	return nil
}
