package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/codegraph/internal/graph"
)

// BuildInput holds the workflow parameters.
type BuildInput struct {
	Root     string
	Language string
	// ImportTargets is "node" or "fqn"; empty means node.
	ImportTargets string
	// Persist stores the graph and its file dependencies in the graph
	// repository.
	Persist bool
}

// BuildOutput holds the workflow result.
type BuildOutput struct {
	BuildID      string
	Files        int
	Nodes        int
	Edges        int
	Build        []string
	Topological  []string
	Cycles       [][]string
	Diagnostics  []string
	Dependencies []graph.FileDependency
	Persisted    bool
}

// PersistInput carries the dependency edges of a finished build.
type PersistInput struct {
	BuildID      string
	Dependencies []graph.FileDependency
}

// BuildWorkflow builds the graph of one source tree and optionally persists
// its file dependencies.
func BuildWorkflow(ctx workflow.Context, input BuildInput) (*BuildOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
			// Bad input fails the same way on every attempt.
			NonRetryableErrorTypes: []string{ErrTypeStructural},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// Nil receiver: only the method name is used to address the activity.
	var a *Activities

	var out BuildOutput
	if err := workflow.ExecuteActivity(ctx, a.Build, input).Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	if input.Persist {
		persist := PersistInput{BuildID: out.BuildID, Dependencies: out.Dependencies}
		if err := workflow.ExecuteActivity(ctx, a.PersistDependencies, persist).Get(ctx, nil); err != nil {
			return nil, fmt.Errorf("persist: %w", err)
		}
		out.Persisted = true
	}

	return &out, nil
}
