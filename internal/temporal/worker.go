package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker starts a worker serving BuildWorkflow and the methods of acts
// on taskQueue. maxBuilds bounds concurrent activity executions; zero keeps
// the SDK default.
func StartWorker(c client.Client, taskQueue string, maxBuilds int, acts *Activities) (worker.Worker, error) {
	if acts == nil || acts.Registry == nil {
		return nil, fmt.Errorf("starting worker: activities need a plugin registry")
	}
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: maxBuilds,
	})

	w.RegisterWorkflow(BuildWorkflow)
	w.RegisterActivity(acts)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}
