// Package runtime is the narrow interface between the console service and
// the container engine. Everything the lifecycle code needs from Docker is
// expressed here as six operations, so tests can substitute a stub and the
// rest of the service never imports the Docker SDK directly.
package runtime // import "github.com/shellboxhq/shellbox/console-service/runtime"

import (
	"context"

	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// A Runtime manages the containers backing consoles. Create and
// ExecLineStream failures surface to the caller; Stop and Destroy failures on
// cleanup paths are the caller's to swallow, by policy.
type Runtime interface {
	// Create creates and starts a new console container sized to memoryGB,
	// named after the owner, and returns its ID. If the container was created
	// but failed to start, the ID is returned alongside the error so the
	// caller can destroy it.
	Create(ctx context.Context, image string, owner types.Owner, memoryGB int) (types.ConsoleID, error)

	// Start starts a stopped console.
	Start(ctx context.Context, id types.ConsoleID) error

	// Stop stops a running console.
	Stop(ctx context.Context, id types.ConsoleID) error

	// Restart stops and starts a console.
	Restart(ctx context.Context, id types.ConsoleID) error

	// Destroy force-removes a console. Destroying a console that no longer
	// exists returns an error for which IsNotFound reports true.
	Destroy(ctx context.Context, id types.ConsoleID) error

	// ExecLineStream runs cmd inside the console and returns its combined
	// output as a channel of lines. The channel is closed when the command's
	// output ends or ctx is cancelled.
	ExecLineStream(ctx context.Context, id types.ConsoleID, cmd []string) (<-chan string, error)
}

// A CommandError reports a failed engine operation. Op names the operation
// ("create", "stop", ...) so cleanup paths can log which command they are
// swallowing.
type CommandError struct {
	Op     string
	Detail error
}

func (e *CommandError) Error() string {
	return utils.Sprintf("runtime %s failed: %s", e.Op, e.Detail)
}

func (e *CommandError) Unwrap() error {
	return e.Detail
}
