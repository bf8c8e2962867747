package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/tandem-ha/tandem/pkg/types"
)

// ErrNotFound is returned when a named workload does not exist
var ErrNotFound = errors.New("workload not found")

// Driver is the workload engine contract consumed by the failover core.
// Implementations manage pre-provisioned named containers; the core never
// schedules or places workloads, it only flips them on and off.
type Driver interface {
	// Exists reports whether the named workload is known to the engine
	Exists(ctx context.Context, name string) (bool, error)

	// Status returns the observed state of the named workload.
	// Returns ErrNotFound if the workload does not exist.
	Status(ctx context.Context, name string) (types.WorkloadState, error)

	// Start starts the named workload. Starting an already-running
	// workload is a no-op.
	Start(ctx context.Context, name string) error

	// Stop stops the named workload. When immediate is true the workload
	// is killed without a grace period; otherwise it gets graceTimeout to
	// exit cleanly before being killed.
	Stop(ctx context.Context, name string, immediate bool, graceTimeout time.Duration) error
}
