package runtime

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/tandem-ha/tandem/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace for Tandem workloads
	DefaultNamespace = "tandem"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdDriver implements Driver against a local containerd daemon.
// Workloads are containerd containers addressed by ID; "running" means
// the container has a live task in the Running or Paused state.
type ContainerdDriver struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdDriver connects to containerd at socketPath
func NewContainerdDriver(socketPath string) (*ContainerdDriver, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdDriver{
		client:    client,
		namespace: DefaultNamespace,
	}, nil
}

// Close closes the containerd client connection
func (d *ContainerdDriver) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

// Exists reports whether the named container is known to containerd
func (d *ContainerdDriver) Exists(ctx context.Context, name string) (bool, error) {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	_, err := d.client.LoadContainer(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load container %s: %w", name, err)
	}
	return true, nil
}

// Status returns the observed state of the named container
func (d *ContainerdDriver) Status(ctx context.Context, name string) (types.WorkloadState, error) {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	container, err := d.client.LoadContainer(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return types.WorkloadStateUnknown, ErrNotFound
		}
		return types.WorkloadStateUnknown, fmt.Errorf("failed to load container %s: %w", name, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task means the container exists but is not running
		return types.WorkloadStateStopped, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.WorkloadStateUnknown, fmt.Errorf("failed to get task status: %w", err)
	}

	switch status.Status {
	case containerd.Running, containerd.Paused, containerd.Pausing:
		return types.WorkloadStateRunning, nil
	default:
		return types.WorkloadStateStopped, nil
	}
}

// Start starts the named container by creating and starting a task for it
func (d *ContainerdDriver) Start(ctx context.Context, name string) error {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	container, err := d.client.LoadContainer(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load container %s: %w", name, err)
	}

	// Already running?
	if task, err := container.Task(ctx, nil); err == nil {
		if status, err := task.Status(ctx); err == nil && status.Status == containerd.Running {
			return nil
		}
		// A dead task must be deleted before a new one can be created
		if _, err := task.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete stale task for %s: %w", name, err)
		}
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task for %s: %w", name, err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task for %s: %w", name, err)
	}

	return nil
}

// Stop stops the named container. Immediate stops send SIGKILL right
// away; graceful stops send SIGTERM and escalate after graceTimeout.
func (d *ContainerdDriver) Stop(ctx context.Context, name string, immediate bool, graceTimeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	container, err := d.client.LoadContainer(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load container %s: %w", name, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task, nothing to stop
		return nil
	}

	sig := syscall.SIGTERM
	if immediate {
		sig = syscall.SIGKILL
	}

	stopCtx, cancel := context.WithTimeout(ctx, graceTimeout)
	defer cancel()

	if err := task.Kill(stopCtx, sig); err != nil {
		return fmt.Errorf("failed to kill task for %s: %w", name, err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task %s: %w", name, err)
	}

	select {
	case <-statusC:
		// Task exited
	case <-stopCtx.Done():
		// Grace period elapsed, force kill
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to force kill task for %s: %w", name, err)
		}
		if _, err := task.Wait(ctx); err != nil {
			return fmt.Errorf("failed to wait for killed task %s: %w", name, err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task for %s: %w", name, err)
	}

	return nil
}

// Create provisions a named container from an image so a fresh host can
// be seeded with the workloads the controller expects to manage. The
// image must already be pullable from the configured registry.
func (d *ContainerdDriver) Create(ctx context.Context, name, imageRef string, env []string, mounts []specs.Mount) error {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	image, err := d.client.Pull(ctx, imageRef, containerd.WithPullUnpack)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}
	if len(mounts) > 0 {
		opts = append(opts, oci.WithMounts(mounts))
	}

	_, err = d.client.NewContainer(
		ctx,
		name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(name+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", name, err)
	}

	return nil
}
