package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/tandem-ha/tandem/pkg/types"
)

// FakeDriver is an in-memory Driver used by tests and by the two-node
// e2e harness. It tracks per-workload state and counts lifecycle calls
// so tests can assert on exactly what the core asked the engine to do.
type FakeDriver struct {
	mu     sync.Mutex
	states map[string]types.WorkloadState

	// Errors to inject, keyed by workload name
	StatusErr map[string]error
	StartErr  map[string]error
	StopErr   map[string]error

	StartCalls int
	StopCalls  int
}

// NewFakeDriver creates a FakeDriver seeded with the given workloads in
// the given state.
func NewFakeDriver(state types.WorkloadState, names ...string) *FakeDriver {
	f := &FakeDriver{
		states:    make(map[string]types.WorkloadState),
		StatusErr: make(map[string]error),
		StartErr:  make(map[string]error),
		StopErr:   make(map[string]error),
	}
	for _, n := range names {
		f.states[n] = state
	}
	return f
}

// SetState overrides the state of a workload
func (f *FakeDriver) SetState(name string, state types.WorkloadState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[name] = state
}

// Remove forgets a workload entirely, making it NotFound
func (f *FakeDriver) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, name)
}

// State returns the current state of a workload
func (f *FakeDriver) State(name string) types.WorkloadState {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[name]
	if !ok {
		return types.WorkloadStateUnknown
	}
	return s
}

// Exists implements Driver
func (f *FakeDriver) Exists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.states[name]
	return ok, nil
}

// Status implements Driver
func (f *FakeDriver) Status(ctx context.Context, name string) (types.WorkloadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.StatusErr[name]; err != nil {
		return types.WorkloadStateUnknown, err
	}
	s, ok := f.states[name]
	if !ok {
		return types.WorkloadStateUnknown, ErrNotFound
	}
	return s, nil
}

// Start implements Driver
func (f *FakeDriver) Start(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StartCalls++
	if err := f.StartErr[name]; err != nil {
		return err
	}
	if _, ok := f.states[name]; !ok {
		return ErrNotFound
	}
	f.states[name] = types.WorkloadStateRunning
	return nil
}

// Stop implements Driver
func (f *FakeDriver) Stop(ctx context.Context, name string, immediate bool, graceTimeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls++
	if err := f.StopErr[name]; err != nil {
		return err
	}
	if _, ok := f.states[name]; !ok {
		return ErrNotFound
	}
	f.states[name] = types.WorkloadStateStopped
	return nil
}
