// Package registry tracks which projects have an active run and carries the
// cooperative stop signal for each of them.
package registry

import "sync"

type entry struct {
	stopRequested bool
}

// RunRegistry is the process-wide map of active runs. It is safe for
// concurrent use; claims for the same project are serialized so exactly one of
// several racing callers wins.
type RunRegistry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty registry.
func New() *RunRegistry {
	return &RunRegistry{entries: make(map[string]*entry)}
}

// Claim marks the project active. It returns false if a run is already active.
// A successful claim starts with a clear stop signal.
func (r *RunRegistry) Claim(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[projectID]; ok {
		return false
	}
	r.entries[projectID] = &entry{}
	return true
}

// Release clears the active flag and any pending stop signal.
func (r *RunRegistry) Release(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, projectID)
}

// IsActive reports whether the project currently has a run.
func (r *RunRegistry) IsActive(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[projectID]
	return ok
}

// SignalStop asks the active run of the project to stop. It is a no-op when
// nothing is running and reports whether a run was signalled.
func (r *RunRegistry) SignalStop(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[projectID]
	if !ok {
		return false
	}
	e.stopRequested = true
	return true
}

// StopRequested reports whether the run of the project should stop.
func (r *RunRegistry) StopRequested(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[projectID]
	return ok && e.stopRequested
}

// Active returns the IDs of every project with a run.
func (r *RunRegistry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}
