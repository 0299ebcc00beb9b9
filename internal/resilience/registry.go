package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// DependencyHealth is the health of one guarded dependency.
type DependencyHealth struct {
	// Name is the dependency identifier.
	Name string

	// CircuitState is the current circuit breaker state.
	CircuitState gobreaker.State

	// Counts contains circuit breaker statistics.
	Counts gobreaker.Counts

	// LastSuccessAt is the time of the last successful call.
	LastSuccessAt *time.Time

	// LastFailureAt is the time of the last failed call.
	LastFailureAt *time.Time

	// LastError is the most recent error message, if any.
	LastError string
}

// IsHealthy returns true if the circuit is closed.
func (h *DependencyHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true if the circuit is half-open.
func (h *DependencyHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true if the circuit is open.
func (h *DependencyHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks guarded dependencies and their outcomes.
type Registry struct {
	mu           sync.RWMutex
	dependencies map[string]*registeredDependency
}

type registeredDependency struct {
	executor      *Executor
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// GlobalRegistry is the default dependency registry.
var GlobalRegistry = NewRegistry()

// NewRegistry creates a new dependency registry.
func NewRegistry() *Registry {
	return &Registry{
		dependencies: make(map[string]*registeredDependency),
	}
}

// Register adds an executor to the registry, replacing any with the same name.
func (r *Registry) Register(name string, executor *Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dependencies[name] = &registeredDependency{executor: executor}
}

// Unregister removes a dependency from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dependencies, name)
}

// RecordSuccess records a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.dependencies[name]; ok {
		now := time.Now()
		d.lastSuccessAt = &now
	}
}

// RecordFailure records a failed call.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.dependencies[name]; ok {
		now := time.Now()
		d.lastFailureAt = &now
		if err != nil {
			d.lastError = err.Error()
		}
	}
}

// GetHealth returns the health of a dependency, or nil if unknown.
func (r *Registry) GetHealth(name string) *DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.dependencies[name]
	if !ok {
		return nil
	}
	return d.health(name)
}

// GetAllHealth returns the health of every dependency, sorted by name.
func (r *Registry) GetAllHealth() []*DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*DependencyHealth, 0, len(r.dependencies))
	for name, d := range r.dependencies {
		health = append(health, d.health(name))
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return health
}

// GetDependencyNames returns the sorted names of all dependencies.
func (r *Registry) GetDependencyNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.dependencies))
	for name := range r.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DependencyCount returns the number of registered dependencies.
func (r *Registry) DependencyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dependencies)
}

func (d *registeredDependency) health(name string) *DependencyHealth {
	return &DependencyHealth{
		Name:          name,
		CircuitState:  d.executor.CircuitBreakerState(),
		Counts:        d.executor.CircuitBreakerCounts(),
		LastSuccessAt: d.lastSuccessAt,
		LastFailureAt: d.lastFailureAt,
		LastError:     d.lastError,
	}
}
