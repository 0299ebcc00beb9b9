package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for guarded operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded wraps the last error once all attempts have failed.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ExecutorConfig holds configuration for a guarded dependency.
type ExecutorConfig struct {
	// Name identifies the dependency in the registry and in logs.
	Name string

	// Timeout bounds a single attempt.
	// Default: 5 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts after the first.
	// Default: 3
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 2 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives the executor and its outcomes. Optional.
	Registry *Registry
}

// DefaultExecutorConfig returns sensible defaults for a dependency executor.
func DefaultExecutorConfig(name string) ExecutorConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ExecutorConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Executor runs calls against one dependency with a circuit breaker and
// exponential-backoff retries.
type Executor struct {
	circuitBreaker *gobreaker.CircuitBreaker[struct{}]
	config         ExecutorConfig
}

// NewExecutor creates a new executor and registers it when a registry is set.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}

	e := &Executor{
		circuitBreaker: NewCircuitBreaker[struct{}](cbConfig),
		config:         cfg,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, e)
	}
	return e
}

// Name returns the dependency name.
func (e *Executor) Name() string {
	return e.config.Name
}

// Do runs op through the circuit breaker, retrying failures with
// exponential backoff. Errors wrapped with Permanent are not retried.
// Returns ErrCircuitOpen without calling op when the circuit is open.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.config.InitialInterval
	bo.MaxInterval = e.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.config.MaxRetries), ctx)

	var attempts uint64
	var permanent bool
	operation := func() error {
		attempts++
		_, err := e.circuitBreaker.Execute(func() (struct{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()
			return struct{}{}, op(attemptCtx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = true
		}
		return err
	}

	err := backoff.Retry(operation, policy)
	if err == nil {
		e.record(nil)
		return nil
	}

	e.record(err)
	if permanent || errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
		return err
	}
	if attempts > e.config.MaxRetries {
		return errors.Join(ErrMaxRetriesExceeded, err)
	}
	return err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (e *Executor) record(err error) {
	if e.config.Registry == nil {
		return
	}
	if err == nil {
		e.config.Registry.RecordSuccess(e.config.Name)
		return
	}
	e.config.Registry.RecordFailure(e.config.Name, err)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (e *Executor) CircuitBreakerState() gobreaker.State {
	return e.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (e *Executor) CircuitBreakerCounts() gobreaker.Counts {
	return e.circuitBreaker.Counts()
}
