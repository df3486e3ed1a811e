package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Timeout bounds a full CheckAll pass.
	// Default: 5 seconds
	Timeout time.Duration

	// Concurrency limits how many checks run at once. Zero runs all checks
	// at once; 1 runs them sequentially in registration order.
	Concurrency int
}

// Report is the outcome of a CheckAll pass.
type Report struct {
	Status    Status
	Results   map[string]Result
	CheckedAt time.Time
}

// Aggregator runs a set of named checkers and folds their results.
type Aggregator struct {
	config AggregatorConfig

	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates an empty aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	return &Aggregator{
		config:   cfg,
		checkers: make(map[string]Checker),
	}
}

// Register adds c under its name, replacing any checker with that name.
func (a *Aggregator) Register(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := c.Name()
	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = c
}

// Unregister removes the checker called name.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.checkers[name]; !ok {
		return
	}
	delete(a.checkers, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Names returns checker names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// Check runs the checker called name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	c, ok := a.checkers[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrCheckerNotFound, name)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return run(ctx, c), nil
}

// CheckAll runs every registered checker. A checker that has not returned
// when the pass times out is reported unhealthy with ErrCheckTimeout.
func (a *Aggregator) CheckAll(ctx context.Context) (Report, error) {
	a.mu.RLock()
	checkers := make([]Checker, 0, len(a.order))
	for _, name := range a.order {
		checkers = append(checkers, a.checkers[name])
	}
	a.mu.RUnlock()

	if len(checkers) == 0 {
		return Report{}, ErrNoCheckers
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	results := make([]Result, len(checkers))
	var g errgroup.Group
	if a.config.Concurrency > 0 {
		g.SetLimit(a.config.Concurrency)
	}
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Results:   make(map[string]Result, len(checkers)),
		CheckedAt: time.Now(),
	}
	for i, c := range checkers {
		report.Results[c.Name()] = results[i]
	}
	report.Status = Overall(report.Results)
	return report, nil
}

// Overall folds results: any unhealthy result makes the whole unhealthy,
// otherwise any degraded result makes it degraded.
func Overall(results map[string]Result) Status {
	status := StatusHealthy
	for _, r := range results {
		if r.Status > status {
			status = r.Status
		}
	}
	return status
}

func run(ctx context.Context, c Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)

	go func() {
		r := c.Check(ctx)
		if r.Timestamp.IsZero() {
			r.Timestamp = start
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.WithDuration(time.Since(start))
	case <-ctx.Done():
		return Unhealthy("check timed out", ErrCheckTimeout).WithDuration(time.Since(start))
	}
}

// AsChecker exposes the aggregator as a single Checker named name.
func (a *Aggregator) AsChecker(name string) Checker {
	return NewCheckerFunc(name, func(ctx context.Context) Result {
		report, err := a.CheckAll(ctx)
		if err != nil {
			return Healthy("no checks registered")
		}

		details := make(map[string]any, len(report.Results))
		for n, r := range report.Results {
			details[n] = r.Status.String()
		}

		var r Result
		switch report.Status {
		case StatusHealthy:
			r = Healthy("all checks passed")
		case StatusDegraded:
			r = Degraded("some checks degraded")
		default:
			r = Unhealthy("some checks failed", ErrCheckFailed)
		}
		return r.WithDetails(details)
	})
}
