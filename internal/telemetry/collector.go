package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/climate-telemetry/internal/result"
)

// Source is one independently collected upstream. Collect returns the number
// of records written.
type Source interface {
	Name() string
	Collect(ctx context.Context) result.Result[int]
}

// SourceFailure attributes an error to the source that produced it.
type SourceFailure struct {
	Source string
	Err    error
}

// CollectionError aggregates every failed source of one run.
type CollectionError struct {
	Failures []SourceFailure
}

func (e *CollectionError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Source, f.Err))
	}
	return "collection errors: " + strings.Join(parts, "; ")
}

func (e *CollectionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Failed reports whether the named source is part of the error.
func (e *CollectionError) Failed(source string) bool {
	for _, f := range e.Failures {
		if f.Source == source {
			return true
		}
	}
	return false
}

var errNoSources = errors.New("no collection sources configured")

// Collector runs every source concurrently and waits for all of them.
type Collector struct {
	sources []Source
	logger  *slog.Logger
}

// NewCollector creates a Collector over sources.
func NewCollector(logger *slog.Logger, sources ...Source) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		sources: sources,
		logger:  logger,
	}
}

// Collect runs one collection. A failing source never cancels or blocks the
// others; their writes stay committed and the failure is reported in the
// returned *CollectionError.
func (c *Collector) Collect(ctx context.Context) result.Result[result.Unit] {
	logger := c.logger.With("run_id", uuid.NewString())
	if len(c.sources) == 0 {
		logger.Error("No sources available to collect")
		return result.Err[result.Unit](errNoSources)
	}

	start := time.Now()
	outcomes := make([]result.Result[int], len(c.sources))

	var wg sync.WaitGroup
	for i, src := range c.sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = result.Err[int](fmt.Errorf("panic: %v", r))
				}
			}()
			outcomes[i] = src.Collect(ctx)
		}()
	}
	wg.Wait()

	var failures []SourceFailure
	written := 0
	for i, out := range outcomes {
		name := c.sources[i].Name()
		if out.IsErr() {
			logger.Warn("Source collection failed", "source", name, "err", out.Err())
			failures = append(failures, SourceFailure{Source: name, Err: out.Err()})
			continue
		}
		written += out.Value()
	}

	if len(failures) > 0 {
		err := &CollectionError{Failures: failures}
		logger.Error("Collection finished with errors",
			"failed", len(failures),
			"sources", len(c.sources),
			"records", written,
			"duration", time.Since(start),
			"err", err,
		)
		return result.Err[result.Unit](err)
	}

	logger.Info("Collection finished", "sources", len(c.sources), "records", written, "duration", time.Since(start))
	return result.Done()
}
