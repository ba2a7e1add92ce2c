// Package pipeline persists scraped batches, one output unit per page or listing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-scrape-storefront/models"
)

// ErrPipelineClosed is returned when Persist is called after Close.
var ErrPipelineClosed = errors.New("pipeline: closed")

// Batch kinds.
const (
	KindSearch  = "search"
	KindListing = "listing"
)

// Batch is the set of records persisted to one output unit.
type Batch struct {
	// Name identifies the unit, e.g. "p3_l12_Some_Game". File sinks append
	// the format extension.
	Name    string
	Kind    string
	Schema  models.Schema
	Records []models.Record
	// Failures counts the records in the batch that are failure records.
	Failures int
}

// Sink stores batches. Persist reports written=false when the unit already
// exists and nothing was written.
type Sink interface {
	Persist(ctx context.Context, batch Batch) (written bool, err error)
	// Exists reports whether any unit whose name starts with prefix is stored.
	Exists(ctx context.Context, prefix string) (bool, error)
	// Targets reads the listing targets out of every stored search batch.
	Targets(ctx context.Context) ([]models.ListingTarget, error)
	Close() error
}

// StorageError marks a failure of the storage backend. It is the one error
// that aborts a crawl.
type StorageError struct {
	Op    string
	Batch string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Batch, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Stats counts what the pipeline persisted.
type Stats struct {
	Written        int
	Skipped        int
	Records        int
	FailureRecords int
}

// Pipeline conforms batches to their schema and hands them to a sink.
type Pipeline struct {
	sink   Sink
	logger *slog.Logger

	mu     sync.Mutex
	stats  Stats
	closed bool
}

// NewPipeline wraps sink. logger may be nil.
func NewPipeline(sink Sink, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		sink:   sink,
		logger: logger.With("component", "pipeline"),
	}
}

// Persist stores batch through the sink. Records are conformed to the batch
// schema first, so every stored row carries exactly the schema's columns.
func (p *Pipeline) Persist(ctx context.Context, batch Batch) (bool, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return false, ErrPipelineClosed
	}
	if batch.Name == "" {
		return false, fmt.Errorf("batch name cannot be empty")
	}
	if err := batch.Schema.Validate(); err != nil {
		return false, fmt.Errorf("batch %s: %w", batch.Name, err)
	}

	conformed := make([]models.Record, len(batch.Records))
	for i, rec := range batch.Records {
		conformed[i] = batch.Schema.Conform(rec)
	}
	batch.Records = conformed

	written, err := p.sink.Persist(ctx, batch)
	if err != nil {
		p.logger.Error("persist failed", slog.String("batch", batch.Name), slog.Any("error", err))
		return false, err
	}

	p.mu.Lock()
	if written {
		p.stats.Written++
		p.stats.Records += len(batch.Records)
		p.stats.FailureRecords += batch.Failures
	} else {
		p.stats.Skipped++
	}
	p.mu.Unlock()

	if written {
		p.logger.Debug("batch persisted", slog.String("batch", batch.Name), slog.Int("records", len(batch.Records)))
	} else {
		p.logger.Info("batch exists, skipping", slog.String("batch", batch.Name))
	}
	return written, nil
}

// Exists reports whether a unit whose name starts with prefix is already stored.
func (p *Pipeline) Exists(ctx context.Context, prefix string) (bool, error) {
	return p.sink.Exists(ctx, prefix)
}

// Targets returns the listing targets recorded in stored search batches.
func (p *Pipeline) Targets(ctx context.Context) ([]models.ListingTarget, error) {
	return p.sink.Targets(ctx)
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close closes the sink. Further Persist calls fail with ErrPipelineClosed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.sink.Close()
}
