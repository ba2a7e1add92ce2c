// Package extract turns parsed storefront pages into schema-conformant records.
//
// Listing pages are read by a set of independent accessors. A failing
// accessor nulls only its own fields, and a failure of the whole assembly
// yields the null record of the same schema, so every processed listing
// produces exactly one row with a fixed column set.
package extract

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-storefront/models"
)

// MissFunc is called once for every field an accessor could not fill.
type MissFunc func(field string, err error)

// Extractor assembles listing records from listing page documents.
type Extractor struct {
	schema    models.Schema
	accessors []accessor
	logger    *slog.Logger
	onMiss    MissFunc
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSystemRequirements enables the system requirement columns.
func WithSystemRequirements() Option {
	return func(e *Extractor) {
		e.accessors = append(e.accessors, systemRequirementsAccessor)
		e.schema = e.schema.With(systemRequirementsAccessor.fields...)
	}
}

// WithLogger sets the logger used for per-field debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger.With("component", "extractor")
		}
	}
}

// WithMissFunc registers a callback for field misses.
func WithMissFunc(fn MissFunc) Option {
	return func(e *Extractor) {
		e.onMiss = fn
	}
}

// NewListingExtractor returns an extractor for the listing schema.
func NewListingExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		schema:    models.ListingSchema.With(),
		accessors: append([]accessor(nil), listingAccessors...),
		logger:    slog.Default().With("component", "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the column set shared by assembled and failure records.
func (e *Extractor) Schema() models.Schema {
	return e.schema
}

// Assemble runs every accessor against doc and merges their fields into one
// record conformed to the extractor's schema. Accessor errors and panics
// null the accessor's fields; the returned error reports assembly-wide
// failures only.
func (e *Extractor) Assemble(doc *goquery.Document) (models.Record, error) {
	if doc == nil {
		return nil, errors.New("assemble: nil document")
	}

	merged := make(models.Record, len(e.schema))
	for _, a := range e.accessors {
		rec, err := e.run(a, doc)
		for _, field := range a.fields {
			v, ok := rec[field]
			if err == nil && ok && v != nil {
				merged[field] = v
				continue
			}
			e.miss(a, field, err)
		}
		for k := range rec {
			if !e.schema.Has(k) {
				return nil, fmt.Errorf("assemble: accessor %s returned field %q outside the schema", a.name, k)
			}
		}
	}
	return e.schema.Conform(merged), nil
}

// Extract assembles a record from doc. When assembly fails the null record
// of the same schema is returned and fallback is true.
func (e *Extractor) Extract(doc *goquery.Document) (rec models.Record, fallback bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("listing assembly panicked, using failure record", slog.Any("panic", r))
			rec, fallback = e.schema.Null(), true
		}
	}()

	rec, err := e.Assemble(doc)
	if err != nil {
		e.logger.Warn("listing assembly failed, using failure record", slog.Any("error", err))
		return e.schema.Null(), true
	}
	return rec, false
}

func (e *Extractor) run(a accessor, doc *goquery.Document) (rec models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("accessor %s panicked: %v", a.name, r)
		}
	}()
	return a.fn(doc)
}

func (e *Extractor) miss(a accessor, field string, err error) {
	if err == nil {
		err = missing(field)
	}
	e.logger.Debug("field missing", slog.String("accessor", a.name), slog.String("field", field), slog.Any("error", err))
	if e.onMiss != nil {
		e.onMiss(field, err)
	}
}
