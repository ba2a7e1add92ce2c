// Package models defines the record and schema types shared by the scraper.
package models

import (
	"fmt"
	"sort"
)

// Record is one flat row of scraped values keyed by column name.
// A nil value is a null cell.
type Record map[string]any

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Schema is an ordered, fixed column list.
type Schema []string

// ListingSchema is the column set produced for a single listing page.
var ListingSchema = Schema{
	"review_type_all",
	"overall_review_rating",
	"pct_overall",
	"pct_overall_threshold",
	"pct_overall_lang",
	"pct_overall_threshold_lang",
	"platforms",
	"user_defined_tags",
	"num_steam_achievements",
	"drm",
	"rating",
	"rating_descriptors",
	"languages",
	"num_languages",
	"review_type_positive",
	"review_type_negative",
	"review_language_mine",
	"Title",
	"Genre",
	"Release Date",
	"Early Access Release Date",
	"Developer",
	"Publisher",
	"Franchise",
}

// SystemRequirementsSchema holds the optional system requirement columns.
var SystemRequirementsSchema = Schema{
	"minimum_win",
	"recommended_win",
	"minimum_mac",
	"recommended_mac",
}

// SearchResultSchema is the column set produced for each search result row.
var SearchResultSchema = Schema{
	"page",
	"listing_counter",
	"title",
	"url",
	"platform_names",
	"release_date",
	"discount_pct",
	"original_price",
	"discount_price",
}

// ListingFileColumns are appended to every persisted listing row.
var ListingFileColumns = Schema{"page_num", "listing_num"}

// Null returns the failure record for the schema: every column set to nil.
func (s Schema) Null() Record {
	r := make(Record, len(s))
	for _, k := range s {
		r[k] = nil
	}
	return r
}

// With returns a new schema with fields appended. Fields already present are ignored.
func (s Schema) With(fields ...string) Schema {
	out := make(Schema, len(s), len(s)+len(fields))
	copy(out, s)
	for _, f := range fields {
		if !out.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Has reports whether field is part of the schema.
func (s Schema) Has(field string) bool {
	for _, k := range s {
		if k == field {
			return true
		}
	}
	return false
}

// Conform returns a copy of r holding exactly the schema's keys.
// Missing keys become nil and keys outside the schema are dropped.
func (s Schema) Conform(r Record) Record {
	out := s.Null()
	for _, k := range s {
		if v, ok := r[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Row returns the record values in schema order.
func (s Schema) Row(r Record) []any {
	row := make([]any, len(s))
	for i, k := range s {
		row[i] = r[k]
	}
	return row
}

// Validate checks the schema has no empty or duplicate column names.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema is empty")
	}
	seen := make(map[string]struct{}, len(s))
	for _, k := range s {
		if k == "" {
			return fmt.Errorf("schema has an empty column name")
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("schema has duplicate column %q", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// ListingTarget identifies one listing page discovered on a search page.
type ListingTarget struct {
	Page    int
	Listing int
	URL     string
}
