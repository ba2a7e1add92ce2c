// Package parser holds the pure text helpers used by the field accessors.
package parser

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInsufficientReviews is returned when a review tooltip carries no score.
var ErrInsufficientReviews = errors.New("need more user reviews")

const thresholdMarker = "for this game are "

var (
	nonDigit = regexp.MustCompile(`\D`)
	nonWord  = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
)

// DigitsOnly strips every non-digit character: "1,234 reviews" -> "1234".
// An input without digits yields "".
func DigitsOnly(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// ParseCount converts the digits embedded in text to an int64.
// When text carries no digits the empty string is returned unchanged so
// callers can tell "no digits" apart from a null cell.
func ParseCount(text string) (any, error) {
	digits := DigitsOnly(text)
	if digits == "" {
		return "", nil
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse count %q: %w", digits, err)
	}
	return n, nil
}

// NormalizePrice removes the currency prefix and surrounding whitespace.
func NormalizePrice(price string) string {
	price = strings.TrimSpace(price)
	if i := strings.Index(price, "$ "); i >= 0 {
		price = price[i+len("$ "):]
	}
	for _, symbol := range []string{"$", "£", "€"} {
		price = strings.TrimPrefix(price, symbol)
	}
	return strings.TrimSpace(price)
}

// ParseReviewTooltip splits a review summary tooltip such as
// "85% of the 1,234 user reviews for this game are positive." into the
// percentage and the threshold text ("positive").
func ParseReviewTooltip(tooltip string) (float64, string, error) {
	if strings.Contains(tooltip, "Need more user reviews") {
		return 0, "", ErrInsufficientReviews
	}
	pctText, _, found := strings.Cut(tooltip, "%")
	if !found {
		return 0, "", fmt.Errorf("no percentage in tooltip %q", tooltip)
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(pctText), 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse percentage: %w", err)
	}
	_, threshold, found := strings.Cut(tooltip, thresholdMarker)
	if !found {
		return 0, "", fmt.Errorf("no threshold in tooltip %q", tooltip)
	}
	return pct, strings.ReplaceAll(threshold, ".", ""), nil
}

// NormalizeDetailsBlock joins "Key:\nvalue" pairs onto one line and collapses
// blank lines, mirroring how the details block renders as text.
func NormalizeDetailsBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, ":\n", ": ")
	text = strings.ReplaceAll(text, "\n\n", "\n")
	text = strings.ReplaceAll(text, "\n\n", "\n")
	return text
}

// DetailValue returns the value following "field: " on its line of a
// normalised details block. ok is false when the field is absent or empty.
func DetailValue(block, field string) (string, bool) {
	_, after, found := strings.Cut(block, field+": ")
	if !found {
		return "", false
	}
	line, _, _ := strings.Cut(after, "\n")
	line = strings.TrimSpace(line)
	return line, line != ""
}

// ListingSlug builds a filesystem-safe title from the details block text:
// "Title: the witcher 3: wild hunt\nGenre: RPG" -> "The_Witcher_3_Wild_Hunt".
func ListingSlug(details string) string {
	s := strings.ToLower(details)
	if i := strings.Index(s, "\ngenre: "); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "title: "); i >= 0 {
		s = s[i+len("title: "):]
	}
	s = cases.Title(language.English).String(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	return nonWord.ReplaceAllString(s, "")
}

// ImageBaseName returns the file name of an image URL without its extension.
func ImageBaseName(src string) string {
	src, _, _ = strings.Cut(src, "?")
	base := path.Base(src)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
