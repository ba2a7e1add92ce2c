package parser

import (
	"errors"
	"testing"
)

func TestDigitsOnly(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "review count", input: "1,234 reviews", expected: "1234"},
		{name: "parenthesised", input: "(98,765)", expected: "98765"},
		{name: "no digits", input: "no reviews", expected: ""},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DigitsOnly(tt.input); got != tt.expected {
				t.Errorf("DigitsOnly(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	got, err := ParseCount("(12,345)")
	if err != nil {
		t.Fatalf("parse count: %v", err)
	}
	if got != int64(12345) {
		t.Fatalf("ParseCount = %#v, want int64(12345)", got)
	}

	got, err = ParseCount("")
	if err != nil {
		t.Fatalf("parse empty count: %v", err)
	}
	if got != "" {
		t.Fatalf("ParseCount(\"\") = %#v, want empty string", got)
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "canadian dollars", input: "CDN$ 19.99", expected: "19.99"},
		{name: "dollar sign", input: "  $9.99 ", expected: "9.99"},
		{name: "pound sign", input: "£51.77", expected: "51.77"},
		{name: "free", input: "Free to Play", expected: "Free to Play"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePrice(tt.input); got != tt.expected {
				t.Errorf("NormalizePrice(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseReviewTooltip(t *testing.T) {
	pct, threshold, err := ParseReviewTooltip("92% of the 4,211 user reviews for this game are positive.")
	if err != nil {
		t.Fatalf("parse tooltip: %v", err)
	}
	if pct != 92 {
		t.Fatalf("pct = %v, want 92", pct)
	}
	if threshold != "positive" {
		t.Fatalf("threshold = %q, want %q", threshold, "positive")
	}

	if _, _, err := ParseReviewTooltip("Need more user reviews to generate a score"); !errors.Is(err, ErrInsufficientReviews) {
		t.Fatalf("expected ErrInsufficientReviews, got %v", err)
	}
	if _, _, err := ParseReviewTooltip("mostly positive"); err == nil {
		t.Fatalf("expected error for tooltip without percentage")
	}
	if _, _, err := ParseReviewTooltip("80% of reviews"); err == nil {
		t.Fatalf("expected error for tooltip without threshold")
	}
}

func TestDetailValue(t *testing.T) {
	block := NormalizeDetailsBlock("\nTitle:\nPortal 2\n\nGenre: Puzzle\nDeveloper: Valve\nFranchise:\n")

	tests := []struct {
		field  string
		want   string
		wantOK bool
	}{
		{field: "Title", want: "Portal 2", wantOK: true},
		{field: "Genre", want: "Puzzle", wantOK: true},
		{field: "Developer", want: "Valve", wantOK: true},
		{field: "Publisher", want: "", wantOK: false},
		{field: "Franchise", want: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := DetailValue(block, tt.field)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("DetailValue(%q) = %q, %v; want %q, %v", tt.field, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestListingSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "punctuation removed", input: "Title: the witcher 3: wild hunt\nGenre: RPG", expected: "The_Witcher_3_Wild_Hunt"},
		{name: "leading newline", input: "\nTitle: Portal\nGenre: Puzzle\n", expected: "Portal"},
		{name: "no genre", input: "Title: Stardew Valley", expected: "Stardew_Valley"},
		{name: "accented letters kept", input: "Title: Pokémon Café Mix\nGenre: Casual", expected: "Pokémon_Café_Mix"},
		{name: "non latin letters kept", input: "Title: 東方 Project\nGenre: Shooter", expected: "東方_Project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ListingSlug(tt.input); got != tt.expected {
				t.Errorf("ListingSlug(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestImageBaseName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "https://cdn.example.test/ratings/esrb/m.png?v=2", expected: "m"},
		{input: "/images/pegi_16.jpg", expected: "pegi_16"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		if got := ImageBaseName(tt.input); got != tt.expected {
			t.Errorf("ImageBaseName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
