package extract

import "testing"

func TestClassifyListing(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantKind    ListingKind
		wantSlug    string
		wantHeading string
	}{
		{
			name:     "product page",
			body:     listingHTML,
			wantKind: KindProduct,
			wantSlug: "Portal_2",
		},
		{
			name:        "package page",
			body:        `<html><body><h2 class="no_margin">Items included in this package</h2></body></html>`,
			wantKind:    KindCollection,
			wantHeading: "items included in this package",
		},
		{
			name:     "unknown page",
			body:     `<html><body><h1>Welcome</h1></body></html>`,
			wantKind: KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyListing(mustDocument(t, tt.body))
			if got.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", got.Kind, tt.wantKind)
			}
			if got.Slug != tt.wantSlug {
				t.Fatalf("slug = %q, want %q", got.Slug, tt.wantSlug)
			}
			if got.Heading != tt.wantHeading {
				t.Fatalf("heading = %q, want %q", got.Heading, tt.wantHeading)
			}
		})
	}
}

func TestClassifyNilDocument(t *testing.T) {
	if got := ClassifyListing(nil); got.Kind != KindOther {
		t.Fatalf("kind = %s, want other", got.Kind)
	}
}

func TestRenderTextLineBreaks(t *testing.T) {
	doc := mustDocument(t, `<div id="d"><b>Title:</b>   Half
	Life<br><div>Genre: <a>Action</a></div><script>var x = 1;</script></div>`)
	got := renderText(doc.Find("#d"))
	want := "Title: Half Life\nGenre: Action"
	if got != want {
		t.Fatalf("renderText = %q, want %q", got, want)
	}
}
