package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-storefront/parser"
)

// ListingKind tells single product pages apart from pages the listing stage skips.
type ListingKind int

const (
	KindProduct ListingKind = iota
	KindCollection
	KindOther
)

func (k ListingKind) String() string {
	switch k {
	case KindProduct:
		return "product"
	case KindCollection:
		return "collection"
	default:
		return "other"
	}
}

// Classification is the result of ClassifyListing.
type Classification struct {
	Kind ListingKind
	// Slug is the file name fragment built from the product title.
	Slug string
	// Heading is the collection heading text, lower-cased.
	Heading string
}

// ClassifyListing inspects a listing page before extraction. Product pages
// carry the #genresAndManufacturer details block; packages and bundles show an
// h2.no_margin heading instead.
func ClassifyListing(doc *goquery.Document) Classification {
	if doc == nil {
		return Classification{Kind: KindOther}
	}
	if details := doc.Find("#genresAndManufacturer").First(); details.Length() > 0 {
		return Classification{
			Kind: KindProduct,
			Slug: parser.ListingSlug(renderText(details)),
		}
	}
	if heading := doc.Find("h2.no_margin").First(); heading.Length() > 0 {
		return Classification{
			Kind:    KindCollection,
			Heading: strings.ToLower(strings.TrimSpace(heading.Text())),
		}
	}
	return Classification{Kind: KindOther}
}
