package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-storefront/models"
	"github.com/aluiziolira/go-scrape-storefront/parser"
)

// PageSize is the number of results the storefront renders per search page.
const PageSize = 25

// ListingURL fills the {id} and {title} placeholders of a listing URL template.
func ListingURL(template, id, title string) string {
	return strings.NewReplacer("{id}", id, "{title}", url.PathEscape(title)).Replace(template)
}

// SearchURL fills the {page} placeholder of a search URL template.
func SearchURL(template string, page int) string {
	return strings.ReplaceAll(template, "{page}", strconv.Itoa(page))
}

// ExtractSearchPage returns one record per result row of a search page and
// the number of rows found. A page without rows yields PageSize null rows
// tagged with the page number.
func ExtractSearchPage(doc *goquery.Document, page int, listingURLTemplate string) ([]models.Record, int) {
	var rows *goquery.Selection
	if doc != nil {
		rows = doc.Find("#search_resultsRows > a")
	}
	if rows == nil || rows.Length() == 0 {
		return EmptySearchPage(page), 0
	}

	records := make([]models.Record, 0, rows.Length())
	rows.Each(func(i int, row *goquery.Selection) {
		rec := models.SearchResultSchema.Null()
		rec["page"] = int64(page)
		rec["listing_counter"] = int64(i + 1)
		for field, read := range searchFields {
			rec[field] = guarded(func() any { return read(row, listingURLTemplate) })
		}
		price := guarded(func() any { return readPrices(row) })
		if p, ok := price.([2]any); ok {
			rec["original_price"], rec["discount_price"] = p[0], p[1]
		}
		records = append(records, rec)
	})
	return records, len(records)
}

// EmptySearchPage is the failure batch of a search page that rendered no rows.
func EmptySearchPage(page int) []models.Record {
	records := make([]models.Record, PageSize)
	for i := range records {
		rec := models.SearchResultSchema.Null()
		rec["page"] = int64(page)
		records[i] = rec
	}
	return records
}

type searchField func(row *goquery.Selection, listingURLTemplate string) any

var searchFields = map[string]searchField{
	"title":          searchTitle,
	"url":            searchURL,
	"platform_names": searchPlatforms,
	"release_date":   searchReleased,
	"discount_pct":   searchDiscount,
}

// guarded evaluates fn, turning a panic into a null value.
func guarded(fn func() any) (v any) {
	defer func() {
		if recover() != nil {
			v = nil
		}
	}()
	return fn()
}

func nameBlock(row *goquery.Selection) *goquery.Selection {
	return row.Find("div.responsive_search_name_combined").First()
}

func rowTitle(row *goquery.Selection) (string, bool) {
	sel := nameBlock(row).Find(".title").First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

func searchTitle(row *goquery.Selection, _ string) any {
	if t, ok := rowTitle(row); ok {
		return t
	}
	return nil
}

func searchURL(row *goquery.Selection, template string) any {
	id, ok := row.Attr("data-ds-appid")
	if !ok || id == "" {
		return nil
	}
	title, ok := rowTitle(row)
	if !ok {
		return nil
	}
	return ListingURL(template, id, title)
}

func searchPlatforms(row *goquery.Selection, _ string) any {
	p := nameBlock(row).Children().First().Find("p").First()
	if p.Length() == 0 {
		return nil
	}
	var names []string
	p.Find("span").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if f := strings.Fields(class); len(f) > 0 {
			names = append(names, f[len(f)-1])
		}
	})
	return strings.Join(names, ",")
}

func searchReleased(row *goquery.Selection, _ string) any {
	sel := nameBlock(row).Find("div.search_released").First()
	if sel.Length() == 0 {
		return nil
	}
	return strings.TrimSpace(sel.Text())
}

func priceBlock(row *goquery.Selection) *goquery.Selection {
	return row.Find("div.search_price_discount_combined").First()
}

func searchDiscount(row *goquery.Selection, _ string) any {
	first := priceBlock(row).Children().Filter("div").First()
	if t := strings.TrimSpace(first.Text()); t != "" {
		return t
	}
	return nil
}

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// readPrices returns the original and discounted price of a row. Rows
// without a struck-through price fall back to the second price column as the
// original price and a null discounted price.
func readPrices(row *goquery.Selection) [2]any {
	block := priceBlock(row)
	if block.Length() == 0 {
		return [2]any{}
	}

	discounted := block.Find("div.search_price.discounted").First()
	if strike := discounted.Find("strike").First(); strike.Length() > 0 {
		original := strings.TrimSpace(strike.Text())
		current := strings.TrimSpace(strings.Replace(discounted.Text(), strike.Text(), "", 1))
		return [2]any{nonEmpty(parser.NormalizePrice(original)), nonEmpty(parser.NormalizePrice(current))}
	}

	second := block.Children().Filter("div").Eq(1)
	return [2]any{nonEmpty(parser.NormalizePrice(second.Text())), nil}
}
