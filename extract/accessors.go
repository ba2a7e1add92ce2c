package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-storefront/models"
	"github.com/aluiziolira/go-scrape-storefront/parser"
)

// ErrMissing is wrapped by accessors when the markup they read is absent.
var ErrMissing = errors.New("element not found")

func missing(selector string) error {
	return fmt.Errorf("%w: %s", ErrMissing, selector)
}

// accessor reads a disjoint set of listing fields from a document.
// Fields it leaves out of the returned record are null.
type accessor struct {
	name   string
	fields []string
	fn     func(*goquery.Document) (models.Record, error)
}

var listingAccessors = []accessor{
	{name: "all_reviews_count", fields: []string{"review_type_all"}, fn: allReviewsCount},
	{name: "overall_review_rating", fields: []string{"overall_review_rating"}, fn: overallReviewRating},
	{name: "overall_review_pct", fields: []string{"pct_overall", "pct_overall_threshold"}, fn: overallReviewPct},
	{name: "language_review_pct", fields: []string{"pct_overall_lang", "pct_overall_threshold_lang"}, fn: languageReviewPct},
	{name: "platforms", fields: []string{"platforms"}, fn: platforms},
	{name: "user_tags", fields: []string{"user_defined_tags"}, fn: userTags},
	{name: "achievements", fields: []string{"num_steam_achievements"}, fn: achievements},
	{name: "drm", fields: []string{"drm"}, fn: drm},
	{name: "rating", fields: []string{"rating"}, fn: rating},
	{name: "rating_descriptors", fields: []string{"rating_descriptors"}, fn: ratingDescriptors},
	{name: "sub_review_counts", fields: subReviewKeys, fn: subReviewCounts},
	{name: "release_details", fields: releaseDetailFields, fn: releaseDetails},
	{name: "languages", fields: []string{"languages", "num_languages"}, fn: languages},
}

var systemRequirementsAccessor = accessor{
	name:   "system_requirements",
	fields: models.SystemRequirementsSchema,
	fn:     systemRequirements,
}

var subReviewKeys = []string{"review_type_positive", "review_type_negative", "review_language_mine"}

var releaseDetailFields = []string{
	"Title",
	"Genre",
	"Release Date",
	"Early Access Release Date",
	"Developer",
	"Publisher",
	"Franchise",
}

func reviewCount(doc *goquery.Document, key string) (any, error) {
	sel := doc.Find(fmt.Sprintf(`label[for=%q] span.user_reviews_count`, key)).First()
	if sel.Length() == 0 {
		return nil, missing("label[for=" + key + "]")
	}
	return parser.ParseCount(sel.Text())
}

func allReviewsCount(doc *goquery.Document) (models.Record, error) {
	if n, err := reviewCount(doc, "review_type_all"); err == nil {
		return models.Record{"review_type_all": n}, nil
	}

	spans := doc.Find("div.summary_section").First().Find("span")
	if spans.Length() < 2 {
		return nil, missing("div.summary_section span")
	}
	digits := parser.DigitsOnly(spans.Eq(1).Text())
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse review count: %w", err)
	}
	return models.Record{"review_type_all": n}, nil
}

func overallReviewRating(doc *goquery.Document) (models.Record, error) {
	if sel := doc.Find("span.game_review_summary").First(); sel.Length() > 0 {
		return models.Record{"overall_review_rating": strings.TrimSpace(sel.Text())}, nil
	}
	sel := doc.Find("div.summary_section").First().Find("span").First()
	if sel.Length() == 0 {
		return nil, missing("div.summary_section span")
	}
	return models.Record{"overall_review_rating": strings.TrimSpace(sel.Text())}, nil
}

func reviewPct(span *goquery.Selection, pctKey, thresholdKey string) (models.Record, error) {
	tooltip, ok := span.Attr("data-tooltip-html")
	if !ok {
		return nil, missing("span[data-tooltip-html]")
	}
	pct, threshold, err := parser.ParseReviewTooltip(tooltip)
	if err != nil {
		return nil, err
	}
	return models.Record{pctKey: pct, thresholdKey: threshold}, nil
}

func overallReviewPct(doc *goquery.Document) (models.Record, error) {
	span := doc.Find("div.summary_section").First().Find("span").First()
	return reviewPct(span, "pct_overall", "pct_overall_threshold")
}

func languageReviewPct(doc *goquery.Document) (models.Record, error) {
	span := doc.Find("div.user_reviews_filter_score.visible").First().
		Find("div").First().
		Find("span").Last()
	return reviewPct(span, "pct_overall_lang", "pct_overall_threshold_lang")
}

func platforms(doc *goquery.Document) (models.Record, error) {
	block := doc.Find("div.game_area_purchase_platform").First()
	if block.Length() == 0 {
		return models.Record{"platforms": "Unknown"}, nil
	}
	var names []string
	block.Find("span").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		for _, c := range strings.Fields(class) {
			if c != "platform_img" {
				names = append(names, c)
			}
		}
	})
	return models.Record{"platforms": strings.Join(names, ", ")}, nil
}

func userTags(doc *goquery.Document) (models.Record, error) {
	tags := texts(doc.Find("div.popular_tags").First().Find("a"))
	if len(tags) == 0 {
		return nil, missing("div.popular_tags a")
	}
	return models.Record{"user_defined_tags": strings.Join(tags, ", ")}, nil
}

func achievements(doc *goquery.Document) (models.Record, error) {
	sel := doc.Find("div#bannerAchievements.responsive_banner_link span").First()
	if sel.Length() == 0 {
		return nil, missing("div#bannerAchievements span")
	}
	n, err := strconv.ParseInt(parser.DigitsOnly(sel.Text()), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse achievements: %w", err)
	}
	return models.Record{"num_steam_achievements": n}, nil
}

func drm(doc *goquery.Document) (models.Record, error) {
	notices := texts(doc.Find("div.DRM_notice").First().Find("div"))
	if len(notices) == 0 {
		return nil, missing("div.DRM_notice div")
	}
	return models.Record{"drm": strings.Join(notices, ", ")}, nil
}

func rating(doc *goquery.Document) (models.Record, error) {
	src, ok := doc.Find("div.shared_game_rating div.game_rating_icon img").First().Attr("src")
	if !ok {
		return nil, missing("div.game_rating_icon img[src]")
	}
	return models.Record{"rating": parser.ImageBaseName(src)}, nil
}

func ratingDescriptors(doc *goquery.Document) (models.Record, error) {
	sel := doc.Find("div.shared_game_rating div.game_rating_descriptors p").First()
	if sel.Length() == 0 {
		return nil, missing("div.game_rating_descriptors p")
	}
	text := strings.ReplaceAll(renderText(sel), "\r", "")
	return models.Record{"rating_descriptors": strings.ReplaceAll(text, "\n", ", ")}, nil
}

func subReviewCounts(doc *goquery.Document) (models.Record, error) {
	rec := models.Record{}
	for _, key := range subReviewKeys {
		if n, err := reviewCount(doc, key); err == nil {
			rec[key] = n
		}
	}
	return rec, nil
}

func releaseDetails(doc *goquery.Document) (models.Record, error) {
	sel := doc.Find("div.details_block").First()
	if sel.Length() == 0 {
		return nil, missing("div.details_block")
	}
	block := parser.NormalizeDetailsBlock(renderText(sel))
	rec := models.Record{}
	for _, field := range releaseDetailFields {
		if v, ok := parser.DetailValue(block, field); ok {
			rec[field] = v
		}
	}
	return rec, nil
}

func languages(doc *goquery.Document) (models.Record, error) {
	var langs []string
	doc.Find("div#languageTable table").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		first := row.Children().First()
		if goquery.NodeName(first) != "td" {
			return
		}
		langs = append(langs, strings.TrimSpace(first.Text()))
	})
	if len(langs) == 0 {
		return nil, missing("div#languageTable table")
	}
	return models.Record{
		"languages":     strings.Join(langs, ", "),
		"num_languages": int64(len(langs)),
	}, nil
}

func requirementList(col *goquery.Selection) string {
	var items []string
	col.Find("li").Each(func(_ int, li *goquery.Selection) {
		items = append(items, "["+strings.TrimSpace(li.Text())+"]")
	})
	return strings.Join(items, ", ")
}

func systemRequirements(doc *goquery.Document) (models.Record, error) {
	rec := models.Record{}
	for _, os := range []string{"win", "mac"} {
		block := doc.Find(fmt.Sprintf(`div.game_area_sys_req[data-os=%q]`, os)).First()
		rec["minimum_"+os] = requirementList(block.Find("div.game_area_sys_req_leftCol").First())
		rec["recommended_"+os] = requirementList(block.Find("div.game_area_sys_req_rightCol").First())
	}
	return rec, nil
}
