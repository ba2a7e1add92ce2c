package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

const (
	paginationLeftXPath  = `//div[contains(@class,"search_pagination_left")]`
	paginationRightXPath = `//div[contains(@class,"search_pagination_right")]`
	pageButtonXPath      = paginationRightXPath + `//*[contains(concat(" ", normalize-space(@class), " "), " pagebtn ")]`
)

var integerPattern = regexp.MustCompile(`\d+`)

// Pagination is the state reported by a search page's pagination control.
type Pagination struct {
	Total int
	// MaxPage is the last page holding results: ceil(Total / PageSize).
	MaxPage int
	// CurrentPage is derived from the "showing a - b" range.
	CurrentPage int
	// Pages lists the linked page numbers other than the last page,
	// ascending.
	Pages []int
}

// Movement reports which directions the pagination control allows.
type Movement struct {
	CanMoveBack    bool
	CanMoveForward bool
}

// ReadPagination parses the pagination control of a search page, for example
// "showing 26 - 50 of 1234" with links 1 2 3 ... 50.
func ReadPagination(root *html.Node) (Pagination, error) {
	left, err := htmlquery.Query(root, paginationLeftXPath)
	if err != nil {
		return Pagination{}, fmt.Errorf("query pagination: %w", err)
	}
	if left == nil {
		return Pagination{}, missing("div.search_pagination_left")
	}

	text := strings.ReplaceAll(htmlquery.InnerText(left), ",", "")
	matches := integerPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return Pagination{}, fmt.Errorf("no listing count in %q", strings.TrimSpace(text))
	}
	nums := make([]int, len(matches))
	for i, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil {
			return Pagination{}, fmt.Errorf("parse pagination number %q: %w", m, err)
		}
		nums[i] = n
	}

	p := Pagination{Total: nums[len(nums)-1]}
	p.MaxPage = (p.Total + PageSize - 1) / PageSize
	p.CurrentPage = currentPage(nums[:len(nums)-1])

	links, err := htmlquery.QueryAll(root, paginationRightXPath+"/a")
	if err != nil {
		return Pagination{}, fmt.Errorf("query page links: %w", err)
	}
	seen := make(map[int]bool)
	for _, a := range links {
		label := strings.TrimSpace(htmlquery.InnerText(a))
		n, err := strconv.Atoi(label)
		if err != nil {
			continue
		}
		if n == p.MaxPage || seen[n] {
			continue
		}
		seen[n] = true
		p.Pages = append(p.Pages, n)
	}
	sort.Ints(p.Pages)
	return p, nil
}

// currentPage maps the bounds of the visible range to a page number. A range
// with any bound below PageSize is page 1.
func currentPage(bounds []int) int {
	current := 1
	for i, b := range bounds {
		q := b / PageSize
		if q == 0 {
			return 1
		}
		if i == 0 || q > current {
			current = q
		}
	}
	return current
}

// ReadMovement reports whether the control renders back and forward
// buttons. Missing buttons mean the direction is unavailable.
func ReadMovement(root *html.Node) Movement {
	buttons, err := htmlquery.QueryAll(root, pageButtonXPath)
	if err != nil || len(buttons) == 0 {
		return Movement{}
	}
	first := strings.TrimSpace(htmlquery.InnerText(buttons[0]))
	last := strings.TrimSpace(htmlquery.InnerText(buttons[len(buttons)-1]))
	return Movement{
		CanMoveBack:    first == "<",
		CanMoveForward: last == ">",
	}
}
