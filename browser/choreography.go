package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

var months = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// ScrollOptions controls ScrollPage.
type ScrollOptions struct {
	// By is the pixel distance between slow scroll steps.
	By int
	// MinPauses and MaxPauses bound how many steps pause. Equal values disable pausing.
	MinPauses, MaxPauses int
	MinPause, MaxPause   time.Duration
	Slow                 bool
	Down                 bool
}

var (
	SlowScrollDown = ScrollOptions{By: 22, MinPauses: 1, MaxPauses: 4, MinPause: 100 * time.Millisecond, MaxPause: 2400 * time.Millisecond, Slow: true, Down: true}
	SlowScrollUp   = ScrollOptions{By: 22, MinPauses: 1, MaxPauses: 4, MinPause: 100 * time.Millisecond, MaxPause: 2400 * time.Millisecond, Slow: true}
	FastScrollUp   = ScrollOptions{}
)

// EnterAge fills the age gate with a random birth date and proceeds.
func (s *Session) EnterAge(ctx context.Context) error {
	s.mu.Lock()
	day, month, year := randomBirthDate(s.rnd)
	s.mu.Unlock()

	for _, field := range []struct{ selector, value string }{
		{"#ageDay", day},
		{"#ageMonth", month},
		{"#ageYear", year},
	} {
		el, err := s.find(ctx, field.selector)
		if err != nil {
			return err
		}
		option := fmt.Sprintf("option[value=%q]", field.value)
		if err := el.Select([]string{option}, true, rod.SelectorTypeCSSSector); err != nil {
			return fmt.Errorf("select %s: %w", field.selector, err)
		}
	}

	proceed, err := s.find(ctx, "div.agegate_text_container.btns a, #view_product_page_btn")
	if err != nil {
		return err
	}
	page := s.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameLoad)
	if err := proceed.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click age gate: %w", err)
	}
	wait()
	if err := page.WaitStable(300 * time.Millisecond); err != nil {
		s.logger.Warn("page stability timeout after age gate", slog.Any("error", err))
	}
	s.logger.Debug("age gate passed", slog.String("year", year))
	return nil
}

// RandomNavigation opens or hovers the genre fly-out, hovers a random number
// of genre links and finishes on the install button, which collapses the menu.
func (s *Session) RandomNavigation(ctx context.Context) error {
	minHovers, maxHovers := s.between(2, 7), s.between(5, 10)
	if minHovers > maxHovers {
		minHovers, maxHovers = maxHovers, minHovers
	}

	flyout, err := s.find(ctx, `div[data-flyout="genre_flyout"]`)
	if err != nil {
		return err
	}
	if minHovers > 5 {
		if err := scrollIntoView(flyout); err != nil {
			return err
		}
		if err := s.pause(ctx, 800*time.Millisecond, 1400*time.Millisecond); err != nil {
			return err
		}
		if err := flyout.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click genre fly-out: %w", err)
		}
	} else if err := flyout.Hover(); err != nil {
		return fmt.Errorf("hover genre fly-out: %w", err)
	}

	genres, err := s.page.Context(ctx).Elements("#genre_flyout a")
	if err != nil {
		return fmt.Errorf("list genres: %w", err)
	}
	s.shuffle(len(genres), func(i, j int) { genres[i], genres[j] = genres[j], genres[i] })

	hovers := min(s.between(minHovers, maxHovers), len(genres))
	for _, genre := range genres[:hovers] {
		if err := genre.Hover(); err != nil {
			s.logger.Debug("genre hover failed", slog.Any("error", err))
		}
		if err := s.pause(ctx, 0, 1800*time.Millisecond); err != nil {
			return err
		}
	}

	install, err := s.find(ctx, "a.header_installsteam_btn_content")
	if err != nil {
		return err
	}
	if err := scrollIntoView(install); err != nil {
		return err
	}
	if err := s.pause(ctx, 500*time.Millisecond, 1200*time.Millisecond); err != nil {
		return err
	}
	if err := install.Hover(); err != nil {
		return fmt.Errorf("hover install button: %w", err)
	}
	s.logger.Debug("random navigation done", slog.Int("hovers", hovers))
	return nil
}

// InteractWithTagFilters selects a random number of tag filters and then
// unselects them in reverse order.
func (s *Session) InteractWithTagFilters(ctx context.Context) error {
	return s.toggleFilters(ctx, `div[data-collapse-name="tags"] div.block_content_inner > div > div`, 2, 6)
}

// InteractWithFeatureFilters expands the feature block, toggles a random
// number of feature filters on and off and collapses the block again.
func (s *Session) InteractWithFeatureFilters(ctx context.Context) error {
	header, err := s.find(ctx, `div[data-collapse-name="category2"] > div`)
	if err != nil {
		return err
	}
	if err := header.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("expand features: %w", err)
	}
	if err := s.pause(ctx, 500*time.Millisecond, 2200*time.Millisecond); err != nil {
		return err
	}
	if err := s.toggleFilters(ctx, `div[data-collapse-name="category2"] div.block_content_inner div`, 2, 6); err != nil {
		return err
	}
	if err := header.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("collapse features: %w", err)
	}
	return nil
}

func (s *Session) toggleFilters(ctx context.Context, selector string, lo, hi int) error {
	rows, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return fmt.Errorf("list filters %s: %w", selector, err)
	}

	order := toggleOrder(s.between(lo, hi) - 1)
	for _, i := range order {
		if i >= len(rows) {
			continue
		}
		boxes, err := rows[i].Elements("span span")
		if err != nil || len(boxes) == 0 {
			continue
		}
		if err := boxes[0].Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("toggle filter %d: %w", i, err)
		}
		if err := s.pause(ctx, time.Second, 2200*time.Millisecond); err != nil {
			return err
		}
	}
	s.logger.Debug("filters toggled", slog.String("selector", selector), slog.Int("count", len(order)/2))
	return nil
}

// SortResults opens the sort dropdown and hovers every option in random order.
func (s *Session) SortResults(ctx context.Context) error {
	trigger, err := s.find(ctx, "a.trigger")
	if err != nil {
		return err
	}
	if err := trigger.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("open sort dropdown: %w", err)
	}
	if err := s.pause(ctx, 900*time.Millisecond, 2100*time.Millisecond); err != nil {
		return err
	}

	options, err := s.page.Context(ctx).Elements("div.dropcontainer ul li")
	if err != nil {
		return fmt.Errorf("list sort options: %w", err)
	}
	s.shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	for _, option := range options {
		if err := option.Hover(); err != nil {
			s.logger.Debug("sort option hover failed", slog.Any("error", err))
		}
		if err := s.pause(ctx, 1100*time.Millisecond, 2900*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// ScrollPage scrolls the whole page either in one jump or in small steps
// with a few random pauses.
func (s *Session) ScrollPage(ctx context.Context, opts ScrollOptions) error {
	page := s.page.Context(ctx)
	if !opts.Slow {
		_, err := page.Eval(`(down) => window.scrollTo(0, down ? document.body.scrollHeight : 0)`, opts.Down)
		return err
	}

	res, err := page.Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return fmt.Errorf("read scroll height: %w", err)
	}
	steps := scrollSteps(res.Value.Int(), opts.By, opts.Down)

	var stops map[int]bool
	if opts.MaxPauses > opts.MinPauses {
		s.mu.Lock()
		stops = pickStops(s.rnd, steps, between(s.rnd, opts.MinPauses, opts.MaxPauses))
		s.mu.Unlock()
	}
	for _, y := range steps {
		if stops[y] {
			if err := s.pause(ctx, opts.MinPause, opts.MaxPause); err != nil {
				return err
			}
		}
		if _, err := page.Eval(`(y) => window.scrollTo(0, y)`, y); err != nil {
			return fmt.Errorf("scroll to %d: %w", y, err)
		}
	}
	return nil
}

// ScrollIntoView smoothly scrolls until the element matching selector is visible.
func (s *Session) ScrollIntoView(ctx context.Context, selector string) error {
	el, err := s.find(ctx, selector)
	if err != nil {
		return err
	}
	return scrollIntoView(el)
}

// MoveMouse moves the cursor along straight multi-step paths to random
// points of the viewport.
func (s *Session) MoveMouse(ctx context.Context, moves int) error {
	page := s.page.Context(ctx)
	width, err := page.Eval(`() => window.innerWidth`)
	if err != nil {
		return fmt.Errorf("read viewport width: %w", err)
	}
	height, err := page.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("read viewport height: %w", err)
	}

	for i := 0; i < moves; i++ {
		s.mu.Lock()
		to := randomPoint(s.rnd, width.Value.Int(), height.Value.Int())
		steps := between(s.rnd, 5, 25)
		s.mu.Unlock()

		if err := page.Mouse.MoveLinear(to, steps); err != nil {
			return fmt.Errorf("move mouse: %w", err)
		}
		if err := s.pause(ctx, 100*time.Millisecond, 600*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

func scrollIntoView(el *rod.Element) error {
	if _, err := el.Eval(`() => this.scrollIntoView({behavior: 'smooth'})`); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	return nil
}

// between returns a random int in [lo, hi].
func between(rnd *rand.Rand, lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + rnd.IntN(hi-lo+1)
}

// randomBirthDate returns day, month name and year option values for the age gate.
func randomBirthDate(rnd *rand.Rand) (string, string, string) {
	day := between(rnd, 1, 28)
	month := months[rnd.IntN(len(months))]
	year := between(rnd, 1975, 2000)
	return strconv.Itoa(day), month, strconv.Itoa(year)
}

// scrollSteps lists the scroll offsets of a slow scroll over a page of the
// given height: upward from total towards the top, or downward from the top.
func scrollSteps(total, by int, down bool) []int {
	if by <= 0 {
		by = 1
	}
	var steps []int
	if down {
		for y := 1; y < total; y += by {
			steps = append(steps, y)
		}
		return steps
	}
	for y := total; y > 1; y -= by {
		steps = append(steps, y)
	}
	return steps
}

// pickStops selects up to n distinct offsets at which a slow scroll pauses.
func pickStops(rnd *rand.Rand, steps []int, n int) map[int]bool {
	stops := make(map[int]bool, n)
	for _, i := range rnd.Perm(len(steps))[:min(n, len(steps))] {
		stops[steps[i]] = true
	}
	return stops
}

// toggleOrder returns the filter indexes 1..n followed by n..1, so every
// selected filter is unselected again.
func toggleOrder(n int) []int {
	order := make([]int, 0, 2*max(n, 0))
	for i := 1; i <= n; i++ {
		order = append(order, i)
	}
	for i := n; i >= 1; i-- {
		order = append(order, i)
	}
	return order
}

func randomPoint(rnd *rand.Rand, width, height int) proto.Point {
	return proto.Point{
		X: float64(rnd.IntN(max(width, 1))),
		Y: float64(rnd.IntN(max(height, 1))),
	}
}
