package browser

import (
	"log/slog"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-storefront/pace"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestScrollSteps(t *testing.T) {
	tests := []struct {
		name  string
		total int
		by    int
		down  bool
		want  []int
	}{
		{name: "down", total: 70, by: 22, down: true, want: []int{1, 23, 45, 67}},
		{name: "up", total: 70, by: 22, down: false, want: []int{70, 48, 26, 4}},
		{name: "empty page", total: 0, by: 22, down: true, want: nil},
		{name: "zero step", total: 3, by: 0, down: true, want: []int{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, scrollSteps(tt.total, tt.by, tt.down)); diff != "" {
				t.Fatalf("scrollSteps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToggleOrder(t *testing.T) {
	if diff := cmp.Diff([]int{1, 2, 3, 3, 2, 1}, toggleOrder(3)); diff != "" {
		t.Fatalf("toggleOrder(3) mismatch (-want +got):\n%s", diff)
	}
	if got := toggleOrder(0); len(got) != 0 {
		t.Fatalf("toggleOrder(0) = %v, want empty", got)
	}
	if got := toggleOrder(-1); len(got) != 0 {
		t.Fatalf("toggleOrder(-1) = %v, want empty", got)
	}
}

func TestPickStops(t *testing.T) {
	steps := []int{1, 23, 45, 67, 89}
	stops := pickStops(testRand(), steps, 3)
	if len(stops) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(stops))
	}
	for y := range stops {
		found := false
		for _, s := range steps {
			if s == y {
				found = true
			}
		}
		if !found {
			t.Fatalf("stop %d is not a scroll step", y)
		}
	}

	if got := pickStops(testRand(), steps[:2], 10); len(got) != 2 {
		t.Fatalf("expected stops capped at 2, got %d", len(got))
	}
}

func TestRandomBirthDate(t *testing.T) {
	rnd := testRand()
	for i := 0; i < 200; i++ {
		day, month, year := randomBirthDate(rnd)
		d, err := strconv.Atoi(day)
		if err != nil || d < 1 || d > 28 {
			t.Fatalf("invalid day %q", day)
		}
		y, err := strconv.Atoi(year)
		if err != nil || y < 1975 || y > 2000 {
			t.Fatalf("invalid year %q", year)
		}
		valid := false
		for _, m := range months {
			if m == month {
				valid = true
			}
		}
		if !valid {
			t.Fatalf("invalid month %q", month)
		}
	}
}

func TestBetweenInclusive(t *testing.T) {
	rnd := testRand()
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		n := between(rnd, 2, 4)
		if n < 2 || n > 4 {
			t.Fatalf("between(2, 4) = %d", n)
		}
		seen[n] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected every value of [2, 4], saw %v", seen)
	}
	if n := between(rnd, 5, 5); n != 5 {
		t.Fatalf("between(5, 5) = %d", n)
	}
}

func TestRandomPointWithinViewport(t *testing.T) {
	rnd := testRand()
	for i := 0; i < 100; i++ {
		p := randomPoint(rnd, 1280, 720)
		if p.X < 0 || p.X >= 1280 || p.Y < 0 || p.Y >= 720 {
			t.Fatalf("point %+v outside viewport", p)
		}
	}
	if p := randomPoint(rnd, 0, 0); p.X != 0 || p.Y != 0 {
		t.Fatalf("empty viewport point = %+v", p)
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := newSession(Options{Seed: 9}, slog.Default())
	if _, ok := s.delay.(*pace.Random); !ok {
		t.Fatalf("expected random delayer by default, got %T", s.delay)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close without browser: %v", err)
	}

	var rec pace.Recorder
	s = newSession(Options{Delayer: &rec}, slog.Default())
	if s.delay != &rec {
		t.Fatalf("custom delayer not used")
	}
}
