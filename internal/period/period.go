// Package period models calendar months and the trailing windows reports cover.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Supported trailing window sizes.
const (
	ShortWindow = 6
	LongWindow  = 13
)

var (
	// ErrInvalidPeriod is returned for months outside 1..12 or non-positive years.
	ErrInvalidPeriod = errors.New("period: invalid month or year")
	// ErrInvalidWindow is returned for window lengths other than 6 or 13.
	ErrInvalidWindow = errors.New("period: window length must be 6 or 13")
)

// Period is a single calendar month.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// New builds a validated period.
func New(month, year int) (Period, error) {
	p := Period{Month: month, Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// FromTime returns the period containing t.
func FromTime(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// Validate checks the month and year ranges.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 || p.Year <= 0 {
		return fmt.Errorf("%w: %d/%d", ErrInvalidPeriod, p.Month, p.Year)
	}
	return nil
}

// Key renders the "YYYY-M" key used by report column maps.
func (p Period) Key() string {
	return strconv.Itoa(p.Year) + "-" + strconv.Itoa(p.Month)
}

// Label renders the "M/YYYY" label used for chart rows.
func (p Period) Label() string {
	return strconv.Itoa(p.Month) + "/" + strconv.Itoa(p.Year)
}

// String implements fmt.Stringer.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Add moves the period by n months, negative n walks backwards.
func (p Period) Add(n int) Period {
	idx := p.Year*12 + (p.Month - 1) + n
	return Period{Month: idx%12 + 1, Year: idx / 12}
}

// Prev returns the preceding month.
func (p Period) Prev() Period {
	return p.Add(-1)
}

// Next returns the following month.
func (p Period) Next() Period {
	return p.Add(1)
}

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Window returns length consecutive periods ending at ref inclusive, oldest first.
func Window(ref Period, length int) ([]Period, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if length != ShortWindow && length != LongWindow {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, length)
	}
	out := make([]Period, length)
	for i := 0; i < length; i++ {
		out[i] = ref.Add(i - (length - 1))
	}
	return out, nil
}

// ParseLength accepts "6M", "13M", "6" or "13"; empty input defaults to 13.
func ParseLength(raw string) (int, error) {
	value := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(raw)), "M")
	if value == "" {
		return LongWindow, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || (n != ShortWindow && n != LongWindow) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, raw)
	}
	return n, nil
}

// Years lists the distinct years touched by a window in ascending order.
func Years(window []Period) []int {
	seen := make(map[int]struct{}, 2)
	out := make([]int, 0, 2)
	for _, p := range window {
		if _, ok := seen[p.Year]; ok {
			continue
		}
		seen[p.Year] = struct{}{}
		out = append(out, p.Year)
	}
	return out
}

// Months lists the distinct months touched by a window in window order.
func Months(window []Period) []int {
	seen := make(map[int]struct{}, len(window))
	out := make([]int, 0, len(window))
	for _, p := range window {
		if _, ok := seen[p.Month]; ok {
			continue
		}
		seen[p.Month] = struct{}{}
		out = append(out, p.Month)
	}
	return out
}

// Contains reports whether p is part of window.
func Contains(window []Period, p Period) bool {
	for _, w := range window {
		if w == p {
			return true
		}
	}
	return false
}
