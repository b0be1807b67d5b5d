package chronicle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Date is a calendar day as printed on an archived article.
type Date struct {
	Day   int
	Month int
	Year  int
}

// ParseDate reads the backend's DD/MM/YYYY format. Day and month may omit
// the leading zero.
func ParseDate(s string) (Date, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("date %q: want DD/MM/YYYY", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, fmt.Errorf("date %q: %w", s, err)
		}
		nums[i] = n
	}
	d := Date{Day: nums[0], Month: nums[1], Year: nums[2]}
	if err := d.Validate(); err != nil {
		return Date{}, err
	}
	return d, nil
}

// Validate checks day, month and year ranges.
func (d Date) Validate() error {
	if d.Day < 1 || d.Day > 31 {
		return fmt.Errorf("day %d out of range", d.Day)
	}
	if d.Month < 1 || d.Month > 12 {
		return fmt.Errorf("month %d out of range", d.Month)
	}
	if d.Year < 1 {
		return fmt.Errorf("year %d out of range", d.Year)
	}
	return nil
}

// String formats the date as "23 December 1987".
func (d Date) String() string {
	return fmt.Sprintf("%d %s %d", d.Day, MonthName(d.Month), d.Year)
}

// Wire formats the date back to DD/MM/YYYY.
func (d Date) Wire() string {
	return fmt.Sprintf("%02d/%02d/%d", d.Day, d.Month, d.Year)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// MonthName returns the English name of month m (1-12), or "" when m is out
// of range.
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return time.Month(m).String()
}

// parseLooseDate reads date-range ends. The backend's DD/MM/YYYY form is
// tried first since dateparse would read it month-first.
func parseLooseDate(s string) (time.Time, error) {
	if d, err := ParseDate(s); err == nil {
		return time.Date(d.Year, time.Month(d.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d.Day-1), nil
	}
	s = strings.TrimSpace(s)
	if y, err := strconv.Atoi(s); err == nil && y > 0 && len(s) <= 4 {
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unreadable date %q: %w", s, err)
	}
	return t, nil
}
