package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthKeyOf returns the month an instant falls in, in loc (nil means local time).
func MonthKeyOf(t time.Time, loc *time.Location) MonthKey {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// String renders the key as "2024-5". The month is not zero padded, so keys
// do not sort chronologically as strings.
func (k MonthKey) String() string {
	return fmt.Sprintf("%d-%d", k.Year, int(k.Month))
}

// ParseMonthKey parses "2024-5" or "2024-05".
func ParseMonthKey(s string) (MonthKey, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return MonthKey{}, fmt.Errorf("month key %q: want <year>-<month>", s)
	}
	year, err := strconv.Atoi(y)
	if err != nil || year < 1 {
		return MonthKey{}, fmt.Errorf("month key %q: bad year", s)
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return MonthKey{}, fmt.Errorf("month key %q: bad month", s)
	}
	return MonthKey{Year: year, Month: time.Month(month)}, nil
}

// IsZero reports whether k is the zero key.
func (k MonthKey) IsZero() bool { return k.Year == 0 && k.Month == 0 }

// Before reports whether k is an earlier month than other.
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Label renders the key for display, e.g. "May 2024".
func (k MonthKey) Label() string {
	return fmt.Sprintf("%s %d", k.Month, k.Year)
}

// MonthTotal is the unsettled total of one month.
type MonthTotal struct {
	Key   MonthKey
	Total decimal.Decimal
	Count int
}

// MonthlyTotals lists month totals in order of first occurrence.
type MonthlyTotals []MonthTotal

// Get returns the total for key.
func (m MonthlyTotals) Get(key MonthKey) (decimal.Decimal, bool) {
	for _, t := range m {
		if t.Key == key {
			return t.Total, true
		}
	}
	return decimal.Zero, false
}

// Sorted returns a chronologically ordered copy.
func (m MonthlyTotals) Sorted() MonthlyTotals {
	out := append(MonthlyTotals(nil), m...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key.Before(out[j].Key) })
	return out
}

// AggregateByMonth sums unsettled expenses per calendar month of their date.
// Settled expenses are left out entirely. Months appear in the order their
// first expense appears in the input.
func AggregateByMonth(expenses []Expense, loc *time.Location) MonthlyTotals {
	index := make(map[MonthKey]int)
	var out MonthlyTotals
	for _, e := range expenses {
		if e.Settled {
			continue
		}
		key := MonthKeyOf(e.Date, loc)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, MonthTotal{Key: key, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(e.Amount)
		out[i].Count++
	}
	return out
}
