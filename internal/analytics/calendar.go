package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownMonth is returned when a month label is not one of the twelve short names
var ErrUnknownMonth = errors.New("unknown month name")

// UnknownMonthError carries the offending label
type UnknownMonthError struct {
	Name string
}

func (e *UnknownMonthError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownMonth.Error(), e.Name)
}

func (e *UnknownMonthError) Unwrap() error {
	return ErrUnknownMonth
}

var monthNames = [12]string{"jan", "feb", "mar", "apr", "mai", "jun", "jul", "aug", "sep", "okt", "nov", "des"}

// MonthName returns the Norwegian short label for m
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

// MonthIndex resolves a short month label. Matching ignores case and a trailing
// period ("okt." is accepted).
func MonthIndex(name string) (time.Month, error) {
	normalized := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	for i, n := range monthNames {
		if n == normalized {
			return time.Month(i + 1), nil
		}
	}
	return 0, &UnknownMonthError{Name: name}
}

// DayLabel formats a day as shown on daily charts, e.g. "24. sep"
func DayLabel(t time.Time) string {
	return fmt.Sprintf("%d. %s", t.Day(), MonthName(t.Month()))
}

type monthKey struct {
	year  int
	month time.Month
}

func keyOf(t time.Time) monthKey {
	return monthKey{year: t.Year(), month: t.Month()}
}

func (k monthKey) index() int {
	return k.year*12 + int(k.month) - 1
}

func (k monthKey) add(months int) monthKey {
	i := k.index() + months
	return monthKey{year: i / 12, month: time.Month(i%12 + 1)}
}

func (k monthKey) before(o monthKey) bool {
	return k.index() < o.index()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
