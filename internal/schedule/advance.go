// Package schedule advances a template's next-due date by its frequency and
// interval using calendar-aware arithmetic.
//
// Each frequency has its own Advancer strategy, looked up in a registry by
// frequency value, so new frequencies can be added without touching the
// existing ones.
package schedule

import (
	"fmt"
	"time"

	"coown/internal/core"
)

// Advancer computes the next occurrence of a schedule after d.
type Advancer interface {
	Advance(d core.Date, interval int) core.Date
}

type dailyAdvancer struct{}

func (dailyAdvancer) Advance(d core.Date, interval int) core.Date {
	return core.Date{Time: d.AddDate(0, 0, interval)}
}

type weeklyAdvancer struct{}

func (weeklyAdvancer) Advance(d core.Date, interval int) core.Date {
	return core.Date{Time: d.AddDate(0, 0, 7*interval)}
}

type monthlyAdvancer struct{}

func (monthlyAdvancer) Advance(d core.Date, interval int) core.Date {
	return core.Date{Time: addMonthsClamped(d.Time, interval)}
}

// quarterlyAdvancer moves by three months per interval step.
type quarterlyAdvancer struct{}

func (quarterlyAdvancer) Advance(d core.Date, interval int) core.Date {
	return core.Date{Time: addMonthsClamped(d.Time, 3*interval)}
}

type annualAdvancer struct{}

func (annualAdvancer) Advance(d core.Date, interval int) core.Date {
	return core.Date{Time: addMonthsClamped(d.Time, 12*interval)}
}

// addMonthsClamped adds n months and clamps the day-of-month to the last
// valid day of the target month, so Jan 31 + 1 month is Feb 29 in a leap
// year and Feb 28 otherwise. time.Time.AddDate would normalize into March
// instead.
func addMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, t.Location())
}

var advancers = map[core.Frequency]Advancer{
	core.Daily:     dailyAdvancer{},
	core.Weekly:    weeklyAdvancer{},
	core.Monthly:   monthlyAdvancer{},
	core.Quarterly: quarterlyAdvancer{},
	core.Annually:  annualAdvancer{},
}

// RegisterAdvancer registers a custom advancer for a new frequency value.
func RegisterAdvancer(f core.Frequency, a Advancer) {
	advancers[f] = a
}

// Advance returns the due date interval frequency-steps after d. An unknown
// frequency or non-positive interval is a configuration error.
func Advance(d core.Date, f core.Frequency, interval int) (core.Date, error) {
	if interval < 1 {
		return core.Date{}, fmt.Errorf("%w: %d", core.ErrInvalidInterval, interval)
	}
	a, ok := advancers[f]
	if !ok {
		return core.Date{}, fmt.Errorf("%w: %q", core.ErrInvalidFrequency, f)
	}
	return a.Advance(d, interval), nil
}
