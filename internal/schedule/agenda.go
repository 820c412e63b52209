package schedule

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Occurrence is a dated instance of a weekly item.
type Occurrence struct {
	ItemID   string    `json:"item_id"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	Day      Weekday   `json:"day"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// WeeklyRule renders the RFC 5545 rule for the item's days, e.g. "FREQ=WEEKLY;BYDAY=MO,WE".
func (it Item) WeeklyRule() string {
	codes := make([]string, 0, len(it.Days))
	for _, d := range it.Days {
		if !d.Valid() {
			continue
		}
		codes = append(codes, strings.ToUpper(string(d)[:2]))
	}
	return "FREQ=WEEKLY;BYDAY=" + strings.Join(codes, ",")
}

// Agenda expands items into dated occurrences for the days starting at from's midnight.
func Agenda(items []Item, from time.Time, days int) ([]Occurrence, error) {
	if days <= 0 {
		return []Occurrence{}, nil
	}
	windowStart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	windowEnd := windowStart.AddDate(0, 0, days)

	out := make([]Occurrence, 0, len(items)*days)
	for i, it := range items {
		start, err := ParseClock(it.StartTime)
		if err != nil {
			return nil, &MalformedTimeError{Index: i, Title: it.Title, Field: "start_time", Value: it.StartTime, Err: err}
		}
		end, err := ParseClock(it.EndTime)
		if err != nil {
			return nil, &MalformedTimeError{Index: i, Title: it.Title, Field: "end_time", Value: it.EndTime, Err: err}
		}
		if !slices.ContainsFunc(it.Days, Weekday.Valid) {
			continue
		}
		duration := time.Duration(end-start) * time.Minute
		if duration < 0 {
			duration = 0
		}

		opt, err := rrule.StrToROption(it.WeeklyRule())
		if err != nil {
			return nil, fmt.Errorf("rule for %q: %w", it.Title, err)
		}
		opt.Dtstart = windowStart.Add(time.Duration(start) * time.Minute)
		rule, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("rule for %q: %w", it.Title, err)
		}

		for _, at := range rule.Between(windowStart, windowEnd, true) {
			if !at.Before(windowEnd) {
				continue
			}
			out = append(out, Occurrence{
				ItemID:   it.ID,
				Title:    it.Title,
				Location: it.Location,
				Day:      WeekdayOf(at),
				Start:    at,
				End:      at.Add(duration),
			})
		}
	}

	slices.SortStableFunc(out, func(a, b Occurrence) int {
		return cmp.Compare(a.Start.UnixNano(), b.Start.UnixNano())
	})
	return out, nil
}
