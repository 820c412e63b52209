package schedule

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

const productID = "-//serenity//weekly schedule//EN"

// ExportICS renders items as an iCalendar feed, one weekly-recurring event per item.
// Each event starts on the first listed day on or after weekStart.
func ExportICS(items []Item, weekStart time.Time) (string, error) {
	loc := weekStart.Location()
	base := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, loc)

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)

	for i, it := range items {
		start, err := ParseClock(it.StartTime)
		if err != nil {
			return "", &MalformedTimeError{Index: i, Title: it.Title, Field: "start_time", Value: it.StartTime, Err: err}
		}
		end, err := ParseClock(it.EndTime)
		if err != nil {
			return "", &MalformedTimeError{Index: i, Title: it.Title, Field: "end_time", Value: it.EndTime, Err: err}
		}

		first, ok := firstDay(base, it.Days)
		if !ok {
			continue
		}
		duration := time.Duration(end-start) * time.Minute
		if duration < 0 {
			duration = 0
		}
		dtStart := first.Add(time.Duration(start) * time.Minute)

		uid := it.ID
		if uid == "" {
			uid = fmt.Sprintf("item-%d", i)
		}
		event := cal.AddEvent(uid + "@serenity")
		event.SetDtStampTime(base)
		event.SetStartAt(dtStart)
		event.SetEndAt(dtStart.Add(duration))
		event.SetSummary(it.Title)
		if it.Location != "" {
			event.SetLocation(it.Location)
		}
		event.SetDescription(describe(it))
		event.AddRrule(it.WeeklyRule())
	}

	return cal.Serialize(), nil
}

func firstDay(base time.Time, days []Weekday) (time.Time, bool) {
	for offset := 0; offset < 7; offset++ {
		d := base.AddDate(0, 0, offset)
		wd := WeekdayOf(d)
		for _, want := range days {
			if want == wd {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func describe(it Item) string {
	parts := []string{fmt.Sprintf("Priority %d", it.Priority)}
	if it.TravelMins > 0 {
		parts = append(parts, fmt.Sprintf("Travel %d min", it.TravelMins))
	}
	if it.Notes != "" {
		parts = append(parts, it.Notes)
	}
	return strings.Join(parts, "\n")
}
