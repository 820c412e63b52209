package mood

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// DailyReport aggregates one user's entries for a single day.
type DailyReport struct {
	UserID    string   `json:"user_id"`
	Date      string   `json:"date"`
	Count     int      `json:"count_entries"`
	AvgScore  *float64 `json:"avg_score"`
	GoodDeeds int      `json:"good_deeds"`
	Notes     []string `json:"notes"`
}

func BuildDailyReport(userID, date string, entries []Entry) DailyReport {
	r := DailyReport{
		UserID: userID,
		Date:   date,
		Count:  len(entries),
		Notes:  []string{},
	}
	total := 0
	for _, e := range entries {
		total += Score(e.Mood)
		if isGoodDeed(e.Mood) {
			r.GoodDeeds++
		}
		if strings.TrimSpace(e.Note) != "" {
			r.Notes = append(r.Notes, e.Note)
		}
	}
	if len(entries) > 0 {
		avg := float64(total) / float64(len(entries))
		r.AvgScore = &avg
	}
	return r
}

// WeekAverage is the mean score of a Monday-started week.
type WeekAverage struct {
	WeekStart string  `json:"week_start"`
	Average   float64 `json:"average"`
}

// WeekdayAverage is the mean score for one weekday; Average is nil when no entry fell on it.
type WeekdayAverage struct {
	Weekday string   `json:"weekday"`
	Average *float64 `json:"average"`
}

type Insights struct {
	Entries      int              `json:"entries"`
	Average      float64          `json:"average"`
	MostCommon   string           `json:"most_common"`
	Streak       int              `json:"streak"`
	Weekly       []WeekAverage    `json:"weekly"`
	Weekdays     []WeekdayAverage `json:"weekdays"`
	PositiveDays int              `json:"positive_days"`
	ToughDays    int              `json:"tough_days"`
}

const (
	positiveDayThreshold = 4.5
	toughDayThreshold    = 2.0
)

type accumulator struct {
	sum   int
	count int
}

func (a *accumulator) add(score int) {
	a.sum += score
	a.count++
}

func (a accumulator) mean() float64 {
	if a.count == 0 {
		return 0
	}
	return float64(a.sum) / float64(a.count)
}

// ComputeInsights derives the trend figures for the given entries. Entries whose
// date cannot be parsed are ignored. ok is false when nothing usable remains.
func ComputeInsights(entries []Entry, today time.Time) (in Insights, ok bool) {
	type dated struct {
		Entry
		day time.Time
	}
	rows := make([]dated, 0, len(entries))
	for _, e := range entries {
		d, err := time.ParseInLocation(DateLayout, e.Date, today.Location())
		if err != nil {
			continue
		}
		rows = append(rows, dated{Entry: e, day: d})
	}
	if len(rows) == 0 {
		return Insights{}, false
	}
	slices.SortStableFunc(rows, func(a, b dated) int {
		return a.day.Compare(b.day)
	})

	var (
		overall  accumulator
		daily    = map[string]*accumulator{}
		weekly   = map[string]*accumulator{}
		weekdays [7]accumulator
		counts   = map[string]int{}
		order    []string
	)
	for _, r := range rows {
		s := Score(r.Mood)
		overall.add(s)

		if counts[r.Mood] == 0 {
			order = append(order, r.Mood)
		}
		counts[r.Mood]++

		dayKey := r.day.Format(DateLayout)
		if daily[dayKey] == nil {
			daily[dayKey] = &accumulator{}
		}
		daily[dayKey].add(s)

		offset := (int(r.day.Weekday()) + 6) % 7
		weekKey := r.day.AddDate(0, 0, -offset).Format(DateLayout)
		if weekly[weekKey] == nil {
			weekly[weekKey] = &accumulator{}
		}
		weekly[weekKey].add(s)
		weekdays[offset].add(s)
	}

	in.Entries = len(rows)
	in.Average = overall.mean()

	for _, label := range order {
		if in.MostCommon == "" || counts[label] > counts[in.MostCommon] {
			in.MostCommon = label
		}
	}

	cur := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	for daily[cur.Format(DateLayout)] != nil {
		in.Streak++
		cur = cur.AddDate(0, 0, -1)
	}

	for key, acc := range weekly {
		in.Weekly = append(in.Weekly, WeekAverage{WeekStart: key, Average: acc.mean()})
	}
	slices.SortFunc(in.Weekly, func(a, b WeekAverage) int {
		return cmp.Compare(a.WeekStart, b.WeekStart)
	})

	names := [7]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}
	for i, acc := range weekdays {
		wa := WeekdayAverage{Weekday: names[i].String()}
		if acc.count > 0 {
			m := acc.mean()
			wa.Average = &m
		}
		in.Weekdays = append(in.Weekdays, wa)
	}

	for _, acc := range daily {
		avg := acc.mean()
		if avg >= positiveDayThreshold {
			in.PositiveDays++
		}
		if avg <= toughDayThreshold {
			in.ToughDays++
		}
	}
	return in, true
}
