package schedule

import (
	"cmp"
	"fmt"
	"slices"
)

// Kind distinguishes the two violation families.
type Kind string

const (
	KindOverlap   Kind = "overlap"
	KindTravelGap Kind = "travel_gap"
)

// Violation is one detected conflict on a single day.
// For travel gaps First is the item travelled from and Second the item travelled to.
type Violation struct {
	Day    Weekday `json:"day"`
	Kind   Kind    `json:"kind"`
	First  string  `json:"first"`
	Second string  `json:"second"`
}

// Message renders the violation the way the schedule screen shows it.
func (v Violation) Message() string {
	switch v.Kind {
	case KindTravelGap:
		return fmt.Sprintf("🚗 %s: Not enough travel gap from '%s' → '%s'.", v.Day, v.First, v.Second)
	default:
		return fmt.Sprintf("🕓 %s: '%s' and '%s' overlap. Adjust timing.", v.Day, v.First, v.Second)
	}
}

// MalformedTimeError aborts detection when an item carries an unparseable clock value.
type MalformedTimeError struct {
	Index int
	Title string
	Field string
	Value string
	Err   error
}

func (e *MalformedTimeError) Error() string {
	return fmt.Sprintf("schedule item %d %q: malformed %s %q: %v", e.Index, e.Title, e.Field, e.Value, e.Err)
}

func (e *MalformedTimeError) Unwrap() error { return e.Err }

type occurrence struct {
	title  string
	start  int
	end    int
	travel int
}

// Detect reports overlaps and insufficient travel gaps between same-day items.
// Results are ordered Mon..Sun; within a day all overlaps precede all travel gaps.
// Any malformed clock fails the whole call and no partial result is returned.
func Detect(items []Item) ([]Violation, error) {
	buckets := make(map[Weekday][]occurrence, len(Week))
	for i, it := range items {
		start, err := ParseClock(it.StartTime)
		if err != nil {
			return nil, &MalformedTimeError{Index: i, Title: it.Title, Field: "start_time", Value: it.StartTime, Err: err}
		}
		end, err := ParseClock(it.EndTime)
		if err != nil {
			return nil, &MalformedTimeError{Index: i, Title: it.Title, Field: "end_time", Value: it.EndTime, Err: err}
		}
		for di, d := range it.Days {
			if slices.Contains(it.Days[:di], d) {
				continue
			}
			buckets[d] = append(buckets[d], occurrence{
				title:  it.Title,
				start:  int(start),
				end:    int(end),
				travel: it.TravelMins,
			})
		}
	}

	out := make([]Violation, 0)
	for _, day := range Week {
		occ := buckets[day]
		if len(occ) == 0 {
			continue
		}
		slices.SortStableFunc(occ, func(a, b occurrence) int {
			return cmp.Compare(a.start, b.start)
		})

		for i := 0; i < len(occ); i++ {
			for j := i + 1; j < len(occ); j++ {
				a, b := occ[i], occ[j]
				if a.end > b.start && b.end > a.start {
					out = append(out, Violation{Day: day, Kind: KindOverlap, First: a.title, Second: b.title})
				}
			}
		}

		for i := 0; i+1 < len(occ); i++ {
			from, to := occ[i], occ[i+1]
			if from.end+from.travel > to.start {
				out = append(out, Violation{Day: day, Kind: KindTravelGap, First: from.title, Second: to.title})
			}
		}
	}
	return out, nil
}

// AllClearMessage is shown when Detect reports nothing.
const AllClearMessage = "✅ No overlaps or travel-time conflicts found. Your schedule looks great!"
