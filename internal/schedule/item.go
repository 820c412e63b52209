package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultPriority = 3
	MinPriority     = 1
	MaxPriority     = 5
)

// Weekday is the canonical three-letter day token stored with every item.
type Weekday string

const (
	Mon Weekday = "Mon"
	Tue Weekday = "Tue"
	Wed Weekday = "Wed"
	Thu Weekday = "Thu"
	Fri Weekday = "Fri"
	Sat Weekday = "Sat"
	Sun Weekday = "Sun"
)

// Week lists the days in reporting order.
var Week = [7]Weekday{Mon, Tue, Wed, Thu, Fri, Sat, Sun}

var timeWeekdays = map[Weekday]time.Weekday{
	Mon: time.Monday,
	Tue: time.Tuesday,
	Wed: time.Wednesday,
	Thu: time.Thursday,
	Fri: time.Friday,
	Sat: time.Saturday,
	Sun: time.Sunday,
}

// TimeWeekday maps the token to the time package weekday. Unknown tokens map to Sunday.
func (d Weekday) TimeWeekday() time.Weekday {
	return timeWeekdays[d]
}

func (d Weekday) Valid() bool {
	_, ok := timeWeekdays[d]
	return ok
}

// WeekdayOf returns the token for t's weekday.
func WeekdayOf(t time.Time) Weekday {
	return Week[(int(t.Weekday())+6)%7]
}

// ParseWeekday accepts "mon", "MON", "Monday" and similar spellings.
func ParseWeekday(s string) (Weekday, error) {
	titled := cases.Title(language.English).String(strings.TrimSpace(s))
	for _, d := range Week {
		if titled == string(d) || titled == d.TimeWeekday().String() {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown weekday %q", s)
}

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock parses a 24h "H:M" value into minutes since midnight. Hour and
// minute take one or two digits each, so "8:5" is 08:05.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) == 0 || len(mm) > 2 {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || hh[0] == '+' || hh[0] == '-' {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || mm[0] == '+' || mm[0] == '-' {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("%q out of range 00:00-23:59", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Item is one recurring weekly commitment.
type Item struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Days       []Weekday `json:"days"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Priority   int       `json:"priority"`
	TravelMins int       `json:"travel_mins"`
	Location   string    `json:"location,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// ValidationError reports why an item was rejected at creation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ApplyDefaults fills the priority left unset by the author.
func (it *Item) ApplyDefaults() {
	if it.Priority == 0 {
		it.Priority = DefaultPriority
	}
}

// NewItem normalises raw user input into an item ready to be stored.
// Day tokens are canonicalised and deduplicated in week order.
func NewItem(title string, days []string, start, end string) (Item, error) {
	it := Item{
		Title:     strings.TrimSpace(title),
		StartTime: strings.TrimSpace(start),
		EndTime:   strings.TrimSpace(end),
	}
	var err error
	if it.Days, err = ParseDays(days); err != nil {
		return Item{}, err
	}
	it.ApplyDefaults()
	if err := it.Validate(); err != nil {
		return Item{}, err
	}
	startClock, _ := ParseClock(it.StartTime)
	endClock, _ := ParseClock(it.EndTime)
	it.StartTime, it.EndTime = startClock.String(), endClock.String()
	return it, nil
}

// ParseDays canonicalises day tokens, dropping repeats and ordering them Mon..Sun.
func ParseDays(days []string) ([]Weekday, error) {
	seen := make(map[Weekday]bool, len(days))
	for _, raw := range days {
		d, err := ParseWeekday(raw)
		if err != nil {
			return nil, &ValidationError{Field: "days", Reason: err.Error()}
		}
		seen[d] = true
	}
	var out []Weekday
	for _, d := range Week {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out, nil
}

// CanonicalDays rewrites it.Days through ParseDays and leaves the clock
// fields untouched, so imported items still reach Detect as written.
func (it *Item) CanonicalDays() error {
	raw := make([]string, len(it.Days))
	for i, d := range it.Days {
		raw[i] = string(d)
	}
	days, err := ParseDays(raw)
	if err != nil {
		return err
	}
	it.Days = days
	return nil
}

// Normalize re-runs NewItem over an already populated item, keeping its optional fields.
func (it Item) Normalize() (Item, error) {
	days := make([]string, len(it.Days))
	for i, d := range it.Days {
		days[i] = string(d)
	}
	out, err := NewItem(it.Title, days, it.StartTime, it.EndTime)
	if err != nil {
		return Item{}, err
	}
	out.ID = it.ID
	out.Priority = it.Priority
	out.TravelMins = it.TravelMins
	out.Location = strings.TrimSpace(it.Location)
	out.Notes = strings.TrimSpace(it.Notes)
	out.ApplyDefaults()
	if err := out.Validate(); err != nil {
		return Item{}, err
	}
	return out, nil
}

// Validate enforces the creation rules. The detector itself is more lenient.
func (it Item) Validate() error {
	if strings.TrimSpace(it.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if len(it.Days) == 0 {
		return &ValidationError{Field: "days", Reason: "pick at least one day"}
	}
	for _, d := range it.Days {
		if !d.Valid() {
			return &ValidationError{Field: "days", Reason: fmt.Sprintf("unknown weekday %q", d)}
		}
	}
	start, err := ParseClock(it.StartTime)
	if err != nil {
		return &ValidationError{Field: "start_time", Reason: err.Error()}
	}
	end, err := ParseClock(it.EndTime)
	if err != nil {
		return &ValidationError{Field: "end_time", Reason: err.Error()}
	}
	if start >= end {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	if it.Priority < MinPriority || it.Priority > MaxPriority {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("must be between %d and %d", MinPriority, MaxPriority)}
	}
	if it.TravelMins < 0 {
		return &ValidationError{Field: "travel_mins", Reason: "must not be negative"}
	}
	return nil
}

func (it Item) daysLabel() string {
	parts := make([]string, len(it.Days))
	for i, d := range it.Days {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

// Summary renders up to max items as "Title(Mon,Wed 18:00-19:00)" joined by "; ".
func Summary(items []Item, max int) string {
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s(%s %s-%s)", it.Title, it.daysLabel(), it.StartTime, it.EndTime))
	}
	return strings.Join(parts, "; ")
}
