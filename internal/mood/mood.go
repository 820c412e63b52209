// Package mood holds the mood catalog and the derived daily reports and insights.
package mood

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for every stored day key.
const DateLayout = "2006-01-02"

const (
	Happy     = "😊 Happy"
	Excited   = "🎉 Excited"
	Calm      = "😌 Calm"
	Okay      = "🙂 Okay"
	Anxious   = "😟 Anxious"
	Sad       = "😢 Sad"
	Angry     = "😠 Angry"
	Tired     = "😴 Tired"
	Unwell    = "🤒 Unwell"
	GoodDeed  = "⭐ Good Deed"
	Gratitude = "🙏 Gratitude"
)

// DefaultScore applies to labels outside the catalog.
const DefaultScore = 3

// Selectable is the list offered by the mood picker, in display order.
var Selectable = []string{Happy, Excited, Calm, Okay, Anxious, Sad, Angry, Tired, Unwell}

var scores = map[string]int{
	Happy:     5,
	Excited:   5,
	Calm:      5,
	Okay:      4,
	Anxious:   2,
	Sad:       1,
	Angry:     1,
	Tired:     2,
	Unwell:    1,
	GoodDeed:  5,
	Gratitude: 5,
}

// Entry is one logged mood.
type Entry struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Mood       string    `json:"mood"`
	Note       string    `json:"note,omitempty"`
	Reflection string    `json:"reflection,omitempty"`
	Date       string    `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
}

// Score maps a label to 1..5.
func Score(label string) int {
	if s, ok := scores[label]; ok {
		return s
	}
	return DefaultScore
}

func Known(label string) bool {
	_, ok := scores[label]
	return ok
}

func isGoodDeed(label string) bool {
	return label == GoodDeed || label == Gratitude
}

// Tone groups the last logged mood for the affirmation screen.
type Tone string

const (
	ToneComforting Tone = "comforting"
	TonePositive   Tone = "positive"
	ToneGentle     Tone = "gentle"
)

func ToneOf(last string) Tone {
	switch last {
	case Sad, Anxious, Angry, Unwell:
		return ToneComforting
	case Happy, Excited, Calm, Gratitude, GoodDeed:
		return TonePositive
	default:
		return ToneGentle
	}
}

func (t Tone) Caption() string {
	switch t {
	case ToneComforting:
		return "💌 You seem to be going through a rough patch. Here's something comforting."
	case TonePositive:
		return "🌞 Keep your positive energy flowing! Here's your affirmation."
	default:
		return "🌿 Reflect on yourself with a gentle thought today."
	}
}

// AffirmationHint summarises recent moods for the affirmation prompt.
// entries are expected oldest first.
func AffirmationHint(entries []Entry) (string, Tone) {
	if len(entries) == 0 {
		return "no prior mood data", ToneOf("")
	}
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.Mood
	}
	return "based on recent moods: " + strings.Join(labels, ", "), ToneOf(labels[len(labels)-1])
}
