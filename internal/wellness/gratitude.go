package wellness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/serenitybot/serenity/internal/mood"
)

const MaxGratitudePicks = 3

var GratitudeOptions = []string{"Family", "Friends", "Health", "Food", "Music", "Nature", "Learning", "Creativity", "Freedom", "Kindness"}

var (
	ErrTooManyPicks  = fmt.Errorf("pick at most %d things", MaxGratitudePicks)
	ErrUnknownOption = errors.New("unknown gratitude option")
)

// GratitudeEntry is what the picker logs to the mood journal.
type GratitudeEntry struct {
	Mood       string
	Note       string
	Reflection string
}

// Gratitude validates picks against the option list and builds the journal entry.
// Picks are matched case-insensitively and deduplicated.
func Gratitude(picks []string) (GratitudeEntry, error) {
	chosen := make([]string, 0, len(picks))
	seen := make(map[string]bool, len(picks))
	for _, p := range picks {
		opt, ok := lookupOption(p)
		if !ok {
			return GratitudeEntry{}, fmt.Errorf("%w %q", ErrUnknownOption, p)
		}
		if seen[opt] {
			continue
		}
		seen[opt] = true
		chosen = append(chosen, opt)
	}
	if len(chosen) > MaxGratitudePicks {
		return GratitudeEntry{}, ErrTooManyPicks
	}

	note := "Grateful practice opened."
	if len(chosen) > 0 {
		note = "Grateful for: " + strings.Join(chosen, ", ")
	}
	return GratitudeEntry{
		Mood:       mood.Gratitude,
		Note:       note,
		Reflection: "Practiced gratitude.",
	}, nil
}

func lookupOption(p string) (string, bool) {
	p = strings.TrimSpace(p)
	for _, opt := range GratitudeOptions {
		if strings.EqualFold(opt, p) {
			return opt, true
		}
	}
	return "", false
}

// IsPickError reports whether err came from invalid picker input.
func IsPickError(err error) bool {
	return errors.Is(err, ErrTooManyPicks) || errors.Is(err, ErrUnknownOption)
}
