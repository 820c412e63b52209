package companion

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/serenitybot/serenity/internal/mood"
	"github.com/serenitybot/serenity/internal/schedule"
	"github.com/serenitybot/serenity/internal/store"
)

const (
	moodHintDays     = 3
	affirmationDays  = 7
	memoryFetch      = 10
	memoryContext    = 5
	scheduleContext  = 3
	lookupGoroutines = 4
)

// Store is the data the service reads to build reply context and writes mood logs to.
type Store interface {
	ListRecentMoods(ctx context.Context, userID string, days int) ([]mood.Entry, error)
	ListMemories(ctx context.Context, userID string, limit int) ([]store.Memory, error)
	ListSchedule(ctx context.Context, userID string) ([]schedule.Item, error)
	LogMood(ctx context.Context, userID, label, note, reflection string) (mood.Entry, error)
}

// Audio is one recorded clip attached to a chat turn.
type Audio struct {
	Data     []byte
	MIMEType string
}

type Input struct {
	Text  string
	Style Style
	Audio []Audio
}

// Result is a chat turn as shown to the user.
type Result struct {
	Reply          string   `json:"reply"`
	Crisis         Crisis   `json:"crisis"`
	Notice         string   `json:"notice,omitempty"`
	AudioSummaries []string `json:"audio_summaries,omitempty"`
}

type Service struct {
	client Client
	store  Store
	logger *zap.Logger
}

func NewService(client Client, s Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, store: s, logger: logger}
}

func (s *Service) Client() Client {
	return s.client
}

// Respond answers one chat turn: audio is summarised first, then crisis
// classification and context lookups run concurrently before the reply call.
func (s *Service) Respond(ctx context.Context, userID string, in Input) (Result, error) {
	var res Result
	for i, a := range in.Audio {
		summary, err := s.client.SummarizeAudio(ctx, a.Data, a.MIMEType)
		if err != nil {
			return Result{}, fmt.Errorf("summarize audio %d: %w", i+1, err)
		}
		if summary != "" {
			res.AudioSummaries = append(res.AudioSummaries, summary)
		}
	}

	parts := make([]string, 0, 1+len(res.AudioSummaries))
	if t := strings.TrimSpace(in.Text); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, res.AudioSummaries...)
	text := strings.Join(parts, "\n")
	if text == "" {
		return Result{}, ErrEmptyInput
	}

	prompt := Prompt{Text: text, Style: ParseStyle(string(in.Style))}
	p := pool.New().WithMaxGoroutines(lookupGoroutines)
	p.Go(func() {
		c, err := s.client.ClassifyCrisis(ctx, text)
		if err != nil {
			s.logger.Warn("crisis classification failed", zap.String("user", userID), zap.Error(err))
			c = Crisis{Risk: RiskNone, Reason: "Classifier unavailable"}
		}
		res.Crisis = c
	})
	p.Go(func() { prompt.MoodHint = s.moodHint(ctx, userID) })
	p.Go(func() { prompt.Facts = s.facts(ctx, userID) })
	p.Go(func() { prompt.Schedule = s.scheduleLine(ctx, userID) })
	p.Wait()

	reply, err := s.client.Reply(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("reply: %w", err)
	}
	res.Reply = reply
	res.Notice = res.Crisis.Notice()
	return res, nil
}

func (s *Service) moodHint(ctx context.Context, userID string) string {
	entries, err := s.store.ListRecentMoods(ctx, userID, moodHintDays)
	if err != nil {
		s.logger.Warn("mood hint lookup failed", zap.String("user", userID), zap.Error(err))
		return ""
	}
	if len(entries) == 0 {
		return ""
	}
	return entries[len(entries)-1].Mood
}

func (s *Service) facts(ctx context.Context, userID string) string {
	mems, err := s.store.ListMemories(ctx, userID, memoryFetch)
	if err != nil {
		s.logger.Warn("memory lookup failed", zap.String("user", userID), zap.Error(err))
		return ""
	}
	if len(mems) > memoryContext {
		mems = mems[len(mems)-memoryContext:]
	}
	lines := make([]string, len(mems))
	for i, m := range mems {
		lines[i] = m.String()
	}
	return strings.Join(lines, "; ")
}

func (s *Service) scheduleLine(ctx context.Context, userID string) string {
	items, err := s.store.ListSchedule(ctx, userID)
	if err != nil {
		s.logger.Warn("schedule lookup failed", zap.String("user", userID), zap.Error(err))
		return ""
	}
	return schedule.Summary(items, scheduleContext)
}

// Affirmation is a daily affirmation tuned to the last week of moods.
type Affirmation struct {
	Text    string `json:"text"`
	Tone    string `json:"tone"`
	Caption string `json:"caption"`
}

func (s *Service) Affirmation(ctx context.Context, userID string) (Affirmation, error) {
	entries, err := s.store.ListRecentMoods(ctx, userID, affirmationDays)
	if err != nil {
		return Affirmation{}, err
	}
	hint, tone := mood.AffirmationHint(entries)
	text, err := s.client.Affirmation(ctx, hint)
	if err != nil {
		return Affirmation{}, fmt.Errorf("affirmation: %w", err)
	}
	return Affirmation{Text: text, Tone: string(tone), Caption: tone.Caption()}, nil
}

// LogMood stores a mood with a one-line model reflection. A failed reflection
// still logs the mood.
func (s *Service) LogMood(ctx context.Context, userID, label, note string) (mood.Entry, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return mood.Entry{}, ErrMoodRequired
	}
	line := label
	if n := strings.TrimSpace(note); n != "" {
		line += " - " + n
	}
	reflection, err := s.client.ReflectMood(ctx, line)
	if err != nil {
		s.logger.Warn("mood reflection failed", zap.String("user", userID), zap.Error(err))
		reflection = ""
	}
	return s.store.LogMood(ctx, userID, label, strings.TrimSpace(note), reflection)
}
