package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/serenitybot/serenity/internal/companion"
	"github.com/serenitybot/serenity/internal/mood"
	"github.com/serenitybot/serenity/internal/store"
	"github.com/serenitybot/serenity/internal/wellness"
)

const (
	defaultMoodDays = 7
	insightsDays    = 365
)

type chatRequest struct {
	Text  string `json:"text"`
	Style string `json:"style"`
	Audio []struct {
		Data     []byte `json:"data"` // base64 in JSON
		MIMEType string `json:"mime_type"`
	} `json:"audio"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	in := companion.Input{Text: req.Text, Style: companion.ParseStyle(req.Style)}
	for _, a := range req.Audio {
		in.Audio = append(in.Audio, companion.Audio{Data: a.Data, MIMEType: a.MIMEType})
	}

	res, err := s.companion.Respond(r.Context(), UserID(r), in)
	switch {
	case errors.Is(err, companion.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "say something or attach a recording")
	case errors.Is(err, companion.ErrAudioUnsupported):
		writeError(w, http.StatusUnprocessableEntity, "voice notes are not supported by this model")
	case err != nil:
		s.internalError(w, r, err)
	default:
		if res.Crisis.Risk != companion.RiskNone {
			s.logger.Warn("crisis signal", zap.String("user", UserID(r)), zap.String("risk", string(res.Crisis.Risk)))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleListMoods(w http.ResponseWriter, r *http.Request) {
	days := defaultMoodDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = n
	}
	entries, err := s.store.ListRecentMoods(r.Context(), UserID(r), days)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type moodRequest struct {
	Mood string `json:"mood"`
	Note string `json:"note"`
}

// handleLogMood stores the mood and refreshes today's report.
func (s *Server) handleLogMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := s.companion.LogMood(r.Context(), UserID(r), req.Mood, req.Note)
	if errors.Is(err, companion.ErrMoodRequired) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.refreshReport(r, entry.Date)
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) refreshReport(r *http.Request, date string) {
	if _, err := s.store.RefreshDailyReport(r.Context(), UserID(r), date); err != nil {
		s.logger.Warn("refresh daily report", zap.String("user", UserID(r)), zap.Error(err))
	}
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if date == "today" {
		date = s.store.Now().Format(mood.DateLayout)
	}
	if _, err := time.Parse(mood.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD or today")
		return
	}
	report, err := s.store.DailyReport(r.Context(), UserID(r), date)
	if errors.Is(err, store.ErrNotFound) {
		report = mood.BuildDailyReport(UserID(r), date, nil)
	} else if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListRecentMoods(r.Context(), UserID(r), insightsDays)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	insights, ok := mood.ComputeInsights(entries, s.store.Now())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"entries": 0, "message": "Log a few moods to unlock your insights."})
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func (s *Server) handleAffirmation(w http.ResponseWriter, r *http.Request) {
	a, err := s.companion.Affirmation(r.Context(), UserID(r))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleBreathing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seconds, _ := strconv.Atoi(q.Get("seconds"))
	cycles, _ := strconv.Atoi(q.Get("cycles"))
	writeJSON(w, http.StatusOK, wellness.BoxBreathing(seconds, cycles))
}

func (s *Server) handleGratitude(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Picks []string `json:"picks"`
	}
	if !decode(w, r, &req) {
		return
	}
	g, err := wellness.Gratitude(req.Picks)
	if wellness.IsPickError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	entry, err := s.store.LogMood(r.Context(), UserID(r), g.Mood, g.Note, g.Reflection)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.refreshReport(r, entry.Date)
	writeJSON(w, http.StatusCreated, entry)
}
