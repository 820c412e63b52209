package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/serenitybot/serenity/internal/mood"
	"github.com/serenitybot/serenity/internal/schedule"
	"github.com/serenitybot/serenity/internal/store"
)

const (
	defaultAgendaDays = 7
	maxAgendaDays     = 31
)

// scheduleFor reads through the per-user cache. Callers must not modify the result.
func (s *Server) scheduleFor(r *http.Request) ([]schedule.Item, error) {
	userID := UserID(r)
	items, gen, ok := s.schedules.get(userID)
	if ok {
		return items, nil
	}
	items, err := s.store.ListSchedule(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	s.schedules.fill(userID, gen, items)
	return items, nil
}

func (s *Server) handleListSchedule(w http.ResponseWriter, r *http.Request) {
	items, err := s.scheduleFor(r)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type scheduleRequest struct {
	Title      string   `json:"title"`
	Days       []string `json:"days"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Priority   int      `json:"priority"`
	TravelMins int      `json:"travel_mins"`
	Location   string   `json:"location"`
	Notes      string   `json:"notes"`
}

func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decode(w, r, &req) {
		return
	}
	it, err := schedule.NewItem(req.Title, req.Days, req.StartTime, req.EndTime)
	if err == nil {
		it.Priority = req.Priority
		it.TravelMins = req.TravelMins
		it.Location = req.Location
		it.Notes = req.Notes
		it.ApplyDefaults()
		err = it.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.store.AddScheduleItem(r.Context(), UserID(r), it)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.schedules.invalidate(UserID(r))
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteScheduleItem(r.Context(), UserID(r), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule item not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.schedules.invalidate(UserID(r))
	w.WriteHeader(http.StatusNoContent)
}

type clash struct {
	Day     schedule.Weekday `json:"day"`
	Kind    schedule.Kind    `json:"kind"`
	Titles  [2]string        `json:"titles"`
	Message string           `json:"message"`
}

type clashReport struct {
	Clashes []clash `json:"clashes"`
	Message string  `json:"message"`
}

func (s *Server) handleClashes(w http.ResponseWriter, r *http.Request) {
	items, err := s.scheduleFor(r)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	violations, err := schedule.Detect(items)
	var merr *schedule.MalformedTimeError
	if errors.As(err, &merr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": merr.Error(),
			"item":  map[string]any{"index": merr.Index, "title": merr.Title, "field": merr.Field, "value": merr.Value},
		})
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	out := clashReport{Clashes: make([]clash, 0, len(violations))}
	for _, v := range violations {
		out.Clashes = append(out.Clashes, clash{Day: v.Day, Kind: v.Kind, Titles: [2]string{v.First, v.Second}, Message: v.Message()})
	}
	if len(out.Clashes) == 0 {
		out.Message = schedule.AllClearMessage
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := s.store.Now()
	if v := q.Get("from"); v != "" {
		t, err := time.ParseInLocation(mood.DateLayout, v, from.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	days := defaultAgendaDays
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxAgendaDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 31")
			return
		}
		days = n
	}

	items, err := s.scheduleFor(r)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	occ, err := schedule.Agenda(items, from, days)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

// weekStart is the Monday on or before t.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
}

func (s *Server) handleScheduleICS(w http.ResponseWriter, r *http.Request) {
	items, err := s.scheduleFor(r)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	feed, err := schedule.ExportICS(items, weekStart(s.store.Now()))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="schedule.ics"`)
	_, _ = w.Write([]byte(feed))
}
