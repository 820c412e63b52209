package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/serenitybot/serenity/internal/letters"
	"github.com/serenitybot/serenity/internal/store"
)

func (s *Server) handleDueLetters(w http.ResponseWriter, r *http.Request) {
	due, err := s.store.DueLetters(r.Context(), UserID(r))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, due)
}

func (s *Server) handleWriteLetter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content   string `json:"content"`
		DeliverOn string `json:"deliver_on"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "letter is empty")
		return
	}
	day, err := letters.DeliverOn(s.store.Now(), req.DeliverOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := s.store.StoreLetter(r.Context(), UserID(r), req.Content, day)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleReadLetter(w http.ResponseWriter, r *http.Request) {
	err := s.store.MarkLetterDelivered(r.Context(), UserID(r), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "letter not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultMemoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	mems, err := s.store.ListMemories(r.Context(), UserID(r), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mems)
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var m store.Memory
	if !decode(w, r, &m) {
		return
	}
	m.ID = 0
	m.UserID = UserID(r)
	if strings.TrimSpace(m.Key) == "" || strings.TrimSpace(m.Value) == "" {
		writeError(w, http.StatusBadRequest, "key and value are required")
		return
	}
	if m.Importance < 0 || m.Importance > 5 {
		writeError(w, http.StatusBadRequest, "importance must be 1-5")
		return
	}
	saved, err := s.store.AddMemory(r.Context(), m)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}
