package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/serenitybot/serenity/internal/identity"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      identity.User `json:"user"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	user, err := s.identity.SignUp(r.Context(), req.Email, req.Password)
	s.finishAuth(w, r, user, err, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	user, err := s.identity.Login(r.Context(), req.Email, req.Password)
	s.finishAuth(w, r, user, err, http.StatusOK)
}

func (s *Server) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	user, err := s.identity.Anonymous(r.Context())
	s.finishAuth(w, r, user, err, http.StatusCreated)
}

// finishAuth maps provider errors to responses and opens a session for user.
func (s *Server) finishAuth(w http.ResponseWriter, r *http.Request, user identity.User, err error, status int) {
	var perr *identity.ProviderError
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrEmailRequired), errors.Is(err, identity.ErrPasswordRequired):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, identity.ErrEmailExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.As(err, &perr):
		code := http.StatusUnauthorized
		if perr.Status >= 500 {
			s.logger.Warn("identity provider failed", zap.Error(err))
			code = http.StatusBadGateway
		}
		writeError(w, code, perr.Message())
		return
	default:
		s.internalError(w, r, err)
		return
	}

	sess, err := s.store.CreateSession(r.Context(), user.ID, s.opts.SessionTTL)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, status, authResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := s.store.DeleteSession(r.Context(), token); err != nil {
			s.internalError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
