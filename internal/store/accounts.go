package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrSessionExpired = errors.New("session expired")
)

// Account is a locally managed identity.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Anonymous    bool
	CreatedAt    time.Time
}

// Session is an API bearer token bound to a user id.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Store) CreateAccount(ctx context.Context, a Account) error {
	var email sql.NullString
	if a.Email != "" {
		email = sql.NullString{String: strings.ToLower(strings.TrimSpace(a.Email)), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, anonymous, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, email, a.PasswordHash, boolToInt(a.Anonymous), s.stamp())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (Account, error) {
	var (
		a       Account
		stored  sql.NullString
		anon    int
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, anonymous, created_at
		FROM accounts WHERE email = ?
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&a.ID, &stored, &a.PasswordHash, &anon, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("query account: %w", err)
	}
	a.Email = stored.String
	a.Anonymous = anon == 1
	a.CreatedAt = parseStamp(created)
	return a, nil
}

// CreateSession issues a random bearer token valid for ttl.
func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}
	now := s.Now().UTC()
	sess := Session{
		Token:     hex.EncodeToString(buf),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)
	`, sess.Token, sess.UserID, sess.CreatedAt.Format(timeLayout), sess.ExpiresAt.Format(timeLayout))
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// ValidateSession resolves a token. Expired sessions are removed and reported as ErrSessionExpired.
func (s *Store) ValidateSession(ctx context.Context, token string) (Session, error) {
	var sess Session
	var created, expires string
	err := s.db.QueryRowContext(ctx, `
		SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?
	`, token).Scan(&sess.Token, &sess.UserID, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	sess.CreatedAt = parseStamp(created)
	sess.ExpiresAt = parseStamp(expires)
	if !s.Now().Before(sess.ExpiresAt) {
		_ = s.DeleteSession(ctx, token)
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
