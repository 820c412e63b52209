package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/serenitybot/serenity/internal/mood"
)

// Letter is a note to the author's future self.
type Letter struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Content     string     `json:"content"`
	DeliverOn   string     `json:"deliver_on"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// StoreLetter saves an undelivered letter. deliverOn must be a YYYY-MM-DD date.
func (s *Store) StoreLetter(ctx context.Context, userID, content, deliverOn string) (Letter, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Letter{}, fmt.Errorf("store letter: empty content")
	}
	if _, err := time.Parse(mood.DateLayout, deliverOn); err != nil {
		return Letter{}, fmt.Errorf("store letter: bad deliver date %q: %w", deliverOn, err)
	}
	l := Letter{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		DeliverOn: deliverOn,
		CreatedAt: s.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO letters (id, user_id, content, deliver_on, delivered, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, l.ID, l.UserID, l.Content, l.DeliverOn, l.CreatedAt.Format(timeLayout))
	if err != nil {
		return Letter{}, fmt.Errorf("store letter: %w", err)
	}
	return l, nil
}

// DueLetters returns the user's undelivered letters whose date has arrived.
func (s *Store) DueLetters(ctx context.Context, userID string) ([]Letter, error) {
	return s.queryLetters(ctx, `
		SELECT id, user_id, content, deliver_on, delivered, delivered_at, created_at
		FROM letters
		WHERE user_id = ? AND delivered = 0 AND deliver_on <= ?
		ORDER BY deliver_on ASC, created_at ASC
	`, userID, s.Today())
}

// AllDueLetters is DueLetters across every user.
func (s *Store) AllDueLetters(ctx context.Context) ([]Letter, error) {
	return s.queryLetters(ctx, `
		SELECT id, user_id, content, deliver_on, delivered, delivered_at, created_at
		FROM letters
		WHERE delivered = 0 AND deliver_on <= ?
		ORDER BY deliver_on ASC, created_at ASC
	`, s.Today())
}

// MarkLetterDelivered flags the owner's letter as read. Letters of other users are not found.
func (s *Store) MarkLetterDelivered(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE letters SET delivered = 1, delivered_at = ?
		WHERE id = ? AND user_id = ?
	`, s.stamp(), id, userID)
	if err != nil {
		return fmt.Errorf("mark letter delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark letter delivered: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) queryLetters(ctx context.Context, q string, args ...any) ([]Letter, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query letters: %w", err)
	}
	defer rows.Close()

	result := make([]Letter, 0)
	for rows.Next() {
		var (
			l           Letter
			delivered   int
			deliveredAt sql.NullString
			created     string
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Content, &l.DeliverOn, &delivered, &deliveredAt, &created); err != nil {
			return nil, fmt.Errorf("scan letter: %w", err)
		}
		l.Delivered = delivered == 1
		if deliveredAt.Valid {
			t := parseStamp(deliveredAt.String)
			l.DeliveredAt = &t
		}
		l.CreatedAt = parseStamp(created)
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate letters: %w", err)
	}
	return result, nil
}
