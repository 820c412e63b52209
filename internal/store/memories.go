package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/serenitybot/serenity/internal/mood"
)

const (
	DefaultImportance  = 3
	DefaultMemoryLimit = 100
)

// Memory is a personal fact the companion may recall in chat.
type Memory struct {
	ID          int64    `json:"id"`
	UserID      string   `json:"user_id"`
	Key         string   `json:"key"`
	Value       string   `json:"value"`
	Tags        []string `json:"tags"`
	Importance  int      `json:"importance"`
	CreatedDate string   `json:"created_date"`
	ExpiresOn   string   `json:"expires_on,omitempty"`
}

func (m Memory) String() string {
	return m.Key + ": " + m.Value
}

func (s *Store) AddMemory(ctx context.Context, m Memory) (Memory, error) {
	m.Key = strings.TrimSpace(m.Key)
	m.Value = strings.TrimSpace(m.Value)
	if m.Key == "" || m.Value == "" {
		return Memory{}, fmt.Errorf("add memory: key and value are required")
	}
	if m.Importance == 0 {
		m.Importance = DefaultImportance
	}
	if m.Importance < 1 || m.Importance > 5 {
		return Memory{}, fmt.Errorf("add memory: importance %d out of range 1-5", m.Importance)
	}
	tags := make([]string, 0, len(m.Tags))
	for _, t := range m.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	m.Tags = tags
	m.ExpiresOn = strings.TrimSpace(m.ExpiresOn)
	m.CreatedDate = s.Today()

	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return Memory{}, fmt.Errorf("marshal memory tags: %w", err)
	}
	var expires sql.NullString
	if m.ExpiresOn != "" {
		expires = sql.NullString{String: m.ExpiresOn, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (user_id, key, value, tags, importance, created_date, expires_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.UserID, m.Key, m.Value, string(tagsJSON), m.Importance, m.CreatedDate, expires, s.stamp())
	if err != nil {
		return Memory{}, fmt.Errorf("add memory: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return Memory{}, fmt.Errorf("add memory id: %w", err)
	}
	return m, nil
}

// ListMemories returns up to limit unexpired memories, oldest first.
func (s *Store) ListMemories(ctx context.Context, userID string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, key, value, tags, importance, created_date, expires_on
		FROM memories
		WHERE user_id = ? AND (expires_on IS NULL OR expires_on >= ?)
		ORDER BY created_date ASC, id ASC
		LIMIT ?
	`, userID, s.Now().Format(mood.DateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	result := make([]Memory, 0)
	for rows.Next() {
		var (
			m       Memory
			tags    string
			expires sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Key, &m.Value, &tags, &m.Importance, &m.CreatedDate, &expires); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, fmt.Errorf("decode memory tags: %w", err)
		}
		m.ExpiresOn = expires.String
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return result, nil
}
