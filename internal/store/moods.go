package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/serenitybot/serenity/internal/mood"
)

// LogMood records a mood for today and returns the stored entry.
func (s *Store) LogMood(ctx context.Context, userID, label, note, reflection string) (mood.Entry, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return mood.Entry{}, fmt.Errorf("log mood: empty mood")
	}
	now := s.Now()
	e := mood.Entry{
		UserID:     userID,
		Mood:       label,
		Note:       strings.TrimSpace(note),
		Reflection: strings.TrimSpace(reflection),
		Date:       now.Format(mood.DateLayout),
		CreatedAt:  now.UTC(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO moods (user_id, mood, note, reflection, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.UserID, e.Mood, e.Note, e.Reflection, e.Date, e.CreatedAt.Format(timeLayout))
	if err != nil {
		return mood.Entry{}, fmt.Errorf("log mood: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return mood.Entry{}, fmt.Errorf("log mood id: %w", err)
	}
	return e, nil
}

// ListRecentMoods returns entries dated within the last days days, oldest first.
func (s *Store) ListRecentMoods(ctx context.Context, userID string, days int) ([]mood.Entry, error) {
	since := s.Now().AddDate(0, 0, -days).Format(mood.DateLayout)
	return s.queryMoods(ctx, `
		SELECT id, user_id, mood, note, reflection, date, created_at
		FROM moods
		WHERE user_id = ? AND date >= ?
		ORDER BY date ASC, id ASC
	`, userID, since)
}

// MoodsOn returns one day's entries in logging order.
func (s *Store) MoodsOn(ctx context.Context, userID, date string) ([]mood.Entry, error) {
	return s.queryMoods(ctx, `
		SELECT id, user_id, mood, note, reflection, date, created_at
		FROM moods
		WHERE user_id = ? AND date = ?
		ORDER BY id ASC
	`, userID, date)
}

// MoodUsersOn lists users that logged anything on date.
func (s *Store) MoodUsersOn(ctx context.Context, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM moods WHERE date = ? ORDER BY user_id`, date)
	if err != nil {
		return nil, fmt.Errorf("query mood users: %w", err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan mood user: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mood users: %w", err)
	}
	return users, nil
}

func (s *Store) queryMoods(ctx context.Context, q string, args ...any) ([]mood.Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query moods: %w", err)
	}
	defer rows.Close()

	result := make([]mood.Entry, 0)
	for rows.Next() {
		var e mood.Entry
		var created string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Mood, &e.Note, &e.Reflection, &e.Date, &created); err != nil {
			return nil, fmt.Errorf("scan mood: %w", err)
		}
		e.CreatedAt = parseStamp(created)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moods: %w", err)
	}
	return result, nil
}

// UpsertDailyReport stores the report keyed by user and date, replacing any earlier one.
func (s *Store) UpsertDailyReport(ctx context.Context, r mood.DailyReport) error {
	notes := r.Notes
	if notes == nil {
		notes = []string{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("marshal report notes: %w", err)
	}
	var avg sql.NullFloat64
	if r.AvgScore != nil {
		avg = sql.NullFloat64{Float64: *r.AvgScore, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_reports (user_id, date, count_entries, avg_score, good_deeds, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			count_entries = excluded.count_entries,
			avg_score = excluded.avg_score,
			good_deeds = excluded.good_deeds,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, r.UserID, r.Date, r.Count, avg, r.GoodDeeds, string(notesJSON), s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert daily report: %w", err)
	}
	return nil
}

func (s *Store) DailyReport(ctx context.Context, userID, date string) (mood.DailyReport, error) {
	var (
		r     mood.DailyReport
		avg   sql.NullFloat64
		notes string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, date, count_entries, avg_score, good_deeds, notes
		FROM daily_reports
		WHERE user_id = ? AND date = ?
	`, userID, date).Scan(&r.UserID, &r.Date, &r.Count, &avg, &r.GoodDeeds, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return mood.DailyReport{}, ErrNotFound
	}
	if err != nil {
		return mood.DailyReport{}, fmt.Errorf("query daily report: %w", err)
	}
	if avg.Valid {
		v := avg.Float64
		r.AvgScore = &v
	}
	if err := json.Unmarshal([]byte(notes), &r.Notes); err != nil {
		return mood.DailyReport{}, fmt.Errorf("decode report notes: %w", err)
	}
	return r, nil
}

// RefreshDailyReport rebuilds one user's report for date from the logged moods.
func (s *Store) RefreshDailyReport(ctx context.Context, userID, date string) (mood.DailyReport, error) {
	entries, err := s.MoodsOn(ctx, userID, date)
	if err != nil {
		return mood.DailyReport{}, err
	}
	r := mood.BuildDailyReport(userID, date, entries)
	if err := s.UpsertDailyReport(ctx, r); err != nil {
		return mood.DailyReport{}, err
	}
	return r, nil
}
