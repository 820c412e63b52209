package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/serenitybot/serenity/internal/schedule"
)

// AddScheduleItem validates and normalises it, issues a stable id and appends it to the user's schedule.
func (s *Store) AddScheduleItem(ctx context.Context, userID string, it schedule.Item) (schedule.Item, error) {
	it, err := it.Normalize()
	if err != nil {
		return schedule.Item{}, err
	}
	it.ID = uuid.NewString()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedule_items (id, user_id, title, days, start_time, end_time, priority, travel_mins, location, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.ID, userID, it.Title, joinDays(it.Days), it.StartTime, it.EndTime, it.Priority, it.TravelMins, it.Location, it.Notes, s.stamp())
	if err != nil {
		return schedule.Item{}, fmt.Errorf("add schedule item: %w", err)
	}
	return it, nil
}

// ListSchedule returns the user's items in creation order with optional fields resolved.
func (s *Store) ListSchedule(ctx context.Context, userID string) ([]schedule.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, days, start_time, end_time, priority, travel_mins, location, notes
		FROM schedule_items
		WHERE user_id = ?
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	result := make([]schedule.Item, 0)
	for rows.Next() {
		var (
			it       schedule.Item
			days     string
			priority sql.NullInt64
			travel   sql.NullInt64
		)
		if err := rows.Scan(&it.ID, &it.Title, &days, &it.StartTime, &it.EndTime, &priority, &travel, &it.Location, &it.Notes); err != nil {
			return nil, fmt.Errorf("scan schedule item: %w", err)
		}
		it.Days = splitDays(days)
		if priority.Valid {
			it.Priority = int(priority.Int64)
		}
		if travel.Valid {
			it.TravelMins = int(travel.Int64)
		}
		it.ApplyDefaults()
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule: %w", err)
	}
	return result, nil
}

// DeleteScheduleItem removes the user's item by id.
func (s *Store) DeleteScheduleItem(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedule_items WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete schedule item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete schedule item: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func joinDays(days []schedule.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

func splitDays(v string) []schedule.Weekday {
	if strings.TrimSpace(v) == "" {
		return []schedule.Weekday{}
	}
	parts := strings.Split(v, ",")
	days := make([]schedule.Weekday, 0, len(parts))
	for _, p := range parts {
		days = append(days, schedule.Weekday(strings.TrimSpace(p)))
	}
	return days
}
