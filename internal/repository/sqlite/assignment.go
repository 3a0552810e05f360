package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/model"
)

// CreateAssignment assigns a user to an event. The (user_id, event_id)
// primary key makes a concurrent duplicate lose with a Conflict.
func (db *DB) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	if a.Status == "" {
		a.Status = model.AssignmentConfirmed
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO assignments (user_id, event_id, status, assigned_by, assigned_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		a.UserID,
		a.EventID,
		a.Status,
		a.AssignedBy,
		a.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.Conflict("User already assigned to event")
	}

	return nil
}

// DeleteAssignment removes a user from an event.
func (db *DB) DeleteAssignment(ctx context.Context, userID, eventID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM assignments WHERE user_id = ? AND event_id = ?`,
		userID, eventID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("Assignment")
	}

	return nil
}

// ListAssignedEvents returns the events userID is assigned to, latest date
// first.
func (db *DB) ListAssignedEvents(ctx context.Context, userID string) ([]model.Event, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT e.id, e.title, e.date, e.location, e.created_by, e.created_at
		 FROM assignments a
		 JOIN events e ON e.id = a.event_id
		 WHERE a.user_id = ?
		 ORDER BY e.date DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events for user %s: %w", userID, err)
	}
	defer rows.Close()

	return collectEvents(rows)
}
