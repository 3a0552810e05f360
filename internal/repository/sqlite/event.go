package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/model"
)

const eventColumns = `id, title, date, location, created_by, created_at`

// CreateEvent inserts a new event.
//
// xid IDs are 20 chars, URL-safe and sortable by creation time, e.g.
// "cv37rs3pp9olc6atsptg".
func (db *DB) CreateEvent(ctx context.Context, event *model.Event) error {
	if event.ID == "" {
		event.ID = xid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		event.ID,
		event.Title,
		event.Date,
		event.Location,
		event.CreatedBy,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.Conflict("Event already exists")
	}

	return nil
}

// GetEvent retrieves a single event by its ID.
func (db *DB) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting event %s: %w", id, err)
	}
	return e, nil
}

// UpdateEvent applies the non-nil fields of upd.
//
// A nil *string binds as NULL, so COALESCE keeps the current value for every
// field the caller left out.
func (db *DB) UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE events
		 SET title = COALESCE(?, title),
		     date = COALESCE(?, date),
		     location = COALESCE(?, location)
		 WHERE id = ?`,
		upd.Title,
		upd.Date,
		upd.Location,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating event %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, apperror.NotFound("Event")
	}

	return db.GetEvent(ctx, id)
}

// DeleteEvent removes an event. Its assignments go with it (ON DELETE
// CASCADE).
func (db *DB) DeleteEvent(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting event %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("Event")
	}

	return nil
}

// ListEvents returns every event, earliest date first.
func (db *DB) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY date ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func scanEvent(row *sql.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Date, &e.Location, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Event")
		}
		return nil, err
	}
	return &e, nil
}

// collectEvents drains rows. The caller closes them.
func collectEvents(rows *sql.Rows) ([]model.Event, error) {
	events := make([]model.Event, 0)
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Date, &e.Location, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning event row: %w", err)
		}
		events = append(events, e)
	}
	// rows.Err catches failures that happened during iteration.
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating events: %w", err)
	}
	return events, nil
}
