// Package sqlite implements the reservation store on an embedded SQLite
// database. It satisfies the same interfaces as the flat-file backend so the
// workflow can swap storage without change.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/example/classroom-reservation/internal/persistence"
)

// Store implements persistence.ReservationStore and
// persistence.NotificationStore on database/sql.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to the database and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// The driver serializes writes; a single connection avoids SQLITE_BUSY
	// under the workflow's store lock.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			requester_name TEXT NOT NULL,
			room TEXT NOT NULL,
			date TEXT NOT NULL,
			weekday TEXT NOT NULL,
			slot TEXT NOT NULL,
			purpose TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			participant_count INTEGER NOT NULL,
			owner_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			new_slot TEXT NOT NULL,
			new_date TEXT NOT NULL,
			new_weekday TEXT NOT NULL,
			new_room TEXT NOT NULL,
			requester_name TEXT NOT NULL,
			purpose TEXT NOT NULL,
			role TEXT NOT NULL,
			orig_slot TEXT NOT NULL,
			orig_date TEXT NOT NULL,
			orig_weekday TEXT NOT NULL,
			orig_room TEXT NOT NULL,
			participant_count INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS approved (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			requester_name TEXT NOT NULL,
			room TEXT NOT NULL,
			date TEXT NOT NULL,
			weekday TEXT NOT NULL,
			slot TEXT NOT NULL,
			purpose TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			participant_count INTEGER NOT NULL,
			owner_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			audit_id TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			requester_name TEXT NOT NULL,
			room TEXT NOT NULL,
			date TEXT NOT NULL,
			weekday TEXT NOT NULL,
			slot TEXT NOT NULL,
			purpose TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			participant_count INTEGER NOT NULL,
			owner_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			notification_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			recipient_name TEXT NOT NULL,
			type TEXT NOT NULL,
			room TEXT NOT NULL,
			date TEXT NOT NULL,
			weekday TEXT NOT NULL,
			slot TEXT NOT NULL,
			message TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

// AppendRequest adds a pending reservation row.
func (s *Store) AppendRequest(ctx context.Context, rec persistence.Reservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (requester_name, room, date, weekday, slot, purpose, role, status, participant_count, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequesterName, rec.Room, rec.Date, rec.Weekday, rec.Slot,
		rec.Purpose, rec.Role, string(rec.Status), rec.ParticipantCount, rec.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert request: %w", err)
	}
	return nil
}

// ScanRequests returns every pending reservation row in insertion order.
func (s *Store) ScanRequests(ctx context.Context) ([]persistence.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT requester_name, room, date, weekday, slot, purpose, role, status, participant_count, owner_id
		FROM requests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan requests: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

// DeleteRequest removes the first pending row matching the key and returns it.
func (s *Store) DeleteRequest(ctx context.Context, match persistence.ReservationMatch) (persistence.Reservation, error) {
	return s.deleteReservation(ctx, "requests", "", match)
}

// AppendChange adds a pending change-request row.
func (s *Store) AppendChange(ctx context.Context, rec persistence.ChangeRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO changes (owner_id, new_slot, new_date, new_weekday, new_room, requester_name, purpose, role,
			orig_slot, orig_date, orig_weekday, orig_room, participant_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OwnerID, rec.NewSlot, rec.NewDate, rec.NewWeekday, rec.NewRoom,
		rec.RequesterName, rec.Purpose, rec.Role,
		rec.OriginalSlot, rec.OriginalDate, rec.OriginalWeekday, rec.OriginalRoom,
		rec.ParticipantCount,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert change: %w", err)
	}
	return nil
}

// ScanChanges returns every pending change-request row in insertion order.
func (s *Store) ScanChanges(ctx context.Context) ([]persistence.ChangeRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, new_slot, new_date, new_weekday, new_room, requester_name, purpose, role,
			orig_slot, orig_date, orig_weekday, orig_room, participant_count
		FROM changes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan changes: %w", err)
	}
	defer rows.Close()

	var out []persistence.ChangeRequest
	for rows.Next() {
		var rec persistence.ChangeRequest
		if err := rows.Scan(&rec.OwnerID, &rec.NewSlot, &rec.NewDate, &rec.NewWeekday, &rec.NewRoom,
			&rec.RequesterName, &rec.Purpose, &rec.Role,
			&rec.OriginalSlot, &rec.OriginalDate, &rec.OriginalWeekday, &rec.OriginalRoom,
			&rec.ParticipantCount); err != nil {
			return nil, fmt.Errorf("sqlite: scan change row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteChange removes the first change row matching the key and returns it.
func (s *Store) DeleteChange(ctx context.Context, match persistence.ChangeMatch) (persistence.ChangeRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, new_slot, new_date, new_weekday, new_room, requester_name, purpose, role,
			orig_slot, orig_date, orig_weekday, orig_room, participant_count
		FROM changes ORDER BY id`)
	if err != nil {
		return persistence.ChangeRequest{}, fmt.Errorf("sqlite: scan changes: %w", err)
	}
	defer rows.Close()

	// Slot comparison is normalized, so matching happens in Go rather than SQL.
	for rows.Next() {
		var id int64
		var rec persistence.ChangeRequest
		if err := rows.Scan(&id, &rec.OwnerID, &rec.NewSlot, &rec.NewDate, &rec.NewWeekday, &rec.NewRoom,
			&rec.RequesterName, &rec.Purpose, &rec.Role,
			&rec.OriginalSlot, &rec.OriginalDate, &rec.OriginalWeekday, &rec.OriginalRoom,
			&rec.ParticipantCount); err != nil {
			return persistence.ChangeRequest{}, fmt.Errorf("sqlite: scan change row: %w", err)
		}
		if match.Matches(rec) {
			rows.Close()
			if _, err := s.db.ExecContext(ctx, `DELETE FROM changes WHERE id = ?`, id); err != nil {
				return persistence.ChangeRequest{}, fmt.Errorf("sqlite: delete change: %w", err)
			}
			return rec, nil
		}
	}
	if err := rows.Err(); err != nil {
		return persistence.ChangeRequest{}, err
	}
	return persistence.ChangeRequest{}, persistence.ErrNotFound
}

// AppendApproved adds an approved reservation row for the room's kind.
func (s *Store) AppendApproved(ctx context.Context, kind persistence.Kind, rec persistence.Reservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approved (kind, requester_name, room, date, weekday, slot, purpose, role, status, participant_count, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(kind), rec.RequesterName, rec.Room, rec.Date, rec.Weekday, rec.Slot,
		rec.Purpose, rec.Role, string(rec.Status), rec.ParticipantCount, rec.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert approved: %w", err)
	}
	return nil
}

// ScanApproved returns every approved row for the kind in insertion order.
func (s *Store) ScanApproved(ctx context.Context, kind persistence.Kind) ([]persistence.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT requester_name, room, date, weekday, slot, purpose, role, status, participant_count, owner_id
		FROM approved WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan approved: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

// DeleteApproved removes the first approved row matching the key and returns it.
func (s *Store) DeleteApproved(ctx context.Context, kind persistence.Kind, match persistence.ReservationMatch) (persistence.Reservation, error) {
	return s.deleteReservation(ctx, "approved", string(kind), match)
}

// AppendAudit records an approval in the append-only audit table.
func (s *Store) AppendAudit(ctx context.Context, rec persistence.Reservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit (audit_id, recorded_at, requester_name, room, date, weekday, slot, purpose, role, status, participant_count, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), s.now().UTC().Format(time.RFC3339),
		rec.RequesterName, rec.Room, rec.Date, rec.Weekday, rec.Slot,
		rec.Purpose, rec.Role, string(rec.Status), rec.ParticipantCount, rec.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert audit: %w", err)
	}
	return nil
}

// AppendNotification queues an offline notification.
func (s *Store) AppendNotification(ctx context.Context, n persistence.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (notification_id, recipient_id, recipient_name, type, room, date, weekday, slot, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.RecipientName, n.Type, n.Room, n.Date, n.Weekday, n.Slot, n.Message,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert notification: %w", err)
	}
	return nil
}

// TakeNotifications removes and returns the recipient's queued notifications
// in FIFO order.
func (s *Store) TakeNotifications(ctx context.Context, recipientID string) ([]persistence.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT notification_id, recipient_id, recipient_name, type, room, date, weekday, slot, message
		FROM notifications WHERE recipient_id = ? ORDER BY id`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan notifications: %w", err)
	}
	defer rows.Close()

	var out []persistence.Notification
	for rows.Next() {
		var n persistence.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.RecipientName, &n.Type,
			&n.Room, &n.Date, &n.Weekday, &n.Slot, &n.Message); err != nil {
			return nil, fmt.Errorf("sqlite: scan notification row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id = ?`, recipientID); err != nil {
		return nil, fmt.Errorf("sqlite: clear notifications: %w", err)
	}
	return out, nil
}

func (s *Store) deleteReservation(ctx context.Context, table, kind string, match persistence.ReservationMatch) (persistence.Reservation, error) {
	query := `SELECT id, requester_name, room, date, weekday, slot, purpose, role, status, participant_count, owner_id FROM ` + table
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return persistence.Reservation{}, fmt.Errorf("sqlite: scan %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var rec persistence.Reservation
		var status string
		if err := rows.Scan(&id, &rec.RequesterName, &rec.Room, &rec.Date, &rec.Weekday, &rec.Slot,
			&rec.Purpose, &rec.Role, &status, &rec.ParticipantCount, &rec.OwnerID); err != nil {
			return persistence.Reservation{}, fmt.Errorf("sqlite: scan %s row: %w", table, err)
		}
		rec.Status = persistence.ReservationStatus(status)
		if match.Matches(rec) {
			rows.Close()
			if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
				return persistence.Reservation{}, fmt.Errorf("sqlite: delete from %s: %w", table, err)
			}
			return rec, nil
		}
	}
	if err := rows.Err(); err != nil {
		return persistence.Reservation{}, err
	}
	return persistence.Reservation{}, persistence.ErrNotFound
}

func collectReservations(rows *sql.Rows) ([]persistence.Reservation, error) {
	var out []persistence.Reservation
	for rows.Next() {
		var rec persistence.Reservation
		var status string
		if err := rows.Scan(&rec.RequesterName, &rec.Room, &rec.Date, &rec.Weekday, &rec.Slot,
			&rec.Purpose, &rec.Role, &status, &rec.ParticipantCount, &rec.OwnerID); err != nil {
			return nil, fmt.Errorf("sqlite: scan reservation row: %w", err)
		}
		rec.Status = persistence.ReservationStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
