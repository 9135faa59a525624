// Package flatfile implements the reservation store on line-delimited files.
// Every rewrite goes through copy-then-atomic-rename so a crash never leaves
// a half-written store behind.
package flatfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/classroom-reservation/internal/persistence"
)

const (
	requestsFile        = "requests.txt"
	changesFile         = "changes.txt"
	approvedLectureFile = "approved_lecture.txt"
	approvedLabFile     = "approved_lab.txt"
	auditFile           = "approved_audit.txt"
	notificationsFile   = "offline_notifications.txt"
)

// Store keeps reservation records in flat files under a single directory.
// It implements persistence.ReservationStore and persistence.NotificationStore.
type Store struct {
	dir string
	now func() time.Time
}

// Open prepares the data directory. Store files are created lazily on first
// write; a missing file reads as empty.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("flatfile: create data dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) approvedFile(kind persistence.Kind) string {
	if kind == persistence.KindLab {
		return approvedLabFile
	}
	return approvedLectureFile
}

// AppendRequest adds a pending reservation row.
func (s *Store) AppendRequest(ctx context.Context, rec persistence.Reservation) error {
	return s.appendLine(requestsFile, encodeReservation(rec))
}

// ScanRequests returns every decodable pending reservation row.
func (s *Store) ScanRequests(ctx context.Context) ([]persistence.Reservation, error) {
	return s.scanReservations(requestsFile)
}

// DeleteRequest removes the first pending row matching the key and returns it.
func (s *Store) DeleteRequest(ctx context.Context, match persistence.ReservationMatch) (persistence.Reservation, error) {
	return s.deleteReservation(requestsFile, match)
}

// AppendChange adds a pending change-request row.
func (s *Store) AppendChange(ctx context.Context, rec persistence.ChangeRequest) error {
	return s.appendLine(changesFile, encodeChange(rec))
}

// ScanChanges returns every decodable pending change-request row.
func (s *Store) ScanChanges(ctx context.Context) ([]persistence.ChangeRequest, error) {
	lines, err := s.readLines(changesFile)
	if err != nil {
		return nil, err
	}
	out := make([]persistence.ChangeRequest, 0, len(lines))
	for _, line := range lines {
		rec, err := decodeChange(line)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteChange removes the first change row matching the key and returns it.
func (s *Store) DeleteChange(ctx context.Context, match persistence.ChangeMatch) (persistence.ChangeRequest, error) {
	lines, err := s.readLines(changesFile)
	if err != nil {
		return persistence.ChangeRequest{}, err
	}

	kept := make([]string, 0, len(lines))
	var deleted persistence.ChangeRequest
	found := false
	for _, line := range lines {
		rec, decErr := decodeChange(line)
		if decErr == nil && !found && match.Matches(rec) {
			deleted = rec
			found = true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		return persistence.ChangeRequest{}, persistence.ErrNotFound
	}
	if err := s.writeLines(changesFile, kept); err != nil {
		return persistence.ChangeRequest{}, err
	}
	return deleted, nil
}

// AppendApproved adds an approved reservation row to the store for the
// room's kind.
func (s *Store) AppendApproved(ctx context.Context, kind persistence.Kind, rec persistence.Reservation) error {
	return s.appendLine(s.approvedFile(kind), encodeReservation(rec))
}

// ScanApproved returns every decodable approved row for the kind.
func (s *Store) ScanApproved(ctx context.Context, kind persistence.Kind) ([]persistence.Reservation, error) {
	return s.scanReservations(s.approvedFile(kind))
}

// DeleteApproved removes the first approved row matching the key and
// returns it.
func (s *Store) DeleteApproved(ctx context.Context, kind persistence.Kind, match persistence.ReservationMatch) (persistence.Reservation, error) {
	return s.deleteReservation(s.approvedFile(kind), match)
}

// AppendAudit records an approval in the append-only audit trail. The trail
// is never read by the engine.
func (s *Store) AppendAudit(ctx context.Context, rec persistence.Reservation) error {
	line := fmt.Sprintf("%s,%s,%s", uuid.NewString(), s.now().UTC().Format(time.RFC3339), encodeReservation(rec))
	return s.appendLine(auditFile, line)
}

// AppendNotification queues an offline notification.
func (s *Store) AppendNotification(ctx context.Context, n persistence.Notification) error {
	return s.appendLine(notificationsFile, encodeNotification(n))
}

// TakeNotifications removes and returns the recipient's queued notifications
// in the order they were appended. Other recipients' rows are untouched.
func (s *Store) TakeNotifications(ctx context.Context, recipientID string) ([]persistence.Notification, error) {
	lines, err := s.readLines(notificationsFile)
	if err != nil {
		return nil, err
	}

	kept := make([]string, 0, len(lines))
	taken := make([]persistence.Notification, 0)
	for _, line := range lines {
		n, decErr := decodeNotification(line)
		if decErr == nil && n.RecipientID == strings.TrimSpace(recipientID) {
			taken = append(taken, n)
			continue
		}
		kept = append(kept, line)
	}
	if len(taken) == 0 {
		return nil, nil
	}
	if err := s.writeLines(notificationsFile, kept); err != nil {
		return nil, err
	}
	return taken, nil
}

func (s *Store) scanReservations(name string) ([]persistence.Reservation, error) {
	lines, err := s.readLines(name)
	if err != nil {
		return nil, err
	}
	out := make([]persistence.Reservation, 0, len(lines))
	for _, line := range lines {
		rec, err := decodeReservation(line)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) deleteReservation(name string, match persistence.ReservationMatch) (persistence.Reservation, error) {
	lines, err := s.readLines(name)
	if err != nil {
		return persistence.Reservation{}, err
	}

	kept := make([]string, 0, len(lines))
	var deleted persistence.Reservation
	found := false
	for _, line := range lines {
		rec, decErr := decodeReservation(line)
		if decErr == nil && !found && match.Matches(rec) {
			deleted = rec
			found = true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	if err := s.writeLines(name, kept); err != nil {
		return persistence.Reservation{}, err
	}
	return deleted, nil
}

func (s *Store) readLines(name string) ([]string, error) {
	file, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("flatfile: open %s: %w", name, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("flatfile: read %s: %w", name, err)
	}
	return lines, nil
}

func (s *Store) appendLine(name, line string) error {
	lines, err := s.readLines(name)
	if err != nil {
		return err
	}
	return s.writeLines(name, append(lines, line))
}

// writeLines replaces a store file through a sibling temp file and rename.
func (s *Store) writeLines(name string, lines []string) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("flatfile: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("flatfile: rename %s: %w", name, err)
	}
	return nil
}
