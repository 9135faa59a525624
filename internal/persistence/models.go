package persistence

import "strings"

// Kind partitions approved reservations by the referenced room's kind.
type Kind string

const (
	KindLecture Kind = "LECTURE"
	KindLab     Kind = "LAB"
)

// ReservationStatus is the lifecycle state persisted with a reservation row.
type ReservationStatus string

const (
	StatusPending  ReservationStatus = "PENDING"
	StatusApproved ReservationStatus = "APPROVED"
)

// Reservation is a stored reservation row: a pending request or an approved
// reservation, distinguished by Status. Rows are never updated in place; the
// workflow deletes and re-appends.
type Reservation struct {
	RequesterName    string
	Room             string
	Date             string
	Weekday          string
	Slot             string
	Purpose          string
	Role             string
	Status           ReservationStatus
	ParticipantCount int
	OwnerID          string
}

// ChangeRequest is a stored request to move an approved reservation to a new
// (room, date, slot), keeping the original key for the supersede step.
type ChangeRequest struct {
	OwnerID          string
	NewSlot          string
	NewDate          string
	NewWeekday       string
	NewRoom          string
	RequesterName    string
	Purpose          string
	Role             string
	OriginalSlot     string
	OriginalDate     string
	OriginalWeekday  string
	OriginalRoom     string
	ParticipantCount int
}

// Notification is a stored offline notification awaiting delivery.
type Notification struct {
	ID            string
	RecipientID   string
	RecipientName string
	Type          string
	Room          string
	Date          string
	Weekday       string
	Slot          string
	Message       string
}

// ReservationMatch is the composite key used to locate reservation rows.
// The requester is matched by owner id or display name (historical data
// carries either); an empty Date or Weekday skips that comparison; slot
// labels are normalized before comparison.
type ReservationMatch struct {
	OwnerID       string
	RequesterName string
	Room          string
	Date          string
	Weekday       string
	Slot          string
}

// Matches reports whether the reservation row satisfies the key.
func (m ReservationMatch) Matches(r Reservation) bool {
	requesterOK := false
	if m.OwnerID != "" && strings.TrimSpace(r.OwnerID) == strings.TrimSpace(m.OwnerID) {
		requesterOK = true
	}
	if m.RequesterName != "" && strings.TrimSpace(r.RequesterName) == strings.TrimSpace(m.RequesterName) {
		requesterOK = true
	}
	if m.OwnerID == "" && m.RequesterName == "" {
		requesterOK = true
	}
	if !requesterOK {
		return false
	}

	if strings.TrimSpace(r.Room) != strings.TrimSpace(m.Room) {
		return false
	}
	if m.Date != "" && strings.TrimSpace(r.Date) != strings.TrimSpace(m.Date) {
		return false
	}
	if m.Weekday != "" && strings.TrimSpace(r.Weekday) != strings.TrimSpace(m.Weekday) {
		return false
	}
	return normalizeSlot(r.Slot) == normalizeSlot(m.Slot)
}

// ChangeMatch is the composite key used to locate change-request rows.
type ChangeMatch struct {
	OwnerID       string
	NewSlot       string
	NewDate       string
	NewWeekday    string
	NewRoom       string
	RequesterName string
}

// Matches reports whether the change-request row satisfies the key.
func (m ChangeMatch) Matches(c ChangeRequest) bool {
	if strings.TrimSpace(c.OwnerID) != strings.TrimSpace(m.OwnerID) {
		return false
	}
	if m.RequesterName != "" && strings.TrimSpace(c.RequesterName) != strings.TrimSpace(m.RequesterName) {
		return false
	}
	if strings.TrimSpace(c.NewRoom) != strings.TrimSpace(m.NewRoom) {
		return false
	}
	if strings.TrimSpace(c.NewDate) != strings.TrimSpace(m.NewDate) {
		return false
	}
	if m.NewWeekday != "" && strings.TrimSpace(c.NewWeekday) != strings.TrimSpace(m.NewWeekday) {
		return false
	}
	return normalizeSlot(c.NewSlot) == normalizeSlot(m.NewSlot)
}

func normalizeSlot(slot string) string {
	if i := strings.Index(slot, "("); i >= 0 {
		slot = slot[:i]
	}
	return strings.TrimSpace(slot)
}
