// Package admission holds the pure reservation admission rules: slot
// normalization, time-slot conflict detection, and the capacity ceiling.
// It performs no I/O; the workflow feeds it the live records it scanned
// under the store lock.
package admission

import "strings"

// Booking is the (room, date, slot) occupancy of a live record: a pending
// request, a pending change request, or an approved reservation.
type Booking struct {
	Room string
	Date string
	Slot string
}

// NormalizeSlot strips a trailing parenthetical annotation from a slot label
// so "3(13:00-14:00)" and "3" compare equal.
func NormalizeSlot(slot string) string {
	if i := strings.Index(slot, "("); i >= 0 {
		slot = slot[:i]
	}
	return strings.TrimSpace(slot)
}

// Conflicts reports whether any live booking occupies the normalized
// (room, date, slot) key. First submission wins: a later submission at an
// occupied key is rejected outright, with no queueing or priority.
func Conflicts(existing []Booking, room, date, slot string) bool {
	room = strings.TrimSpace(room)
	date = strings.TrimSpace(date)
	slot = NormalizeSlot(slot)

	for _, b := range existing {
		if strings.TrimSpace(b.Room) == room &&
			strings.TrimSpace(b.Date) == date &&
			NormalizeSlot(b.Slot) == slot {
			return true
		}
	}
	return false
}

// FirstConflict bulk-validates candidate bookings against the live records,
// returning the slot label of the first conflicting candidate.
func FirstConflict(existing []Booking, candidates []Booking) (string, bool) {
	for _, cand := range candidates {
		if Conflicts(existing, cand.Room, cand.Date, cand.Slot) {
			return cand.Slot, true
		}
	}
	return "", false
}

// CheckCapacity reports whether the requested headcount fits within the
// allowed admission ceiling.
func CheckCapacity(allowed, requested int) bool {
	return requested > 0 && requested <= allowed
}
