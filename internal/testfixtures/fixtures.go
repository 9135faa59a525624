// Package testfixtures provides deterministic building blocks for tests:
// a controllable clock, a sequential id generator, and reservation record
// fixtures with sensible defaults.
package testfixtures

import (
	"time"

	"github.com/example/classroom-reservation/internal/persistence"
)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
}

// ReservationFixture builds persistence.Reservation records for tests.
type ReservationFixture struct {
	rec persistence.Reservation
}

// ReservationOption mutates a reservation fixture.
type ReservationOption func(*persistence.Reservation)

// NewReservationFixture returns a fixture seeded with a plausible pending
// request; options override individual fields.
func NewReservationFixture(opts ...ReservationOption) ReservationFixture {
	rec := persistence.Reservation{
		RequesterName:    "alice",
		Room:             "908",
		Date:             "2026-02-02",
		Weekday:          "Monday",
		Slot:             "3",
		Purpose:          "seminar",
		Role:             "student",
		Status:           persistence.StatusPending,
		ParticipantCount: 10,
		OwnerID:          "u-alice",
	}
	for _, opt := range opts {
		opt(&rec)
	}
	return ReservationFixture{rec: rec}
}

// WithOwner sets the owner id and display name.
func WithOwner(id, name string) ReservationOption {
	return func(r *persistence.Reservation) {
		r.OwnerID = id
		r.RequesterName = name
	}
}

// WithBooking sets the (room, date, weekday, slot) key.
func WithBooking(room, date, weekday, slot string) ReservationOption {
	return func(r *persistence.Reservation) {
		r.Room = room
		r.Date = date
		r.Weekday = weekday
		r.Slot = slot
	}
}

// WithStatus sets the lifecycle status.
func WithStatus(status persistence.ReservationStatus) ReservationOption {
	return func(r *persistence.Reservation) {
		r.Status = status
	}
}

// WithParticipants sets the headcount.
func WithParticipants(count int) ReservationOption {
	return func(r *persistence.Reservation) {
		r.ParticipantCount = count
	}
}

// Legacy clears the owner id, producing a row in the pre-owner-id shape.
func Legacy() ReservationOption {
	return func(r *persistence.Reservation) {
		r.OwnerID = ""
	}
}

// Record returns the assembled reservation.
func (f ReservationFixture) Record() persistence.Reservation {
	return f.rec
}
