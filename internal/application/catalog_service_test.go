package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/classroom-reservation/internal/catalog"
)

func newCatalogHarness(t *testing.T) (*CatalogService, *harness) {
	t.Helper()
	h := newHarness(t)
	return NewCatalogService(h.catalog, h.service, nil), h
}

func TestCatalogMutationsRequireStaff(t *testing.T) {
	svc, _ := newCatalogHarness(t)
	ctx := context.Background()
	p := student("u-alice")

	if err := svc.AddClassroom(ctx, p, catalog.Classroom{Name: "920", Kind: catalog.KindLecture, Capacity: 40}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("add: expected ErrUnauthorized, got %v", err)
	}
	if err := svc.UpdateCapacity(ctx, p, "908", 40); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("update: expected ErrUnauthorized, got %v", err)
	}
	if err := svc.DeleteClassroom(ctx, p, "908"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("delete: expected ErrUnauthorized, got %v", err)
	}
	if err := svc.SetRoomStatus(ctx, p, "908", catalog.StatusUnavailable); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("status: expected ErrUnauthorized, got %v", err)
	}
}

func TestAddClassroom(t *testing.T) {
	svc, _ := newCatalogHarness(t)
	ctx := context.Background()

	if err := svc.AddClassroom(ctx, staff(), catalog.Classroom{Name: "920", Kind: catalog.KindLab, Capacity: 24}); err != nil {
		t.Fatalf("add: %v", err)
	}
	room, err := svc.Classroom(ctx, "920")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if room.AllowedCapacity() != 12 {
		t.Errorf("allowed capacity = %d, want 12", room.AllowedCapacity())
	}

	err = svc.AddClassroom(ctx, staff(), catalog.Classroom{Name: "920", Kind: catalog.KindLab, Capacity: 24})
	var rErr *RuleError
	if !errors.As(err, &rErr) || rErr.Rule != RuleDuplicateRequest {
		t.Fatalf("expected duplicate rule error, got %v", err)
	}

	err = svc.AddClassroom(ctx, staff(), catalog.Classroom{Name: "", Kind: "HALL", Capacity: 0})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateCapacityRaisesCeiling(t *testing.T) {
	svc, h := newCatalogHarness(t)
	ctx := context.Background()

	if err := svc.UpdateCapacity(ctx, staff(), "908", 50); err != nil {
		t.Fatalf("update: %v", err)
	}

	params := submitParams(student("u-alice"), "908", "2026-02-02", "3")
	params.ParticipantCount = 25
	if err := h.service.Submit(ctx, params); err != nil {
		t.Fatalf("25 of 50 should now be admitted: %v", err)
	}

	if err := svc.UpdateCapacity(ctx, staff(), "999", 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown room, got %v", err)
	}
}

func TestDeleteClassroomBlockedWhileInUse(t *testing.T) {
	svc, h := newCatalogHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")

	err := svc.DeleteClassroom(ctx, staff(), "908")
	var rErr *RuleError
	if !errors.As(err, &rErr) || rErr.Rule != RuleRoomOccupied {
		t.Fatalf("expected room occupied rule error, got %v", err)
	}

	if err := h.service.Cancel(ctx, CancelParams{
		Principal: student("u-alice"), RequestedBy: "u-alice", OwnerID: "u-alice",
		RequesterName: "alice", Room: "908", Date: "2026-02-02", Weekday: "Monday", Slot: "3",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.DeleteClassroom(ctx, staff(), "908"); err != nil {
		t.Fatalf("delete after cancel: %v", err)
	}
	if _, err := svc.Classroom(ctx, "908"); !errors.Is(err, ErrNotFound) {
		t.Errorf("room should be gone, got %v", err)
	}
}

func TestSetRoomStatusOverride(t *testing.T) {
	svc, _ := newCatalogHarness(t)
	ctx := context.Background()

	if err := svc.SetRoomStatus(ctx, staff(), "908", catalog.StatusUnavailable); err != nil {
		t.Fatalf("set unavailable: %v", err)
	}
	if st, _ := svc.RoomStatus(ctx, "908"); st != catalog.StatusUnavailable {
		t.Errorf("status = %q, want UNAVAILABLE", st)
	}

	// Setting AVAILABLE clears the override.
	if err := svc.SetRoomStatus(ctx, staff(), "908", catalog.StatusAvailable); err != nil {
		t.Fatalf("set available: %v", err)
	}
	if st, _ := svc.RoomStatus(ctx, "908"); st != catalog.StatusAvailable {
		t.Errorf("status = %q, want AVAILABLE", st)
	}

	if err := svc.SetRoomStatus(ctx, staff(), "999", catalog.StatusUnavailable); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
