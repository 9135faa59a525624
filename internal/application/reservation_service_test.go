package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/example/classroom-reservation/internal/catalog"
	"github.com/example/classroom-reservation/internal/identity"
	"github.com/example/classroom-reservation/internal/notify"
	"github.com/example/classroom-reservation/internal/persistence"
	"github.com/example/classroom-reservation/internal/persistence/flatfile"
	"github.com/example/classroom-reservation/internal/testfixtures"
)

var fixedNow = testfixtures.NewClock(testfixtures.ReferenceTime()).NowFunc()

type notifierStub struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *notifierStub) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *notifierStub) all() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.sent...)
}

type directoryStub struct {
	users map[string]identity.User
}

func (d *directoryStub) Lookup(_ context.Context, id string) (identity.User, error) {
	if user, ok := d.users[id]; ok {
		return user, nil
	}
	return identity.User{}, identity.ErrNotFound
}

type harness struct {
	service  *ReservationService
	store    *flatfile.Store
	catalog  *catalog.Catalog
	notifier *notifierStub
	dir      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.Open(dir, "")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	store, err := flatfile.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	notifier := &notifierStub{}
	directory := &directoryStub{users: map[string]identity.User{
		"u-alice": {ID: "u-alice", DisplayName: "alice", Role: identity.RoleStudent},
		"u-bob":   {ID: "u-bob", DisplayName: "bob", Role: identity.RoleStudent},
	}}

	service := NewReservationService(store, cat, directory, notifier, fixedNow, nil)
	return &harness{service: service, store: store, catalog: cat, notifier: notifier, dir: dir}
}

func student(id string) Principal {
	return Principal{UserID: id, DisplayName: id, CanModerate: false}
}

func staff() Principal {
	return Principal{UserID: "u-staff", DisplayName: "staff", CanModerate: true}
}

func submitParams(p Principal, room, date, slot string) SubmitParams {
	return SubmitParams{
		Principal:        p,
		RequesterName:    p.DisplayName,
		Room:             room,
		Date:             date,
		Weekday:          "Monday",
		Slot:             slot,
		Purpose:          "seminar",
		Role:             "student",
		ParticipantCount: 10,
	}
}

func TestSubmitRecordsPendingRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.service.Submit(ctx, submitParams(student("u-alice"), "908", "2026-02-02", "3")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	requests, err := h.service.ListRequests(ctx)
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(requests))
	}
	rec := requests[0]
	if rec.Status != persistence.StatusPending {
		t.Errorf("status = %q, want PENDING", rec.Status)
	}
	if rec.OwnerID != "u-alice" {
		t.Errorf("owner = %q, want u-alice", rec.OwnerID)
	}
}

func TestSubmitFirstWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.service.Submit(ctx, submitParams(student("u-alice"), "908", "2026-02-02", "3")); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	err := h.service.Submit(ctx, submitParams(student("u-bob"), "908", "2026-02-02", "3(13:00-14:00)"))
	var rErr *RuleError
	if !errors.As(err, &rErr) || rErr.Rule != RuleConflict {
		t.Fatalf("expected conflict rule error, got %v", err)
	}
}

func TestSubmitCapacityCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Default rooms seat 30, so the admission ceiling is 15.
	params := submitParams(student("u-alice"), "908", "2026-02-02", "3")
	params.ParticipantCount = 16
	err := h.service.Submit(ctx, params)
	var rErr *RuleError
	if !errors.As(err, &rErr) || rErr.Rule != RuleCapacityExceeded {
		t.Fatalf("expected capacity rule error for 16, got %v", err)
	}

	params.ParticipantCount = 15
	if err := h.service.Submit(ctx, params); err != nil {
		t.Fatalf("15 participants should be admitted: %v", err)
	}
}

func TestSubmitDateMustBeAhead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		date    string
		wantErr bool
	}{
		{name: "past", date: "2026-01-09", wantErr: true},
		{name: "today", date: "2026-01-10", wantErr: true},
		{name: "tomorrow", date: "2026-01-11", wantErr: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := h.service.Submit(ctx, submitParams(student("u-alice"), "908", tc.date, "1"))
			if tc.wantErr {
				var rErr *RuleError
				if !errors.As(err, &rErr) || rErr.Rule != RuleInvalidDate {
					t.Fatalf("expected invalid date error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSubmitUnknownAndClosedRooms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.service.Submit(ctx, submitParams(student("u-alice"), "999", "2026-02-02", "1"))
	var rErr *RuleError
	if !errors.As(err, &rErr) || rErr.Rule != RuleRoomNotFound {
		t.Fatalf("expected room not found, got %v", err)
	}

	if err := h.catalog.SetStatus("908", catalog.StatusUnavailable); err != nil {
		t.Fatalf("set status: %v", err)
	}
	err = h.service.Submit(ctx, submitParams(student("u-alice"), "908", "2026-02-02", "1"))
	if !errors.As(err, &rErr) || rErr.Rule != RuleRoomUnavailable {
		t.Fatalf("expected room unavailable, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	params := submitParams(student("u-alice"), "", "not-a-date", "")
	params.RequesterName = ""
	params.ParticipantCount = 0

	err := h.service.Submit(ctx, params)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"requester_name", "room", "slot", "date", "participant_count"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("missing field error for %q", field)
		}
	}
}

func TestApproveRequiresStaff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.service.Approve(ctx, DecisionParams{Principal: student("u-alice")})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	err = h.service.Reject(ctx, DecisionParams{Principal: student("u-alice")})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestApproveMovesRequestToApprovedPartition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// 911 is a lab room in the default inventory.
	if err := h.service.Submit(ctx, submitParams(student("u-alice"), "911", "2026-02-02", "3")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	err := h.service.Approve(ctx, DecisionParams{
		Principal: staff(), OwnerID: "u-alice", RequesterName: "alice",
		Room: "911", Date: "2026-02-02", Weekday: "Monday", Slot: "3",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if n, _ := h.service.PendingCount(ctx); n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
	labs, err := h.service.ListApproved(ctx, persistence.KindLab)
	if err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(labs) != 1 || labs[0].Status != persistence.StatusApproved {
		t.Fatalf("expected 1 approved lab reservation, got %+v", labs)
	}
	lectures, _ := h.service.ListApproved(ctx, persistence.KindLecture)
	if len(lectures) != 0 {
		t.Errorf("lecture partition should be empty, got %d rows", len(lectures))
	}

	sent := h.notifier.all()
	if len(sent) != 1 || sent[0].Type != notify.TypeApproved {
		t.Fatalf("expected one APPROVED notification, got %+v", sent)
	}
	if sent[0].RecipientID != "u-alice" {
		t.Errorf("recipient = %q, want u-alice", sent[0].RecipientID)
	}
}

func TestApproveUnknownRequest(t *testing.T) {
	h := newHarness(t)
	err := h.service.Approve(context.Background(), DecisionParams{
		Principal: staff(), OwnerID: "u-alice",
		Room: "908", Date: "2026-02-02", Slot: "1",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectRemovesRequestAndNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.service.Submit(ctx, submitParams(student("u-alice"), "908", "2026-02-02", "4")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	err := h.service.Reject(ctx, DecisionParams{
		Principal: staff(), OwnerID: "u-alice", RequesterName: "alice",
		Room: "908", Date: "2026-02-02", Weekday: "Monday", Slot: "4",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	if n, _ := h.service.PendingCount(ctx); n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
	sent := h.notifier.all()
	if len(sent) != 1 || sent[0].Type != notify.TypeRejected {
		t.Fatalf("expected one REJECTED notification, got %+v", sent)
	}
}

// approveReservation walks a submission through staff approval.
func approveReservation(t *testing.T, h *harness, p Principal, room, date, slot string) {
	t.Helper()
	ctx := context.Background()
	if err := h.service.Submit(ctx, submitParams(p, room, date, slot)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	err := h.service.Approve(ctx, DecisionParams{
		Principal: staff(), OwnerID: p.UserID, RequesterName: p.DisplayName,
		Room: room, Date: date, Weekday: "Monday", Slot: slot,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func TestCancelOwnReservationIsSilent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "2")
	before := len(h.notifier.all())

	err := h.service.Cancel(ctx, CancelParams{
		Principal: student("u-alice"), RequestedBy: "u-alice", OwnerID: "u-alice",
		RequesterName: "alice", Room: "908", Date: "2026-02-02", Weekday: "Monday", Slot: "2",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := len(h.notifier.all()); got != before {
		t.Errorf("self-cancel must not notify, got %d new notifications", got-before)
	}
	lectures, _ := h.service.ListApproved(ctx, persistence.KindLecture)
	if len(lectures) != 0 {
		t.Errorf("reservation not removed: %+v", lectures)
	}
}

func TestCancelByStaffNotifiesOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "2")
	before := len(h.notifier.all())

	err := h.service.Cancel(ctx, CancelParams{
		Principal: staff(), RequestedBy: "u-staff", OwnerID: "u-alice",
		RequesterName: "alice", Room: "908", Date: "2026-02-02", Weekday: "Monday", Slot: "2",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	sent := h.notifier.all()
	if len(sent) != before+1 {
		t.Fatalf("expected one new notification, got %d", len(sent)-before)
	}
	last := sent[len(sent)-1]
	if last.Type != notify.TypeCancelled || last.RecipientID != "u-alice" {
		t.Errorf("notification = %+v, want CANCELLED to u-alice", last)
	}
}

func TestCancelByAnotherUserNotifiesOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "2")
	before := len(h.notifier.all())

	err := h.service.Cancel(ctx, CancelParams{
		Principal: student("u-bob"), RequestedBy: "u-bob", OwnerID: "u-alice",
		RequesterName: "alice", Room: "908", Date: "2026-02-02", Weekday: "Monday", Slot: "2",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	sent := h.notifier.all()
	if len(sent) != before+1 {
		t.Fatalf("expected one new notification, got %d", len(sent)-before)
	}
	if last := sent[len(sent)-1]; last.Type != notify.TypeCancelled || last.RecipientID != "u-alice" {
		t.Errorf("notification = %+v, want CANCELLED to u-alice", last)
	}

	// The freed key is reservable again.
	if err := h.service.Submit(ctx, submitParams(student("u-bob"), "908", "2026-02-02", "2")); err != nil {
		t.Fatalf("resubmit after cancel: %v", err)
	}
}

func TestApproveThenRejectSameKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")

	// The pending record was consumed by the approval; a second decision on
	// the same key finds nothing.
	err := h.service.Reject(ctx, DecisionParams{
		Principal: staff(), OwnerID: "u-alice", RequesterName: "alice",
		Room: "908", Date: "2026-02-02", Weekday: "Monday", Slot: "3",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChangeRequestLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")

	change := ChangeParams{
		Principal: student("u-alice"), OwnerID: "u-alice", RequesterName: "alice",
		OriginalRoom: "908", OriginalDate: "2026-02-02", OriginalWeekday: "Monday", OriginalSlot: "3",
		NewRoom: "911", NewDate: "2026-02-03", NewWeekday: "Tuesday", NewSlot: "5",
	}
	if err := h.service.ChangeRequest(ctx, change); err != nil {
		t.Fatalf("change request: %v", err)
	}

	pending, err := h.service.ListChangeRequests(ctx)
	if err != nil {
		t.Fatalf("list changes: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending change, got %d", len(pending))
	}
	if pending[0].Purpose != "seminar" {
		t.Errorf("purpose %q not carried from the original", pending[0].Purpose)
	}

	// An identical resubmission is refused while the first is pending.
	err = h.service.ChangeRequest(ctx, change)
	var rErr *RuleError
	if !errors.As(err, &rErr) || rErr.Rule != RuleDuplicateRequest {
		t.Fatalf("expected duplicate rule error, got %v", err)
	}

	// Approval installs the replacement and removes the superseded original.
	err = h.service.Approve(ctx, DecisionParams{
		Principal: staff(), OwnerID: "u-alice", RequesterName: "alice",
		Room: "911", Date: "2026-02-03", Weekday: "Tuesday", Slot: "5",
	})
	if err != nil {
		t.Fatalf("approve change: %v", err)
	}

	lectures, _ := h.service.ListApproved(ctx, persistence.KindLecture)
	if len(lectures) != 0 {
		t.Errorf("superseded original still present: %+v", lectures)
	}
	labs, _ := h.service.ListApproved(ctx, persistence.KindLab)
	if len(labs) != 1 || labs[0].Room != "911" || labs[0].Slot != "5" {
		t.Fatalf("replacement not installed: %+v", labs)
	}

	sent := h.notifier.all()
	last := sent[len(sent)-1]
	if last.Type != notify.TypeChangeApproved {
		t.Errorf("notification type = %q, want CHANGE_APPROVED", last.Type)
	}
}

func TestRejectChangeLeavesOriginalApproved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")

	err := h.service.ChangeRequest(ctx, ChangeParams{
		Principal: student("u-alice"), OwnerID: "u-alice", RequesterName: "alice",
		OriginalRoom: "908", OriginalDate: "2026-02-02", OriginalWeekday: "Monday", OriginalSlot: "3",
		NewRoom: "912", NewDate: "2026-02-03", NewWeekday: "Tuesday", NewSlot: "1",
	})
	if err != nil {
		t.Fatalf("change request: %v", err)
	}

	err = h.service.Reject(ctx, DecisionParams{
		Principal: staff(), OwnerID: "u-alice", RequesterName: "alice",
		Room: "912", Date: "2026-02-03", Weekday: "Tuesday", Slot: "1",
	})
	if err != nil {
		t.Fatalf("reject change: %v", err)
	}

	lectures, _ := h.service.ListApproved(ctx, persistence.KindLecture)
	if len(lectures) != 1 || lectures[0].Room != "908" {
		t.Fatalf("original must survive a rejected change: %+v", lectures)
	}
	changes, _ := h.service.ListChangeRequests(ctx)
	if len(changes) != 0 {
		t.Errorf("change request not removed: %+v", changes)
	}
	sent := h.notifier.all()
	if last := sent[len(sent)-1]; last.Type != notify.TypeChangeRejected {
		t.Errorf("notification type = %q, want CHANGE_REJECTED", last.Type)
	}
}

func TestChangeRequestFullReplacesWithPendingCandidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")

	err := h.service.ChangeRequestFull(ctx, ChangeFullParams{
		Principal: student("u-alice"), OwnerID: "u-alice", RequesterName: "alice",
		OriginalRoom: "908", OriginalDate: "2026-02-02", OriginalWeekday: "Monday", OriginalSlot: "3",
		Candidates: []ChangeCandidate{
			{Room: "911", Date: "2026-02-03", Weekday: "Tuesday", Slot: "2", ParticipantCount: 8},
			{Room: "912", Date: "2026-02-04", Weekday: "Wednesday", Slot: "4", ParticipantCount: 8},
		},
	})
	if err != nil {
		t.Fatalf("change request full: %v", err)
	}

	lectures, _ := h.service.ListApproved(ctx, persistence.KindLecture)
	if len(lectures) != 0 {
		t.Errorf("original must be removed: %+v", lectures)
	}
	requests, _ := h.service.ListRequests(ctx)
	if len(requests) != 2 {
		t.Fatalf("expected 2 pending candidates, got %d", len(requests))
	}
	for _, r := range requests {
		if r.Status != persistence.StatusPending || r.OwnerID != "u-alice" {
			t.Errorf("candidate row = %+v", r)
		}
		if r.Purpose != "seminar" {
			t.Errorf("purpose %q not inherited from the original", r.Purpose)
		}
	}
}

func TestChangeRequestFullConflictLeavesOriginalUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")
	approveReservation(t, h, student("u-bob"), "911", "2026-02-03", "2")

	lecturePath := filepath.Join(h.dir, "approved_lecture.txt")
	before, err := os.ReadFile(lecturePath)
	if err != nil {
		t.Fatalf("read approved file: %v", err)
	}

	err = h.service.ChangeRequestFull(ctx, ChangeFullParams{
		Principal: student("u-alice"), OwnerID: "u-alice", RequesterName: "alice",
		OriginalRoom: "908", OriginalDate: "2026-02-02", OriginalWeekday: "Monday", OriginalSlot: "3",
		Candidates: []ChangeCandidate{
			{Room: "912", Date: "2026-02-04", Weekday: "Wednesday", Slot: "1"},
			{Room: "911", Date: "2026-02-03", Weekday: "Tuesday", Slot: "2(13:00-14:00)"},
		},
	})
	var rErr *RuleError
	if !errors.As(err, &rErr) || rErr.Rule != RuleConflict {
		t.Fatalf("expected conflict rule error, got %v", err)
	}
	if rErr.Detail == "" {
		t.Error("conflict error should carry the offending slot label")
	}

	after, err := os.ReadFile(lecturePath)
	if err != nil {
		t.Fatalf("read approved file: %v", err)
	}
	if string(before) != string(after) {
		t.Error("approved file changed despite the failed bulk change")
	}
	requests, _ := h.service.ListRequests(ctx)
	if len(requests) != 0 {
		t.Errorf("no candidate may be persisted on failure, got %+v", requests)
	}
}

func TestChangeRequestFullMovesWithinOwnSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")

	// Re-requesting the key the original itself holds must not self-conflict.
	err := h.service.ChangeRequestFull(ctx, ChangeFullParams{
		Principal: student("u-alice"), OwnerID: "u-alice", RequesterName: "alice",
		OriginalRoom: "908", OriginalDate: "2026-02-02", OriginalWeekday: "Monday", OriginalSlot: "3",
		Candidates: []ChangeCandidate{
			{Room: "908", Date: "2026-02-02", Weekday: "Monday", Slot: "3", ParticipantCount: 12},
		},
	})
	if err != nil {
		t.Fatalf("moving within the original key: %v", err)
	}
}

// failingStore wraps a real store and fails configured append operations.
type failingStore struct {
	persistence.ReservationStore
	failApprovedRoom string
	failRequests     bool
	appendedRequests int
}

func (f *failingStore) AppendApproved(ctx context.Context, kind persistence.Kind, rec persistence.Reservation) error {
	if f.failApprovedRoom != "" && rec.Room == f.failApprovedRoom {
		return fmt.Errorf("disk full")
	}
	return f.ReservationStore.AppendApproved(ctx, kind, rec)
}

func (f *failingStore) AppendRequest(ctx context.Context, rec persistence.Reservation) error {
	if f.failRequests {
		return fmt.Errorf("disk full")
	}
	f.appendedRequests++
	return f.ReservationStore.AppendRequest(ctx, rec)
}

func TestApproveChangeRollbackKeepsGap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")

	err := h.service.ChangeRequest(ctx, ChangeParams{
		Principal: student("u-alice"), OwnerID: "u-alice", RequesterName: "alice",
		OriginalRoom: "908", OriginalDate: "2026-02-02", OriginalWeekday: "Monday", OriginalSlot: "3",
		NewRoom: "911", NewDate: "2026-02-03", NewWeekday: "Tuesday", NewSlot: "5",
	})
	if err != nil {
		t.Fatalf("change request: %v", err)
	}

	failing := &failingStore{ReservationStore: h.store, failApprovedRoom: "911"}
	svc := NewReservationService(failing, h.catalog, nil, h.notifier, fixedNow, nil)

	err = svc.Approve(ctx, DecisionParams{
		Principal: staff(), OwnerID: "u-alice", RequesterName: "alice",
		Room: "911", Date: "2026-02-03", Weekday: "Tuesday", Slot: "5",
	})
	var sErr *StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected storage error, got %v", err)
	}

	// The superseded original is restored from its backup...
	lectures, _ := h.service.ListApproved(ctx, persistence.KindLecture)
	if len(lectures) != 1 || lectures[0].Room != "908" {
		t.Fatalf("original not restored: %+v", lectures)
	}
	// ...but the consumed change request is not re-queued and must be
	// resubmitted.
	changes, _ := h.service.ListChangeRequests(ctx)
	if len(changes) != 0 {
		t.Errorf("change request unexpectedly re-queued: %+v", changes)
	}
}

func TestChangeRequestFullRestoresOriginalOnStorageFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")

	failing := &failingStore{ReservationStore: h.store, failRequests: true}
	svc := NewReservationService(failing, h.catalog, nil, h.notifier, fixedNow, nil)

	err := svc.ChangeRequestFull(ctx, ChangeFullParams{
		Principal: student("u-alice"), OwnerID: "u-alice", RequesterName: "alice",
		OriginalRoom: "908", OriginalDate: "2026-02-02", OriginalWeekday: "Monday", OriginalSlot: "3",
		Candidates: []ChangeCandidate{
			{Room: "911", Date: "2026-02-03", Weekday: "Tuesday", Slot: "2"},
		},
	})
	var sErr *StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected storage error, got %v", err)
	}

	lectures, _ := h.service.ListApproved(ctx, persistence.KindLecture)
	if len(lectures) != 1 || lectures[0].Room != "908" || lectures[0].Slot != "3" {
		t.Fatalf("original not restored verbatim: %+v", lectures)
	}
}

func TestLegacyRowsMatchByDisplayName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Rows written before owner ids existed carry only the display name.
	legacy := testfixtures.NewReservationFixture(
		testfixtures.Legacy(),
		testfixtures.WithStatus(persistence.StatusApproved),
	).Record()
	err := h.store.AppendApproved(ctx, persistence.KindLecture, legacy)
	if err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	owned, err := h.service.ListOwnedBy(ctx, "u-alice", "alice")
	if err != nil {
		t.Fatalf("list owned: %v", err)
	}
	if len(owned) != 1 {
		t.Fatalf("legacy row not matched by display name: %+v", owned)
	}

	err = h.service.Cancel(ctx, CancelParams{
		Principal: student("u-alice"), RequestedBy: "u-alice", OwnerID: "u-alice",
		RequesterName: "alice", Room: "908", Date: "2026-02-02", Weekday: "Monday", Slot: "3",
	})
	if err != nil {
		t.Fatalf("cancel legacy row: %v", err)
	}
}

func TestConcurrentSubmitsAdmitExactlyOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := student(fmt.Sprintf("u-%d", i))
			errs[i] = h.service.Submit(ctx, submitParams(p, "908", "2026-02-02", "3"))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		var rErr *RuleError
		if !errors.As(err, &rErr) || rErr.Rule != RuleConflict {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if admitted != 1 {
		t.Fatalf("admitted = %d, want exactly 1", admitted)
	}
	requests, _ := h.service.ListRequests(ctx)
	if len(requests) != 1 {
		t.Fatalf("store holds %d requests, want 1", len(requests))
	}
}

func TestSlotAvailableAndReservedCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	approveReservation(t, h, student("u-alice"), "908", "2026-02-02", "3")

	free, err := h.service.SlotAvailable(ctx, "908", "2026-02-02", "3(13:00-14:00)")
	if err != nil {
		t.Fatalf("slot available: %v", err)
	}
	if free {
		t.Error("occupied slot reported as free")
	}
	free, _ = h.service.SlotAvailable(ctx, "908", "2026-02-02", "4")
	if !free {
		t.Error("free slot reported as occupied")
	}

	count, err := h.service.ReservedCountByDate(ctx, "908", "2026-02-02")
	if err != nil {
		t.Fatalf("reserved count: %v", err)
	}
	if count != 10 {
		t.Errorf("reserved count = %d, want 10", count)
	}
}

func TestErrorKindLabels(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: ErrUnauthorized, want: "authorization_denied"},
		{err: ErrNotFound, want: "not_found"},
		{err: &ValidationError{FieldErrors: map[string]string{"room": "required"}}, want: "invalid_input"},
		{err: ruleError(RuleConflict, "taken"), want: "business_rule_violation"},
		{err: storageError("append", errors.New("disk full")), want: "storage_failure"},
		{err: errors.New("boom"), want: "unexpected"},
	}
	for _, tc := range tests {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
