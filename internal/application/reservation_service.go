package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/classroom-reservation/internal/admission"
	"github.com/example/classroom-reservation/internal/catalog"
	"github.com/example/classroom-reservation/internal/identity"
	"github.com/example/classroom-reservation/internal/notify"
	"github.com/example/classroom-reservation/internal/persistence"
)

const dateLayout = "2006-01-02"

// Notifier delivers workflow outcome notifications. *notify.Dispatcher
// satisfies it; tests substitute a stub.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// ReservationService owns the reservation lifecycle: submission under the
// admission rules, staff approval and rejection, cancellation, and the two
// change flows. All store mutations and consistency-sensitive reads are
// serialized behind a single lock; catalog and identity lookups happen
// before the lock is taken and never while holding it.
type ReservationService struct {
	mu sync.Mutex

	store     persistence.ReservationStore
	catalog   *catalog.Catalog
	directory identity.Directory
	notifier  Notifier
	now       func() time.Time
	logger    *slog.Logger
}

// NewReservationService wires the workflow with its collaborators.
// directory and notifier may be nil; now defaults to time.Now.
func NewReservationService(store persistence.ReservationStore, cat *catalog.Catalog, directory identity.Directory, notifier Notifier, now func() time.Time, logger *slog.Logger) *ReservationService {
	if now == nil {
		now = time.Now
	}
	return &ReservationService{
		store:     store,
		catalog:   cat,
		directory: directory,
		notifier:  notifier,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

// Submit validates a new reservation request against the admission rules and
// appends it as a pending row. First submission wins: a later request for an
// occupied (room, date, slot) is rejected outright.
func (s *ReservationService) Submit(ctx context.Context, params SubmitParams) error {
	logger := serviceLogger(ctx, s.logger, "reservation", "submit",
		"room", params.Room, "date", params.Date, "slot", params.Slot)

	if err := s.validateSubmit(params); err != nil {
		logger.Warn("submission rejected", "error_kind", ErrorKind(err))
		return err
	}

	room, err := s.catalog.Get(params.Room)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ruleError(RuleRoomNotFound, "classroom %q is not registered", params.Room)
		}
		return storageError("catalog lookup", err)
	}
	if s.catalog.Status(params.Room) == catalog.StatusUnavailable {
		return ruleError(RuleRoomUnavailable, "classroom %q is closed for reservations", params.Room)
	}
	if !admission.CheckCapacity(room.AllowedCapacity(), params.ParticipantCount) {
		return ruleError(RuleCapacityExceeded, "%d participants exceed the admission ceiling of %d for %q",
			params.ParticipantCount, room.AllowedCapacity(), params.Room)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.liveBookings(ctx)
	if err != nil {
		return storageError("scan live records", err)
	}
	if admission.Conflicts(live, params.Room, params.Date, params.Slot) {
		logger.Info("submission conflicts with a live record")
		return ruleError(RuleConflict, "slot %s on %s in %q is already taken", params.Slot, params.Date, params.Room)
	}

	rec := persistence.Reservation{
		RequesterName:    params.RequesterName,
		Room:             params.Room,
		Date:             params.Date,
		Weekday:          params.Weekday,
		Slot:             params.Slot,
		Purpose:          params.Purpose,
		Role:             params.Role,
		Status:           persistence.StatusPending,
		ParticipantCount: params.ParticipantCount,
		OwnerID:          params.Principal.UserID,
	}
	if err := s.store.AppendRequest(ctx, rec); err != nil {
		return storageError("append request", err)
	}

	logger.Info("reservation request recorded", "owner", rec.OwnerID)
	return nil
}

// Approve grants a pending request, or a pending change request when no
// plain request matches the key. A granted change also removes the superseded
// original reservation.
//
// When persisting the replacement of a change fails, the deleted original is
// restored from its in-memory backup, but the already-deleted change request
// is not re-queued: the change must be resubmitted.
func (s *ReservationService) Approve(ctx context.Context, params DecisionParams) error {
	logger := serviceLogger(ctx, s.logger, "reservation", "approve",
		"room", params.Room, "date", params.Date, "slot", params.Slot)

	if !params.Principal.CanModerate {
		return ErrUnauthorized
	}

	kinds := s.kindSnapshot()
	displayName := s.resolveDisplayName(ctx, params.OwnerID, params.RequesterName)

	s.mu.Lock()
	defer s.mu.Unlock()

	match := persistence.ReservationMatch{
		OwnerID:       params.OwnerID,
		RequesterName: params.RequesterName,
		Room:          params.Room,
		Date:          params.Date,
		Weekday:       params.Weekday,
		Slot:          params.Slot,
	}

	pending, err := s.store.DeleteRequest(ctx, match)
	if err == nil {
		return s.approvePending(ctx, logger, kinds, displayName, pending)
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return storageError("delete request", err)
	}

	change, err := s.store.DeleteChange(ctx, persistence.ChangeMatch{
		OwnerID:       params.OwnerID,
		RequesterName: params.RequesterName,
		NewRoom:       params.Room,
		NewDate:       params.Date,
		NewWeekday:    params.Weekday,
		NewSlot:       params.Slot,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("delete change request", err)
	}
	return s.approveChange(ctx, logger, kinds, displayName, change)
}

func (s *ReservationService) approvePending(ctx context.Context, logger *slog.Logger, kinds map[string]persistence.Kind, displayName string, pending persistence.Reservation) error {
	owner := pending.OwnerID
	name := pending.RequesterName
	if displayName != "" {
		name = displayName
	}

	approved := pending
	approved.RequesterName = name
	approved.Status = persistence.StatusApproved

	kind := roomKind(kinds, pending.Room)
	if err := s.store.AppendApproved(ctx, kind, approved); err != nil {
		return storageError("append approved", err)
	}
	if err := s.store.AppendAudit(ctx, approved); err != nil {
		logger.Warn("audit append failed", "error", err)
	}

	logger.Info("reservation approved", "owner", owner)
	s.emit(ctx, notify.Notification{
		RecipientID:   recipientKey(owner, pending.RequesterName),
		RecipientName: name,
		Room:          approved.Room,
		Date:          approved.Date,
		Weekday:       approved.Weekday,
		Slot:          approved.Slot,
		Type:          notify.TypeApproved,
		Message: fmt.Sprintf("Your reservation for %s on %s (%s) slot %s has been approved.",
			approved.Room, approved.Date, approved.Weekday, approved.Slot),
	})
	return nil
}

func (s *ReservationService) approveChange(ctx context.Context, logger *slog.Logger, kinds map[string]persistence.Kind, displayName string, change persistence.ChangeRequest) error {
	name := change.RequesterName
	if displayName != "" {
		name = displayName
	}

	origKind := roomKind(kinds, change.OriginalRoom)
	backup, backupErr := s.store.DeleteApproved(ctx, origKind, persistence.ReservationMatch{
		OwnerID:       change.OwnerID,
		RequesterName: change.RequesterName,
		Room:          change.OriginalRoom,
		Date:          change.OriginalDate,
		Weekday:       change.OriginalWeekday,
		Slot:          change.OriginalSlot,
	})
	if backupErr != nil && !errors.Is(backupErr, persistence.ErrNotFound) {
		return storageError("delete superseded reservation", backupErr)
	}
	hasBackup := backupErr == nil

	replacement := persistence.Reservation{
		RequesterName:    name,
		Room:             change.NewRoom,
		Date:             change.NewDate,
		Weekday:          change.NewWeekday,
		Slot:             change.NewSlot,
		Purpose:          change.Purpose,
		Role:             change.Role,
		Status:           persistence.StatusApproved,
		ParticipantCount: change.ParticipantCount,
		OwnerID:          change.OwnerID,
	}
	newKind := roomKind(kinds, change.NewRoom)
	if err := s.store.AppendApproved(ctx, newKind, replacement); err != nil {
		if hasBackup {
			if restoreErr := s.store.AppendApproved(ctx, origKind, backup); restoreErr != nil {
				logger.Error("rollback of superseded reservation failed", "error", restoreErr)
			}
		}
		return storageError("append replacement reservation", err)
	}
	if err := s.store.AppendAudit(ctx, replacement); err != nil {
		logger.Warn("audit append failed", "error", err)
	}

	logger.Info("change request approved", "owner", change.OwnerID,
		"from_room", change.OriginalRoom, "to_room", change.NewRoom)
	s.emit(ctx, notify.Notification{
		RecipientID:   recipientKey(change.OwnerID, change.RequesterName),
		RecipientName: name,
		Room:          replacement.Room,
		Date:          replacement.Date,
		Weekday:       replacement.Weekday,
		Slot:          replacement.Slot,
		Type:          notify.TypeChangeApproved,
		Message: fmt.Sprintf("Your change to %s on %s (%s) slot %s has been approved.",
			replacement.Room, replacement.Date, replacement.Weekday, replacement.Slot),
	})
	return nil
}

// Reject removes a pending request, or a pending change request when no
// plain request matches the key. The rejected change leaves the original
// approved reservation untouched.
func (s *ReservationService) Reject(ctx context.Context, params DecisionParams) error {
	logger := serviceLogger(ctx, s.logger, "reservation", "reject",
		"room", params.Room, "date", params.Date, "slot", params.Slot)

	if !params.Principal.CanModerate {
		return ErrUnauthorized
	}

	displayName := s.resolveDisplayName(ctx, params.OwnerID, params.RequesterName)

	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.store.DeleteRequest(ctx, persistence.ReservationMatch{
		OwnerID:       params.OwnerID,
		RequesterName: params.RequesterName,
		Room:          params.Room,
		Date:          params.Date,
		Weekday:       params.Weekday,
		Slot:          params.Slot,
	})
	if err == nil {
		logger.Info("reservation request rejected", "owner", pending.OwnerID)
		s.emit(ctx, notify.Notification{
			RecipientID:   recipientKey(pending.OwnerID, pending.RequesterName),
			RecipientName: displayName,
			Room:          pending.Room,
			Date:          pending.Date,
			Weekday:       pending.Weekday,
			Slot:          pending.Slot,
			Type:          notify.TypeRejected,
			Message: fmt.Sprintf("Your reservation for %s on %s (%s) slot %s has been rejected.",
				pending.Room, pending.Date, pending.Weekday, pending.Slot),
		})
		return nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return storageError("delete request", err)
	}

	change, err := s.store.DeleteChange(ctx, persistence.ChangeMatch{
		OwnerID:       params.OwnerID,
		RequesterName: params.RequesterName,
		NewRoom:       params.Room,
		NewDate:       params.Date,
		NewWeekday:    params.Weekday,
		NewSlot:       params.Slot,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("delete change request", err)
	}

	logger.Info("change request rejected", "owner", change.OwnerID)
	s.emit(ctx, notify.Notification{
		RecipientID:   recipientKey(change.OwnerID, change.RequesterName),
		RecipientName: displayName,
		Room:          change.NewRoom,
		Date:          change.NewDate,
		Weekday:       change.NewWeekday,
		Slot:          change.NewSlot,
		Type:          notify.TypeChangeRejected,
		Message: fmt.Sprintf("Your change to %s on %s (%s) slot %s has been rejected.",
			change.NewRoom, change.NewDate, change.NewWeekday, change.NewSlot),
	})
	return nil
}

// Cancel removes an approved reservation. The owner is notified only when
// someone else requested the cancellation; self-cancellation is silent.
func (s *ReservationService) Cancel(ctx context.Context, params CancelParams) error {
	logger := serviceLogger(ctx, s.logger, "reservation", "cancel",
		"room", params.Room, "date", params.Date, "slot", params.Slot)

	actingForOther := params.RequestedBy != "" && params.OwnerID != "" && params.RequestedBy != params.OwnerID

	kinds := s.kindSnapshot()
	displayName := s.resolveDisplayName(ctx, params.OwnerID, params.RequesterName)

	s.mu.Lock()
	removed, err := s.store.DeleteApproved(ctx, roomKind(kinds, params.Room), persistence.ReservationMatch{
		OwnerID:       params.OwnerID,
		RequesterName: params.RequesterName,
		Room:          params.Room,
		Date:          params.Date,
		Weekday:       params.Weekday,
		Slot:          params.Slot,
	})
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("delete approved reservation", err)
	}

	logger.Info("reservation cancelled", "owner", removed.OwnerID, "requested_by", params.RequestedBy)
	if actingForOther {
		s.emit(ctx, notify.Notification{
			RecipientID:   recipientKey(removed.OwnerID, removed.RequesterName),
			RecipientName: displayName,
			Room:          removed.Room,
			Date:          removed.Date,
			Weekday:       removed.Weekday,
			Slot:          removed.Slot,
			Type:          notify.TypeCancelled,
			Message: fmt.Sprintf("Your reservation for %s on %s (%s) slot %s has been cancelled.",
				removed.Room, removed.Date, removed.Weekday, removed.Slot),
		})
	}
	return nil
}

// ChangeRequest queues a request to move an approved reservation to a new
// (room, date, slot). The original stays approved until staff decide.
func (s *ReservationService) ChangeRequest(ctx context.Context, params ChangeParams) error {
	logger := serviceLogger(ctx, s.logger, "reservation", "change_request",
		"from_room", params.OriginalRoom, "to_room", params.NewRoom)

	if err := s.validateChange(params); err != nil {
		return err
	}

	if !s.catalog.Exists(params.NewRoom) {
		return ruleError(RuleRoomNotFound, "classroom %q is not registered", params.NewRoom)
	}
	if s.catalog.Status(params.NewRoom) == catalog.StatusUnavailable {
		return ruleError(RuleRoomUnavailable, "classroom %q is closed for reservations", params.NewRoom)
	}
	kinds := s.kindSnapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.liveBookings(ctx)
	if err != nil {
		return storageError("scan live records", err)
	}
	if admission.Conflicts(live, params.NewRoom, params.NewDate, params.NewSlot) {
		return ruleError(RuleConflict, "slot %s on %s in %q is already taken", params.NewSlot, params.NewDate, params.NewRoom)
	}

	changes, err := s.store.ScanChanges(ctx)
	if err != nil {
		return storageError("scan change requests", err)
	}
	for _, c := range changes {
		if strings.TrimSpace(c.OwnerID) == strings.TrimSpace(params.OwnerID) &&
			c.NewRoom == params.NewRoom && c.NewDate == params.NewDate &&
			admission.NormalizeSlot(c.NewSlot) == admission.NormalizeSlot(params.NewSlot) {
			return ruleError(RuleDuplicateRequest, "an identical change request is already pending")
		}
	}

	original, err := s.findApproved(ctx, roomKind(kinds, params.OriginalRoom), persistence.ReservationMatch{
		OwnerID:       params.OwnerID,
		RequesterName: params.RequesterName,
		Room:          params.OriginalRoom,
		Date:          params.OriginalDate,
		Weekday:       params.OriginalWeekday,
		Slot:          params.OriginalSlot,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("scan approved reservations", err)
	}

	count := params.ParticipantCount
	if count <= 0 {
		count = original.ParticipantCount
	}
	rec := persistence.ChangeRequest{
		OwnerID:          params.OwnerID,
		NewSlot:          params.NewSlot,
		NewDate:          params.NewDate,
		NewWeekday:       params.NewWeekday,
		NewRoom:          params.NewRoom,
		RequesterName:    params.RequesterName,
		Purpose:          original.Purpose,
		Role:             original.Role,
		OriginalSlot:     params.OriginalSlot,
		OriginalDate:     params.OriginalDate,
		OriginalWeekday:  params.OriginalWeekday,
		OriginalRoom:     params.OriginalRoom,
		ParticipantCount: count,
	}
	if err := s.store.AppendChange(ctx, rec); err != nil {
		return storageError("append change request", err)
	}

	logger.Info("change request recorded", "owner", params.OwnerID)
	return nil
}

// ChangeRequestFull atomically replaces an existing reservation (approved or
// still pending) with one or more new pending requests. All candidates are
// conflict-checked before anything is touched; if persisting a candidate
// fails after the original was deleted, the backed-up original is restored
// verbatim before the failure is returned.
func (s *ReservationService) ChangeRequestFull(ctx context.Context, params ChangeFullParams) error {
	logger := serviceLogger(ctx, s.logger, "reservation", "change_request_full",
		"from_room", params.OriginalRoom, "candidates", len(params.Candidates))

	if len(params.Candidates) == 0 {
		vErr := &ValidationError{}
		vErr.add("candidates", "at least one replacement booking is required")
		return vErr
	}
	for _, cand := range params.Candidates {
		if !s.catalog.Exists(cand.Room) {
			return ruleError(RuleRoomNotFound, "classroom %q is not registered", cand.Room)
		}
		if s.catalog.Status(cand.Room) == catalog.StatusUnavailable {
			return ruleError(RuleRoomUnavailable, "classroom %q is closed for reservations", cand.Room)
		}
	}
	kinds := s.kindSnapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.liveBookings(ctx)
	if err != nil {
		return storageError("scan live records", err)
	}
	// The original's own booking must not block moving within the same key
	// space, so it is excluded from the conflict set.
	origBooking := admission.Booking{Room: params.OriginalRoom, Date: params.OriginalDate, Slot: params.OriginalSlot}
	filtered := live[:0]
	for _, b := range live {
		if strings.TrimSpace(b.Room) == strings.TrimSpace(origBooking.Room) &&
			strings.TrimSpace(b.Date) == strings.TrimSpace(origBooking.Date) &&
			admission.NormalizeSlot(b.Slot) == admission.NormalizeSlot(origBooking.Slot) {
			continue
		}
		filtered = append(filtered, b)
	}

	candidates := make([]admission.Booking, 0, len(params.Candidates))
	for _, cand := range params.Candidates {
		candidates = append(candidates, admission.Booking{Room: cand.Room, Date: cand.Date, Slot: cand.Slot})
	}
	if slot, found := admission.FirstConflict(filtered, candidates); found {
		rErr := ruleError(RuleConflict, "candidate slot %s is already taken", slot)
		rErr.Detail = slot
		return rErr
	}

	match := persistence.ReservationMatch{
		OwnerID:       params.OwnerID,
		RequesterName: params.RequesterName,
		Room:          params.OriginalRoom,
		Date:          params.OriginalDate,
		Weekday:       params.OriginalWeekday,
		Slot:          params.OriginalSlot,
	}

	var (
		backup       persistence.Reservation
		fromApproved bool
	)
	origKind := roomKind(kinds, params.OriginalRoom)
	backup, err = s.store.DeleteApproved(ctx, origKind, match)
	switch {
	case err == nil:
		fromApproved = true
	case errors.Is(err, persistence.ErrNotFound):
		backup, err = s.store.DeleteRequest(ctx, match)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return ErrNotFound
			}
			return storageError("delete request", err)
		}
	default:
		return storageError("delete approved reservation", err)
	}

	restore := func() {
		var restoreErr error
		if fromApproved {
			restoreErr = s.store.AppendApproved(ctx, origKind, backup)
		} else {
			restoreErr = s.store.AppendRequest(ctx, backup)
		}
		if restoreErr != nil {
			logger.Error("rollback of replaced reservation failed", "error", restoreErr)
		}
	}

	for _, cand := range params.Candidates {
		rec := persistence.Reservation{
			RequesterName:    params.RequesterName,
			Room:             cand.Room,
			Date:             cand.Date,
			Weekday:          cand.Weekday,
			Slot:             cand.Slot,
			Purpose:          cand.Purpose,
			Role:             cand.Role,
			Status:           persistence.StatusPending,
			ParticipantCount: cand.ParticipantCount,
			OwnerID:          params.OwnerID,
		}
		if rec.Purpose == "" {
			rec.Purpose = backup.Purpose
		}
		if rec.Role == "" {
			rec.Role = backup.Role
		}
		if rec.ParticipantCount <= 0 {
			rec.ParticipantCount = backup.ParticipantCount
		}
		if err := s.store.AppendRequest(ctx, rec); err != nil {
			restore()
			return storageError("append replacement request", err)
		}
	}

	logger.Info("reservation replaced with pending candidates", "owner", params.OwnerID, "from_approved", fromApproved)
	return nil
}

// ListRequests returns all pending reservation requests.
func (s *ReservationService) ListRequests(ctx context.Context) ([]persistence.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.store.ScanRequests(ctx)
	if err != nil {
		return nil, storageError("scan requests", err)
	}
	return recs, nil
}

// ListChangeRequests returns all pending change requests.
func (s *ReservationService) ListChangeRequests(ctx context.Context) ([]persistence.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.store.ScanChanges(ctx)
	if err != nil {
		return nil, storageError("scan change requests", err)
	}
	return recs, nil
}

// ListApproved returns the approved reservations held in the given partition.
func (s *ReservationService) ListApproved(ctx context.Context, kind persistence.Kind) ([]persistence.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.store.ScanApproved(ctx, kind)
	if err != nil {
		return nil, storageError("scan approved reservations", err)
	}
	return recs, nil
}

// ListOwnedBy returns every live record (pending and approved) owned by the
// given user, matched by owner id or by display name for rows predating
// owner ids.
func (s *ReservationService) ListOwnedBy(ctx context.Context, ownerID, displayName string) ([]persistence.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []persistence.Reservation
	requests, err := s.store.ScanRequests(ctx)
	if err != nil {
		return nil, storageError("scan requests", err)
	}
	for _, r := range requests {
		if ownsRecord(r, ownerID, displayName) {
			out = append(out, r)
		}
	}
	for _, kind := range []persistence.Kind{persistence.KindLecture, persistence.KindLab} {
		approved, err := s.store.ScanApproved(ctx, kind)
		if err != nil {
			return nil, storageError("scan approved reservations", err)
		}
		for _, r := range approved {
			if ownsRecord(r, ownerID, displayName) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// PendingCount reports how many reservation requests await a decision.
func (s *ReservationService) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.store.ScanRequests(ctx)
	if err != nil {
		return 0, storageError("scan requests", err)
	}
	return len(recs), nil
}

// ReservedCountByDate sums the participant headcount approved for a room on
// the given date.
func (s *ReservationService) ReservedCountByDate(ctx context.Context, room, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, kind := range []persistence.Kind{persistence.KindLecture, persistence.KindLab} {
		approved, err := s.store.ScanApproved(ctx, kind)
		if err != nil {
			return 0, storageError("scan approved reservations", err)
		}
		for _, r := range approved {
			if strings.TrimSpace(r.Room) == strings.TrimSpace(room) && strings.TrimSpace(r.Date) == strings.TrimSpace(date) {
				total += r.ParticipantCount
			}
		}
	}
	return total, nil
}

// SlotAvailable reports whether no live record occupies the
// (room, date, slot) key.
func (s *ReservationService) SlotAvailable(ctx context.Context, room, date, slot string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.liveBookings(ctx)
	if err != nil {
		return false, storageError("scan live records", err)
	}
	return !admission.Conflicts(live, room, date, slot), nil
}

// HasApprovedForRoom reports whether any approved reservation still
// references the room. Catalog administration uses it to block deleting a
// room that is in use.
func (s *ReservationService) HasApprovedForRoom(ctx context.Context, room string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range []persistence.Kind{persistence.KindLecture, persistence.KindLab} {
		approved, err := s.store.ScanApproved(ctx, kind)
		if err != nil {
			return false, storageError("scan approved reservations", err)
		}
		for _, r := range approved {
			if strings.TrimSpace(r.Room) == strings.TrimSpace(room) {
				return true, nil
			}
		}
	}
	return false, nil
}

// liveBookings gathers the occupancy of every live record: pending requests,
// the new keys of pending change requests, and approved reservations of both
// partitions. Callers hold the store lock.
func (s *ReservationService) liveBookings(ctx context.Context) ([]admission.Booking, error) {
	var out []admission.Booking

	requests, err := s.store.ScanRequests(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range requests {
		out = append(out, admission.Booking{Room: r.Room, Date: r.Date, Slot: r.Slot})
	}

	changes, err := s.store.ScanChanges(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		out = append(out, admission.Booking{Room: c.NewRoom, Date: c.NewDate, Slot: c.NewSlot})
	}

	for _, kind := range []persistence.Kind{persistence.KindLecture, persistence.KindLab} {
		approved, err := s.store.ScanApproved(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, r := range approved {
			out = append(out, admission.Booking{Room: r.Room, Date: r.Date, Slot: r.Slot})
		}
	}
	return out, nil
}

func (s *ReservationService) findApproved(ctx context.Context, kind persistence.Kind, match persistence.ReservationMatch) (persistence.Reservation, error) {
	approved, err := s.store.ScanApproved(ctx, kind)
	if err != nil {
		return persistence.Reservation{}, err
	}
	for _, r := range approved {
		if match.Matches(r) {
			return r, nil
		}
	}
	return persistence.Reservation{}, persistence.ErrNotFound
}

// kindSnapshot captures each room's kind before the store lock is taken so
// no catalog lookup runs while the lock is held.
func (s *ReservationService) kindSnapshot() map[string]persistence.Kind {
	kinds := make(map[string]persistence.Kind)
	for _, room := range s.catalog.List("") {
		if room.Kind == catalog.KindLab {
			kinds[room.Name] = persistence.KindLab
		} else {
			kinds[room.Name] = persistence.KindLecture
		}
	}
	return kinds
}

func (s *ReservationService) resolveDisplayName(ctx context.Context, ownerID, fallback string) string {
	if s.directory == nil || strings.TrimSpace(ownerID) == "" {
		return fallback
	}
	user, err := s.directory.Lookup(ctx, ownerID)
	if err != nil {
		return fallback
	}
	return user.DisplayName
}

func (s *ReservationService) emit(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		serviceLogger(ctx, s.logger, "reservation", "notify").Warn("notification dispatch failed", "error", err)
	}
}

func (s *ReservationService) validateSubmit(params SubmitParams) error {
	vErr := &ValidationError{}
	if strings.TrimSpace(params.RequesterName) == "" {
		vErr.add("requester_name", "requester name is required")
	}
	if strings.TrimSpace(params.Room) == "" {
		vErr.add("room", "classroom is required")
	}
	if strings.TrimSpace(params.Slot) == "" {
		vErr.add("slot", "time slot is required")
	}
	if params.ParticipantCount <= 0 {
		vErr.add("participant_count", "participant count must be positive")
	}

	selected, err := time.Parse(dateLayout, strings.TrimSpace(params.Date))
	if err != nil {
		vErr.add("date", "date must use the YYYY-MM-DD format")
	}
	if vErr.HasErrors() {
		return vErr
	}

	today := s.now().Truncate(24 * time.Hour)
	if !selected.After(today) {
		return ruleError(RuleInvalidDate, "reservations must be made at least one day ahead")
	}
	return nil
}

func (s *ReservationService) validateChange(params ChangeParams) error {
	vErr := &ValidationError{}
	if strings.TrimSpace(params.OwnerID) == "" && strings.TrimSpace(params.RequesterName) == "" {
		vErr.add("owner", "owner id or requester name is required")
	}
	if strings.TrimSpace(params.NewRoom) == "" {
		vErr.add("new_room", "replacement classroom is required")
	}
	if strings.TrimSpace(params.NewSlot) == "" {
		vErr.add("new_slot", "replacement time slot is required")
	}
	if _, err := time.Parse(dateLayout, strings.TrimSpace(params.NewDate)); err != nil {
		vErr.add("new_date", "date must use the YYYY-MM-DD format")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func ownsRecord(r persistence.Reservation, ownerID, displayName string) bool {
	if ownerID != "" && strings.TrimSpace(r.OwnerID) == strings.TrimSpace(ownerID) {
		return true
	}
	return displayName != "" && strings.TrimSpace(r.RequesterName) == strings.TrimSpace(displayName)
}

func roomKind(kinds map[string]persistence.Kind, room string) persistence.Kind {
	if kind, ok := kinds[strings.TrimSpace(room)]; ok {
		return kind
	}
	return persistence.KindLecture
}

// recipientKey picks the notification routing key: the owner id when the row
// carries one, otherwise the display name recorded on legacy rows.
func recipientKey(ownerID, requesterName string) string {
	if strings.TrimSpace(ownerID) != "" {
		return ownerID
	}
	return requesterName
}
