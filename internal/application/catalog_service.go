package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/classroom-reservation/internal/catalog"
)

// CatalogService exposes classroom administration: staff-only mutation of
// the room inventory and availability overrides, plus open queries.
type CatalogService struct {
	catalog      *catalog.Catalog
	reservations *ReservationService
	logger       *slog.Logger
}

// NewCatalogService wires catalog administration. reservations guards room
// deletion against live usage and may be nil in read-only setups.
func NewCatalogService(cat *catalog.Catalog, reservations *ReservationService, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		catalog:      cat,
		reservations: reservations,
		logger:       defaultLogger(logger),
	}
}

// ListClassrooms returns the registered rooms, optionally filtered by kind.
func (s *CatalogService) ListClassrooms(ctx context.Context, kind catalog.Kind) []catalog.Classroom {
	return s.catalog.List(kind)
}

// Classroom returns a single registered room.
func (s *CatalogService) Classroom(ctx context.Context, name string) (catalog.Classroom, error) {
	room, err := s.catalog.Get(name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Classroom{}, ErrNotFound
		}
		return catalog.Classroom{}, storageError("catalog lookup", err)
	}
	return room, nil
}

// RoomStatus reports the effective availability of a room.
func (s *CatalogService) RoomStatus(ctx context.Context, name string) (catalog.Status, error) {
	if !s.catalog.Exists(name) {
		return "", ErrNotFound
	}
	return s.catalog.Status(name), nil
}

// AddClassroom registers a new room. Staff only.
func (s *CatalogService) AddClassroom(ctx context.Context, principal Principal, room catalog.Classroom) error {
	logger := serviceLogger(ctx, s.logger, "catalog", "add_classroom", "room", room.Name)
	if !principal.CanModerate {
		return ErrUnauthorized
	}

	vErr := &ValidationError{}
	if room.Name == "" {
		vErr.add("name", "classroom name is required")
	}
	if room.Kind != catalog.KindLecture && room.Kind != catalog.KindLab {
		vErr.add("kind", "kind must be LECTURE or LAB")
	}
	if room.Capacity <= 0 {
		vErr.add("capacity", "capacity must be positive")
	}
	if vErr.HasErrors() {
		return vErr
	}

	if s.catalog.Exists(room.Name) {
		return ruleError(RuleDuplicateRequest, "classroom %q is already registered", room.Name)
	}
	if err := s.catalog.Add(room); err != nil {
		return storageError("add classroom", err)
	}
	logger.Info("classroom registered", "kind", room.Kind, "capacity", room.Capacity)
	return nil
}

// UpdateCapacity changes a room's physical capacity; the admission ceiling
// follows it. Staff only.
func (s *CatalogService) UpdateCapacity(ctx context.Context, principal Principal, name string, capacity int) error {
	logger := serviceLogger(ctx, s.logger, "catalog", "update_capacity", "room", name)
	if !principal.CanModerate {
		return ErrUnauthorized
	}
	if capacity <= 0 {
		vErr := &ValidationError{}
		vErr.add("capacity", "capacity must be positive")
		return vErr
	}

	if err := s.catalog.UpdateCapacity(name, capacity); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("update capacity", err)
	}
	logger.Info("classroom capacity updated", "capacity", capacity)
	return nil
}

// DeleteClassroom removes a room from the inventory. Deletion is blocked
// while any approved reservation still references the room. Staff only.
func (s *CatalogService) DeleteClassroom(ctx context.Context, principal Principal, name string) error {
	logger := serviceLogger(ctx, s.logger, "catalog", "delete_classroom", "room", name)
	if !principal.CanModerate {
		return ErrUnauthorized
	}
	if !s.catalog.Exists(name) {
		return ErrNotFound
	}

	if s.reservations != nil {
		inUse, err := s.reservations.HasApprovedForRoom(ctx, name)
		if err != nil {
			return err
		}
		if inUse {
			return ruleError(RuleRoomOccupied, "classroom %q still has approved reservations", name)
		}
	}

	if err := s.catalog.Delete(name); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("delete classroom", err)
	}
	logger.Info("classroom removed")
	return nil
}

// SetRoomStatus records an availability override. Setting AVAILABLE clears
// the override. Staff only.
func (s *CatalogService) SetRoomStatus(ctx context.Context, principal Principal, name string, status catalog.Status) error {
	logger := serviceLogger(ctx, s.logger, "catalog", "set_room_status", "room", name)
	if !principal.CanModerate {
		return ErrUnauthorized
	}
	if !s.catalog.Exists(name) {
		return ErrNotFound
	}

	if err := s.catalog.SetStatus(name, status); err != nil {
		return storageError("set room status", err)
	}
	logger.Info("room status updated", "status", status)
	return nil
}
