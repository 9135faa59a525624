package persistence

import "context"

// ReservationStore is the durable store behind the approval workflow. Delete
// operations return the removed record so callers can keep an in-memory
// backup for compensating rollback, and return ErrNotFound when no record
// matches.
//
// The store performs no locking of its own beyond keeping individual writes
// atomic; the workflow serializes mutations and consistency-sensitive reads
// behind its single store lock.
type ReservationStore interface {
	AppendRequest(ctx context.Context, rec Reservation) error
	ScanRequests(ctx context.Context) ([]Reservation, error)
	DeleteRequest(ctx context.Context, match ReservationMatch) (Reservation, error)

	AppendChange(ctx context.Context, rec ChangeRequest) error
	ScanChanges(ctx context.Context) ([]ChangeRequest, error)
	DeleteChange(ctx context.Context, match ChangeMatch) (ChangeRequest, error)

	AppendApproved(ctx context.Context, kind Kind, rec Reservation) error
	ScanApproved(ctx context.Context, kind Kind) ([]Reservation, error)
	DeleteApproved(ctx context.Context, kind Kind, match ReservationMatch) (Reservation, error)

	AppendAudit(ctx context.Context, rec Reservation) error
}

// NotificationStore is the durable offline-notification queue. Take removes
// and returns the recipient's queued notifications in FIFO order.
type NotificationStore interface {
	AppendNotification(ctx context.Context, n Notification) error
	TakeNotifications(ctx context.Context, recipientID string) ([]Notification, error)
}
