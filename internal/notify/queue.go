package notify

import (
	"context"

	"github.com/example/classroom-reservation/internal/persistence"
)

// StoreQueue adapts a persistence.NotificationStore to the Queue interface.
type StoreQueue struct {
	store persistence.NotificationStore
}

// NewStoreQueue wraps the durable notification store.
func NewStoreQueue(store persistence.NotificationStore) *StoreQueue {
	return &StoreQueue{store: store}
}

// Append persists the notification in the recipient's offline queue.
func (q *StoreQueue) Append(ctx context.Context, n Notification) error {
	return q.store.AppendNotification(ctx, persistence.Notification{
		ID:            n.ID,
		RecipientID:   n.RecipientID,
		RecipientName: n.RecipientName,
		Type:          string(n.Type),
		Room:          n.Room,
		Date:          n.Date,
		Weekday:       n.Weekday,
		Slot:          n.Slot,
		Message:       n.Message,
	})
}

// Take removes and returns the recipient's queued notifications FIFO.
func (q *StoreQueue) Take(ctx context.Context, recipientID string) ([]Notification, error) {
	stored, err := q.store.TakeNotifications(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(stored))
	for _, n := range stored {
		out = append(out, Notification{
			ID:            n.ID,
			RecipientID:   n.RecipientID,
			RecipientName: n.RecipientName,
			Room:          n.Room,
			Date:          n.Date,
			Weekday:       n.Weekday,
			Slot:          n.Slot,
			Type:          Type(n.Type),
			Message:       n.Message,
		})
	}
	return out, nil
}
