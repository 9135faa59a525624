// Package notify delivers workflow events to their recipients: immediately
// over a live channel when one is registered, otherwise through a durable
// per-recipient offline queue drained at the next connect.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type labels the workflow outcome carried by a notification.
type Type string

const (
	TypeApproved       Type = "APPROVED"
	TypeRejected       Type = "REJECTED"
	TypeChangeApproved Type = "CHANGE_APPROVED"
	TypeChangeRejected Type = "CHANGE_REJECTED"
	TypeCancelled      Type = "CANCELLED"
)

// Notification is a workflow event addressed to a single recipient.
type Notification struct {
	ID            string
	RecipientID   string
	RecipientName string
	Room          string
	Date          string
	Weekday       string
	Slot          string
	Type          Type
	Message       string
}

// Channel is a live delivery sink, typically a client connection. Send is
// fire-and-forget: errors are logged by the dispatcher, never retried.
type Channel interface {
	Send(n Notification) error
}

// Queue is the durable offline sink. Take removes and returns a recipient's
// queued notifications in FIFO order.
type Queue interface {
	Append(ctx context.Context, n Notification) error
	Take(ctx context.Context, recipientID string) ([]Notification, error)
}

// Dispatcher routes notifications to the live or durable sink depending on
// recipient presence. It guards its channel registry with its own lock,
// independent of the reservation store lock.
type Dispatcher struct {
	mu       sync.Mutex
	channels map[string][]Channel

	queue  Queue
	pacing time.Duration
	newID  func() string
	logger *slog.Logger
}

// NewDispatcher wires the dispatcher with its durable queue. pacing spaces
// out messages when draining an offline queue so clients are not flooded.
func NewDispatcher(queue Queue, pacing time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		channels: make(map[string][]Channel),
		queue:    queue,
		pacing:   pacing,
		newID:    uuid.NewString,
		logger:   logger,
	}
}

// Register adds a live channel for the recipient.
func (d *Dispatcher) Register(recipientID string, ch Channel) {
	if ch == nil {
		return
	}
	d.mu.Lock()
	d.channels[recipientID] = append(d.channels[recipientID], ch)
	d.mu.Unlock()
}

// Unregister removes a previously registered channel. The last removal
// deletes the recipient's registry entry entirely.
func (d *Dispatcher) Unregister(recipientID string, ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing := d.channels[recipientID]
	kept := existing[:0]
	for _, c := range existing {
		if c != ch {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(d.channels, recipientID)
		return
	}
	d.channels[recipientID] = kept
}

// Notify delivers the event: pushed to every live channel when the recipient
// is connected, otherwise appended to the offline queue.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = d.newID()
	}

	d.mu.Lock()
	live := make([]Channel, len(d.channels[n.RecipientID]))
	copy(live, d.channels[n.RecipientID])
	d.mu.Unlock()

	if len(live) > 0 {
		for _, ch := range live {
			if err := ch.Send(n); err != nil {
				d.logger.Warn("live notification send failed",
					"recipient", n.RecipientID, "type", string(n.Type), "error", err)
			}
		}
		return nil
	}

	if d.queue == nil {
		d.logger.Warn("dropping notification: no live channel and no queue",
			"recipient", n.RecipientID, "type", string(n.Type))
		return nil
	}
	if err := d.queue.Append(ctx, n); err != nil {
		return err
	}
	d.logger.Info("notification queued for offline recipient",
		"recipient", n.RecipientID, "type", string(n.Type))
	return nil
}

// OnConnect drains the recipient's offline queue FIFO over the new channel,
// pacing consecutive messages, then registers the channel for live delivery.
func (d *Dispatcher) OnConnect(ctx context.Context, recipientID string, ch Channel) error {
	defer d.Register(recipientID, ch)

	if d.queue == nil {
		return nil
	}
	pending, err := d.queue.Take(ctx, recipientID)
	if err != nil {
		return err
	}
	for i, n := range pending {
		if i > 0 && d.pacing > 0 {
			time.Sleep(d.pacing)
		}
		if err := ch.Send(n); err != nil {
			d.logger.Warn("offline notification send failed",
				"recipient", recipientID, "type", string(n.Type), "error", err)
		}
	}
	if len(pending) > 0 {
		d.logger.Info("offline notifications delivered",
			"recipient", recipientID, "count", len(pending))
	}
	return nil
}
