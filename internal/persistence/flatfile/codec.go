package flatfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/classroom-reservation/internal/persistence"
)

// The stores are line-delimited with comma-separated fields. Two shapes per
// store are decodable: the current one and the previous one (older files mix
// both). Decoding tries newest-to-oldest by field count; lines that fit
// neither shape are skipped by callers.

// encodeReservation renders the current 10-field reservation shape:
// name,room,date,weekday,slot,purpose,role,status,count,ownerID.
func encodeReservation(r persistence.Reservation) string {
	return strings.Join([]string{
		r.RequesterName,
		r.Room,
		r.Date,
		r.Weekday,
		r.Slot,
		r.Purpose,
		r.Role,
		string(r.Status),
		strconv.Itoa(r.ParticipantCount),
		r.OwnerID,
	}, ",")
}

// decodeReservation parses the current 10-field shape, falling back to the
// legacy 9-field shape that predates owner ids.
func decodeReservation(line string) (persistence.Reservation, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 9 {
		return persistence.Reservation{}, fmt.Errorf("flatfile: reservation row has %d fields", len(parts))
	}

	count, err := strconv.Atoi(strings.TrimSpace(parts[8]))
	if err != nil {
		count = 1
	}

	rec := persistence.Reservation{
		RequesterName:    strings.TrimSpace(parts[0]),
		Room:             strings.TrimSpace(parts[1]),
		Date:             strings.TrimSpace(parts[2]),
		Weekday:          strings.TrimSpace(parts[3]),
		Slot:             strings.TrimSpace(parts[4]),
		Purpose:          strings.TrimSpace(parts[5]),
		Role:             strings.TrimSpace(parts[6]),
		Status:           persistence.ReservationStatus(strings.TrimSpace(parts[7])),
		ParticipantCount: count,
	}
	if len(parts) >= 10 {
		rec.OwnerID = strings.TrimSpace(parts[9])
	}
	return rec, nil
}

// encodeChange renders the current 13-field change-request shape:
// ownerID,newSlot,newDate,newWeekday,newRoom,name,purpose,role,
// origSlot,origDate,origWeekday,origRoom,count.
func encodeChange(c persistence.ChangeRequest) string {
	return strings.Join([]string{
		c.OwnerID,
		c.NewSlot,
		c.NewDate,
		c.NewWeekday,
		c.NewRoom,
		c.RequesterName,
		c.Purpose,
		c.Role,
		c.OriginalSlot,
		c.OriginalDate,
		c.OriginalWeekday,
		c.OriginalRoom,
		strconv.Itoa(c.ParticipantCount),
	}, ",")
}

// decodeChange parses the current 13-field shape, falling back to the legacy
// 12-field shape that predates participant counts (count defaults to 1).
func decodeChange(line string) (persistence.ChangeRequest, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 12 {
		return persistence.ChangeRequest{}, fmt.Errorf("flatfile: change row has %d fields", len(parts))
	}

	rec := persistence.ChangeRequest{
		OwnerID:          strings.TrimSpace(parts[0]),
		NewSlot:          strings.TrimSpace(parts[1]),
		NewDate:          strings.TrimSpace(parts[2]),
		NewWeekday:       strings.TrimSpace(parts[3]),
		NewRoom:          strings.TrimSpace(parts[4]),
		RequesterName:    strings.TrimSpace(parts[5]),
		Purpose:          strings.TrimSpace(parts[6]),
		Role:             strings.TrimSpace(parts[7]),
		OriginalSlot:     strings.TrimSpace(parts[8]),
		OriginalDate:     strings.TrimSpace(parts[9]),
		OriginalWeekday:  strings.TrimSpace(parts[10]),
		OriginalRoom:     strings.TrimSpace(parts[11]),
		ParticipantCount: 1,
	}
	if len(parts) >= 13 {
		if count, err := strconv.Atoi(strings.TrimSpace(parts[12])); err == nil {
			rec.ParticipantCount = count
		}
	}
	return rec, nil
}

// encodeNotification renders the 9-field notification shape. The message is
// the final field so it may contain commas.
func encodeNotification(n persistence.Notification) string {
	return strings.Join([]string{
		n.ID,
		n.RecipientID,
		n.RecipientName,
		n.Type,
		n.Room,
		n.Date,
		n.Weekday,
		n.Slot,
		n.Message,
	}, ",")
}

func decodeNotification(line string) (persistence.Notification, error) {
	parts := strings.SplitN(line, ",", 9)
	if len(parts) < 9 {
		return persistence.Notification{}, fmt.Errorf("flatfile: notification row has %d fields", len(parts))
	}
	return persistence.Notification{
		ID:            strings.TrimSpace(parts[0]),
		RecipientID:   strings.TrimSpace(parts[1]),
		RecipientName: strings.TrimSpace(parts[2]),
		Type:          strings.TrimSpace(parts[3]),
		Room:          strings.TrimSpace(parts[4]),
		Date:          strings.TrimSpace(parts[5]),
		Weekday:       strings.TrimSpace(parts[6]),
		Slot:          strings.TrimSpace(parts[7]),
		Message:       parts[8],
	}, nil
}
