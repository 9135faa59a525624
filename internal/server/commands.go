package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/classroom-reservation/internal/application"
	"github.com/example/classroom-reservation/internal/catalog"
	"github.com/example/classroom-reservation/internal/identity"
	"github.com/example/classroom-reservation/internal/persistence"
)

func (s *Server) dispatch(ctx context.Context, sess *session, line string) {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	cmd := fields[0]

	switch cmd {
	case "LOGIN":
		// A successful login writes its own reply before draining queued
		// notifications, so only failures are written here.
		if reply := s.cmdLogin(ctx, sess, fields); reply != "" {
			sess.writeLine(reply)
		}
		return
	case "REGISTER":
		sess.writeLine(s.cmdRegister(ctx, fields))
		return
	}

	if !sess.bound {
		sess.writeLine("NOT_LOGGED_IN")
		return
	}

	switch cmd {
	case "CHANGE_PASSWORD":
		sess.writeLine(s.cmdChangePassword(ctx, sess, fields))
	case "RESERVE_REQUEST":
		sess.writeLine(s.cmdReserveRequest(ctx, sess, fields))
	case "APPROVE_RESERVATION":
		sess.writeLine(s.cmdDecision(ctx, sess, fields, true))
	case "REJECT_RESERVATION":
		sess.writeLine(s.cmdDecision(ctx, sess, fields, false))
	case "CANCEL_RESERVATION":
		sess.writeLine(s.cmdCancel(ctx, sess, fields))
	case "CHANGE_RESERVATION":
		sess.writeLine(s.cmdChange(ctx, sess, fields))
	case "CHANGE_RESERVATION_FULL":
		sess.writeLine(s.cmdChangeFull(ctx, sess, fields))
	case "GET_CLASSROOMS":
		sess.writeLine(s.cmdListRooms("CLASSROOMS", catalog.KindLecture))
	case "GET_LABS":
		sess.writeLine(s.cmdListRooms("LABS", catalog.KindLab))
	case "GET_RESERVATION_REQUESTS":
		s.cmdReservationRequests(ctx, sess)
	case "VIEW_MY_RESERVATIONS":
		s.cmdMyReservations(ctx, sess)
	case "VIEW_APPROVED_RESERVATIONS":
		s.cmdApprovedReservations(ctx, sess)
	case "COUNT_PENDING_REQUEST":
		sess.writeLine(s.cmdPendingCount(ctx))
	case "GET_RESERVED_COUNT":
		sess.writeLine(s.cmdReservedCount(ctx, fields))
	case "CHECK_ROOM_STATUS":
		sess.writeLine(s.cmdRoomStatus(ctx, fields))
	case "CHECK_ROOM_TIME":
		sess.writeLine(s.cmdRoomTime(ctx, fields))
	case "UPDATE_ROOM_STATUS":
		sess.writeLine(s.cmdUpdateRoomStatus(ctx, sess, fields))
	case "UPDATE_ROOM_CAPACITY":
		sess.writeLine(s.cmdUpdateRoomCapacity(ctx, sess, fields))
	case "ADD_CLASSROOM":
		sess.writeLine(s.cmdAddClassroom(ctx, sess, fields))
	case "DELETE_CLASSROOM":
		sess.writeLine(s.cmdDeleteClassroom(ctx, sess, fields))
	default:
		sess.writeLine("UNKNOWN_COMMAND")
	}
}

func (sess *session) principal() application.Principal {
	return application.Principal{
		UserID:      sess.user.ID,
		DisplayName: sess.user.DisplayName,
		CanModerate: sess.user.Role.CanModerate(),
	}
}

// errorToken renders a workflow error as the protocol's <KIND>:<message>
// form. Internal failures are not echoed to clients.
func errorToken(err error) string {
	kind := application.ErrorKind(err)
	msg := err.Error()
	if kind == "storage_failure" || kind == "unexpected" {
		msg = "internal error"
	}
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.ToUpper(kind) + ":" + msg
}

func (s *Server) cmdLogin(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 3 {
		return "INVALID_FORMAT"
	}
	if sess.bound {
		return "ALREADY_LOGGED_IN"
	}

	user, err := s.identity.Authenticate(ctx, fields[1], fields[2])
	if err != nil {
		return "FAIL"
	}
	if err := s.bindSession(user.ID, sess); err != nil {
		if errors.Is(err, errServerBusy) {
			return "SERVER_BUSY"
		}
		return "ALREADY_LOGGED_IN"
	}
	sess.user = user
	sess.bound = true

	sess.writeLine("SUCCESS," + user.DisplayName + "," + string(user.Role))
	// Drain queued offline notifications, then keep the connection bound as
	// the live channel.
	if err := s.dispatcher.OnConnect(ctx, user.ID, sess); err != nil {
		s.logger.Warn("offline notification drain failed", "user", user.ID, "error", err)
	}
	return ""
}

func (s *Server) cmdRegister(ctx context.Context, fields []string) string {
	if len(fields) != 4 && len(fields) != 5 {
		return "INVALID_FORMAT"
	}
	name, id, password := fields[1], fields[2], fields[3]
	role := identity.RoleStudent
	if len(fields) == 5 && fields[4] != "" {
		role = identity.Role(strings.ToUpper(fields[4]))
	}

	if err := s.identity.Register(ctx, id, password, name, role); err != nil {
		if errors.Is(err, identity.ErrDuplicate) {
			return "DUPLICATE_ID"
		}
		return "FAIL"
	}
	return "SUCCESS"
}

func (s *Server) cmdChangePassword(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 3 {
		return "INVALID_PASSWORD_CHANGE_FORMAT"
	}
	err := s.identity.ChangePassword(ctx, sess.user.ID, fields[1], fields[2])
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return "INVALID_CURRENT_PASSWORD"
		}
		return "FAIL"
	}
	return "SUCCESS"
}

func (s *Server) cmdReserveRequest(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 10 {
		return "INVALID_RESERVE_FORMAT"
	}
	count, err := strconv.Atoi(fields[8])
	if err != nil {
		return "INVALID_INPUT:participant count must be a number"
	}

	err = s.reservations.Submit(ctx, application.SubmitParams{
		Principal:        sess.principal(),
		RequesterName:    fields[1],
		Room:             fields[2],
		Date:             fields[3],
		Weekday:          fields[4],
		Slot:             fields[5],
		Purpose:          fields[6],
		Role:             fields[7],
		ParticipantCount: count,
		// fields[9] repeats the authenticated user id; the session wins.
	})
	if err != nil {
		return errorToken(err)
	}
	return "RESERVE_SUCCESS"
}

func (s *Server) cmdDecision(ctx context.Context, sess *session, fields []string, approve bool) string {
	if len(fields) != 7 {
		if approve {
			return "INVALID_APPROVE_FORMAT"
		}
		return "INVALID_REJECT_FORMAT"
	}
	params := application.DecisionParams{
		Principal:     sess.principal(),
		OwnerID:       fields[1],
		Slot:          fields[2],
		Date:          fields[3],
		Weekday:       fields[4],
		Room:          fields[5],
		RequesterName: fields[6],
	}

	var err error
	if approve {
		err = s.reservations.Approve(ctx, params)
	} else {
		err = s.reservations.Reject(ctx, params)
	}
	if err != nil {
		if errors.Is(err, application.ErrUnauthorized) {
			return "ACCESS_DENIED"
		}
		return errorToken(err)
	}
	if approve {
		return "APPROVE_SUCCESS"
	}
	return "REJECT_SUCCESS"
}

func (s *Server) cmdCancel(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 8 {
		return "INVALID_CANCEL_FORMAT"
	}
	err := s.reservations.Cancel(ctx, application.CancelParams{
		Principal:     sess.principal(),
		RequestedBy:   fields[1],
		OwnerID:       fields[2],
		Weekday:       fields[3],
		Date:          fields[4],
		Slot:          fields[5],
		Room:          fields[6],
		RequesterName: fields[7],
	})
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			return "CANCEL_FAILED_NOT_FOUND"
		}
		return errorToken(err)
	}
	return "CANCEL_SUCCESS"
}

func (s *Server) cmdChange(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 12 {
		return "INVALID_CHANGE_FORMAT"
	}
	count, _ := strconv.Atoi(fields[11])

	err := s.reservations.ChangeRequest(ctx, application.ChangeParams{
		Principal:        sess.principal(),
		OwnerID:          fields[1],
		OriginalSlot:     fields[2],
		OriginalDate:     fields[3],
		OriginalWeekday:  fields[4],
		OriginalRoom:     fields[5],
		NewSlot:          fields[6],
		NewDate:          fields[7],
		NewWeekday:       fields[8],
		NewRoom:          fields[9],
		RequesterName:    fields[10],
		ParticipantCount: count,
	})
	if err != nil {
		var rErr *application.RuleError
		if errors.As(err, &rErr) && rErr.Rule == application.RuleDuplicateRequest {
			return "CHANGE_DUPLICATE_REQUEST"
		}
		if errors.Is(err, application.ErrNotFound) {
			return "CHANGE_FAILED_LOOKUP"
		}
		return errorToken(err)
	}
	return "CHANGE_SUCCESS"
}

// cmdChangeFull parses the compound change command. Candidates arrive as one
// comma-free field: pipe-separated bookings joined by semicolons,
// room|date|weekday|slot|purpose|role|count.
func (s *Server) cmdChangeFull(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 10 {
		return "CHANGE_FAILED_INVALID_FORMAT"
	}
	// fields[1] and fields[2] carry the legacy file-type hints; room kinds
	// are resolved from the catalog instead.
	params := application.ChangeFullParams{
		Principal:       sess.principal(),
		OwnerID:         fields[3],
		RequesterName:   fields[4],
		OriginalRoom:    fields[5],
		OriginalDate:    fields[6],
		OriginalWeekday: fields[7],
		OriginalSlot:    fields[8],
	}

	for _, raw := range strings.Split(fields[9], ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, "|")
		if len(parts) < 7 {
			return "CHANGE_FAILED_INVALID_FORMAT"
		}
		count, err := strconv.Atoi(strings.TrimSpace(parts[6]))
		if err != nil {
			return "CHANGE_FAILED_INVALID_FORMAT"
		}
		params.Candidates = append(params.Candidates, application.ChangeCandidate{
			Room:             strings.TrimSpace(parts[0]),
			Date:             strings.TrimSpace(parts[1]),
			Weekday:          strings.TrimSpace(parts[2]),
			Slot:             strings.TrimSpace(parts[3]),
			Purpose:          strings.TrimSpace(parts[4]),
			Role:             strings.TrimSpace(parts[5]),
			ParticipantCount: count,
		})
	}
	if len(params.Candidates) == 0 {
		return "CHANGE_FAILED_NO_VALID_RESERVATION"
	}

	if err := s.reservations.ChangeRequestFull(ctx, params); err != nil {
		var rErr *application.RuleError
		if errors.As(err, &rErr) && rErr.Rule == application.RuleConflict {
			return "CHANGE_FAILED_CONFLICT:" + rErr.Detail
		}
		if errors.Is(err, application.ErrNotFound) {
			return "CHANGE_FAILED_NOT_FOUND"
		}
		return errorToken(err)
	}
	return "CHANGE_SUCCESS"
}

func (s *Server) cmdListRooms(prefix string, kind catalog.Kind) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, room := range s.rooms.ListClassrooms(context.Background(), kind) {
		fmt.Fprintf(&sb, ",%s,%s,%d", room.Name, room.Kind, room.Capacity)
	}
	return sb.String()
}

func (s *Server) cmdReservationRequests(ctx context.Context, sess *session) {
	if !sess.principal().CanModerate {
		sess.writeLine("ACCESS_DENIED")
		return
	}

	requests, err := s.reservations.ListRequests(ctx)
	if err != nil {
		sess.writeLine("GET_REQUESTS_ERROR")
		return
	}
	for _, r := range requests {
		sess.writeLine(strings.Join([]string{
			r.OwnerID, r.Slot, r.Date, r.Room, r.RequesterName, strconv.Itoa(r.ParticipantCount),
		}, ","))
	}

	changes, err := s.reservations.ListChangeRequests(ctx)
	if err != nil {
		sess.writeLine("GET_REQUESTS_ERROR")
		return
	}
	for _, c := range changes {
		sess.writeLine(strings.Join([]string{
			c.OwnerID, c.NewSlot, c.NewDate, c.NewRoom, c.RequesterName, strconv.Itoa(c.ParticipantCount),
		}, ","))
	}
	sess.writeLine("END_OF_REQUESTS")
}

func (s *Server) cmdMyReservations(ctx context.Context, sess *session) {
	owned, err := s.reservations.ListOwnedBy(ctx, sess.user.ID, sess.user.DisplayName)
	if err != nil {
		sess.writeLine("VIEW_FAILED")
		return
	}
	for _, r := range owned {
		sess.writeLine(strings.Join([]string{
			r.OwnerID, r.Slot, r.Date, r.Room, r.RequesterName, r.Purpose,
			string(r.Status), strconv.Itoa(r.ParticipantCount),
		}, ","))
	}
	sess.writeLine("END_OF_MY_RESERVATIONS")
}

func (s *Server) cmdApprovedReservations(ctx context.Context, sess *session) {
	for _, kind := range []persistence.Kind{persistence.KindLecture, persistence.KindLab} {
		approved, err := s.reservations.ListApproved(ctx, kind)
		if err != nil {
			sess.writeLine("VIEW_FAILED")
			return
		}
		for _, r := range approved {
			sess.writeLine(strings.Join([]string{
				r.OwnerID, r.Slot, r.Date, r.Weekday, r.Room, r.RequesterName,
				strconv.Itoa(r.ParticipantCount),
			}, ","))
		}
	}
	sess.writeLine("END_OF_APPROVED_RESERVATIONS")
}

func (s *Server) cmdPendingCount(ctx context.Context) string {
	count, err := s.reservations.PendingCount(ctx)
	if err != nil {
		return "ERROR_COUNTING_REQUEST"
	}
	return "PENDING_COUNT:" + strconv.Itoa(count)
}

func (s *Server) cmdReservedCount(ctx context.Context, fields []string) string {
	if len(fields) < 3 {
		return "INVALID_FORMAT"
	}
	count, err := s.reservations.ReservedCountByDate(ctx, fields[1], fields[2])
	if err != nil {
		return errorToken(err)
	}
	return "RESERVED_COUNT:" + strconv.Itoa(count)
}

func (s *Server) cmdRoomStatus(ctx context.Context, fields []string) string {
	if len(fields) != 2 {
		return "INVALID_CHECK_FORMAT"
	}
	status, err := s.rooms.RoomStatus(ctx, fields[1])
	if err != nil {
		// Unknown rooms read as available, matching the sparse override file.
		return string(catalog.StatusAvailable)
	}
	return string(status)
}

func (s *Server) cmdRoomTime(ctx context.Context, fields []string) string {
	if len(fields) != 4 {
		return "INVALID_CHECK_FORMAT"
	}
	free, err := s.reservations.SlotAvailable(ctx, fields[1], fields[2], fields[3])
	if err != nil {
		return "CHECK_ROOM_TIME_ERROR"
	}
	if free {
		return "AVAILABLE"
	}
	return "RESERVED"
}

func (s *Server) cmdUpdateRoomStatus(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 3 {
		return "INVALID_UPDATE_FORMAT"
	}
	err := s.rooms.SetRoomStatus(ctx, sess.principal(), fields[1], catalog.Status(strings.ToUpper(fields[2])))
	if err != nil {
		if errors.Is(err, application.ErrUnauthorized) {
			return "ACCESS_DENIED"
		}
		if errors.Is(err, application.ErrNotFound) {
			return "ROOM_NOT_FOUND"
		}
		return "UPDATE_FAILED_SERVER_ERROR"
	}
	return "ROOM_STATUS_UPDATED"
}

func (s *Server) cmdUpdateRoomCapacity(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 3 {
		return "INVALID_FORMAT"
	}
	capacity, err := strconv.Atoi(fields[2])
	if err != nil {
		return "INVALID_CAPACITY"
	}

	err = s.rooms.UpdateCapacity(ctx, sess.principal(), fields[1], capacity)
	if err != nil {
		if errors.Is(err, application.ErrUnauthorized) {
			return "ACCESS_DENIED"
		}
		if errors.Is(err, application.ErrNotFound) {
			return "ROOM_NOT_FOUND"
		}
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			return "INVALID_CAPACITY"
		}
		return errorToken(err)
	}
	return "CAPACITY_UPDATED"
}

func (s *Server) cmdAddClassroom(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 4 {
		return "INVALID_FORMAT"
	}
	capacity, err := strconv.Atoi(fields[3])
	if err != nil {
		return "INVALID_CAPACITY"
	}
	room := catalog.Classroom{
		Name:     fields[1],
		Kind:     catalog.Kind(strings.ToUpper(fields[2])),
		Capacity: capacity,
	}

	if err := s.rooms.AddClassroom(ctx, sess.principal(), room); err != nil {
		if errors.Is(err, application.ErrUnauthorized) {
			return "ACCESS_DENIED"
		}
		return errorToken(err)
	}
	return "SUCCESS"
}

func (s *Server) cmdDeleteClassroom(ctx context.Context, sess *session, fields []string) string {
	if len(fields) != 2 {
		return "INVALID_FORMAT"
	}
	if err := s.rooms.DeleteClassroom(ctx, sess.principal(), fields[1]); err != nil {
		if errors.Is(err, application.ErrUnauthorized) {
			return "ACCESS_DENIED"
		}
		if errors.Is(err, application.ErrNotFound) {
			return "ROOM_NOT_FOUND"
		}
		return errorToken(err)
	}
	return "SUCCESS"
}
