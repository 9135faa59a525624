package application

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID      string
	DisplayName string
	CanModerate bool
}

// SubmitParams carries a new reservation request.
type SubmitParams struct {
	Principal        Principal
	RequesterName    string
	Room             string
	Date             string
	Weekday          string
	Slot             string
	Purpose          string
	Role             string
	ParticipantCount int
}

// DecisionParams identifies the pending request (or pending change request)
// an approve or reject decision targets.
type DecisionParams struct {
	Principal     Principal
	OwnerID       string
	Slot          string
	Date          string
	Weekday       string
	Room          string
	RequesterName string
}

// CancelParams identifies the approved reservation to remove. RequestedBy is
// the acting user; when it differs from the owner the owner is notified.
type CancelParams struct {
	Principal     Principal
	RequestedBy   string
	OwnerID       string
	Weekday       string
	Date          string
	Slot          string
	Room          string
	RequesterName string
}

// ChangeParams records a request to move an approved reservation to a new
// (room, date, slot), pending staff approval.
type ChangeParams struct {
	Principal        Principal
	OwnerID          string
	RequesterName    string
	OriginalSlot     string
	OriginalDate     string
	OriginalWeekday  string
	OriginalRoom     string
	NewSlot          string
	NewDate          string
	NewWeekday       string
	NewRoom          string
	ParticipantCount int
}

// ChangeCandidate is one replacement booking proposed by a full change.
type ChangeCandidate struct {
	Room             string
	Date             string
	Weekday          string
	Slot             string
	Purpose          string
	Role             string
	ParticipantCount int
}

// ChangeFullParams replaces an existing reservation with one or more new
// pending requests in a single compound operation.
type ChangeFullParams struct {
	Principal       Principal
	OwnerID         string
	RequesterName   string
	OriginalRoom    string
	OriginalDate    string
	OriginalWeekday string
	OriginalSlot    string
	Candidates      []ChangeCandidate
}
