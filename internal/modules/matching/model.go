// README: Match records between trips, their status flow and action commands.
package matching

import (
	"encoding/json"
	"strings"
	"time"

	"tripmate/internal/types"
)

type Status string

const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

type Action string

const (
	ActionRequest Action = "request"
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
)

// MatchRecord is a request from one trip to connect with another trip's owner.
type MatchRecord struct {
	ID              types.ID  `json:"id"`
	RequesterTripID types.ID  `json:"requester_trip_id"`
	TargetTripID    types.ID  `json:"target_trip_id"`
	Status          Status    `json:"status"`
	Message         string    `json:"message,omitempty"`
	ConsentGiven    bool      `json:"consent_given"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	// Local marks a record appended optimistically after a request; it is
	// dropped once the backend reports the same pair.
	Local bool `json:"local,omitempty"`
}

// Event is one journaled match action.
type Event struct {
	ID              int64
	MatchID         types.ID
	RequesterTripID types.ID
	TargetTripID    types.ID
	Action          Action
	FromStatus      Status
	ToStatus        Status
	ActorUID        string
	CreatedAt       time.Time
}

// AllowedTransitions represents the match lifecycle as code.
// accepted and rejected are terminal: re-requesting creates a new record.
var AllowedTransitions = map[Status][]Status{
	StatusNone:    {StatusPending},
	StatusPending: {StatusAccepted, StatusRejected},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// TargetStatus is the status an action moves a record into.
func (a Action) TargetStatus() Status {
	switch a {
	case ActionRequest:
		return StatusPending
	case ActionAccept:
		return StatusAccepted
	case ActionReject:
		return StatusRejected
	}
	return StatusNone
}

func (a Action) Valid() bool {
	return a.TargetStatus() != StatusNone
}

func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Involves reports whether tripID is either side of the record.
func (m MatchRecord) Involves(tripID types.ID) bool {
	return tripID != "" && (m.RequesterTripID == tripID || m.TargetTripID == tripID)
}

// ParseStatus maps the backend's status vocabulary onto the match lifecycle.
// A record without a status is a fresh request.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending", "requested", "sent":
		return StatusPending
	case "accepted", "approved", "matched", "confirmed":
		return StatusAccepted
	case "rejected", "declined", "denied":
		return StatusRejected
	case "none":
		return StatusNone
	}
	return StatusPending
}

// DecodeRecord reads a match record from any of the field spellings the
// backend uses. It never fails; unknown fields are ignored.
func DecodeRecord(raw types.Raw) MatchRecord {
	return MatchRecord{
		ID:              raw.ID("id", "match_id", "request_id"),
		RequesterTripID: raw.ID("requester_trip_id", "trip_id", "from_trip_id", "requester_trip"),
		TargetTripID:    raw.ID("target_trip_id", "matched_trip_id", "to_trip_id", "target_trip"),
		Status:          ParseStatus(raw.Str("status")),
		Message:         raw.Str("message", "note"),
		ConsentGiven:    raw.Bool("consent_given", "consent"),
		CreatedAt:       raw.Time("created_at"),
		UpdatedAt:       raw.Time("updated_at"),
		Local:           raw.Bool("local"),
	}
}

// blankRecord reports whether raw names neither a trip, an id nor a status.
func blankRecord(raw types.Raw) bool {
	return raw.ID("id", "match_id", "request_id") == "" &&
		raw.ID("requester_trip_id", "trip_id", "from_trip_id", "requester_trip") == "" &&
		raw.ID("target_trip_id", "matched_trip_id", "to_trip_id", "target_trip") == "" &&
		raw.Str("status") == ""
}

// DecodeRecords decodes every object in list, skipping non-objects and
// blank records.
func DecodeRecords(list []any) []MatchRecord {
	out := make([]MatchRecord, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok || blankRecord(types.Raw(obj)) {
			continue
		}
		out = append(out, DecodeRecord(types.Raw(obj)))
	}
	return out
}

// IsZero reports whether m carries nothing, as decoded from null or {}.
func (m MatchRecord) IsZero() bool {
	return m.ID == "" && m.RequesterTripID == "" && m.TargetTripID == "" && m.Status == ""
}

// Compact drops zero records, returning a non-nil slice.
func Compact(recs []MatchRecord) []MatchRecord {
	out := make([]MatchRecord, 0, len(recs))
	for _, m := range recs {
		if !m.IsZero() {
			out = append(out, m)
		}
	}
	return out
}

// UnmarshalJSON leaves m zero for null and blank objects.
func (m *MatchRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if blankRecord(types.Raw(raw)) {
		*m = MatchRecord{}
		return nil
	}
	*m = DecodeRecord(types.Raw(raw))
	return nil
}
