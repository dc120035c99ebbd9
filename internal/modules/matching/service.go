// README: Match action orchestrator: sends request/accept/reject and reconciles session state.
package matching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tripmate/internal/types"
)

var (
	ErrNoOwnedTrip    = errors.New("must post a trip before requesting a match")
	ErrBadRequest     = errors.New("bad request")
	ErrUnresolvedPair = errors.New("could not resolve the trips for this match")
	ErrInvalidState   = errors.New("invalid match state transition")
)

// FallbackMessage is surfaced when the backend rejects an action without saying why.
const FallbackMessage = "could not complete match action, please try again"

// RemoteError is a failed match action. Message is safe to show to the user.
type RemoteError struct {
	Action  Action
	Message string
	Err     error
}

func (e *RemoteError) Error() string { return e.Message }
func (e *RemoteError) Unwrap() error { return e.Err }

// userMessager is implemented by transport errors that carry a backend message.
type userMessager interface {
	UserMessage() string
}

// LocalState is the caller's session state the orchestrator reconciles.
type LocalState interface {
	OwnedTripIDs() []types.ID
	FindMatch(id types.ID) (MatchRecord, bool)
	// FindOutgoing returns the current record from requester to target, if any.
	FindOutgoing(requester, target types.ID) (MatchRecord, bool)
	AppendPending(rec MatchRecord)
	RemoveMatch(id types.ID)
	RefreshMatches(ctx context.Context) error
}

type ActionCommand struct {
	TripID        types.ID `json:"trip_id"`
	MatchedTripID types.ID `json:"matched_trip_id"`
	Action        Action   `json:"action"`
}

type ActionResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// ActionSender delivers a match action to the travel backend.
type ActionSender interface {
	MatchAction(ctx context.Context, cmd ActionCommand) (ActionResult, error)
}

// Journal records successful actions. Failures to journal never fail an action.
type Journal interface {
	AppendEvent(ctx context.Context, e *Event) error
}

type RequestCommand struct {
	ActorUID        string
	RequesterTripID types.ID
	TargetTripID    types.ID
	Message         string
	ConsentGiven    bool
}

type DecisionCommand struct {
	ActorUID     string
	MatchID      types.ID
	TripID       types.ID
	TargetTripID types.ID
}

type Service struct {
	journal Journal
	log     *zap.Logger
	now     func() time.Time
}

func NewService(journal Journal, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{journal: journal, log: log, now: time.Now}
}

// Request asks the backend to match one of the caller's trips with cmd.TargetTripID.
// On success a local pending record is appended until the next refresh supersedes it.
// A pair that is already pending or accepted cannot be requested again; a
// rejected pair may be requested anew.
func (s *Service) Request(ctx context.Context, sender ActionSender, state LocalState, cmd RequestCommand) (MatchRecord, error) {
	owned := state.OwnedTripIDs()
	if len(owned) == 0 {
		return MatchRecord{}, ErrNoOwnedTrip
	}
	if cmd.TargetTripID == "" {
		return MatchRecord{}, ErrBadRequest
	}
	requester := cmd.RequesterTripID
	if requester == "" {
		requester = owned[0]
	} else if !containsID(owned, requester) {
		return MatchRecord{}, ErrBadRequest
	}
	if requester == cmd.TargetTripID || containsID(owned, cmd.TargetTripID) {
		return MatchRecord{}, ErrBadRequest
	}
	from := StatusNone
	if prev, ok := state.FindOutgoing(requester, cmd.TargetTripID); ok {
		from = prev.Status
	}
	if from != StatusRejected && !CanTransition(from, StatusPending) {
		return MatchRecord{}, ErrInvalidState
	}

	res, err := sender.MatchAction(ctx, ActionCommand{
		TripID:        requester,
		MatchedTripID: cmd.TargetTripID,
		Action:        ActionRequest,
	})
	if err := s.remoteFailure(ActionRequest, res, err); err != nil {
		return MatchRecord{}, err
	}

	now := s.now().UTC()
	rec := MatchRecord{
		ID:              types.ID("local-" + uuid.NewString()),
		RequesterTripID: requester,
		TargetTripID:    cmd.TargetTripID,
		Status:          StatusPending,
		Message:         cmd.Message,
		ConsentGiven:    cmd.ConsentGiven,
		CreatedAt:       now,
		UpdatedAt:       now,
		Local:           true,
	}
	state.AppendPending(rec)
	s.record(ctx, &Event{
		MatchID:         rec.ID,
		RequesterTripID: requester,
		TargetTripID:    cmd.TargetTripID,
		Action:          ActionRequest,
		FromStatus:      from,
		ToStatus:        StatusPending,
		ActorUID:        cmd.ActorUID,
		CreatedAt:       now,
	})
	s.log.Info("match requested",
		zap.String("requester_trip_id", requester.String()),
		zap.String("target_trip_id", cmd.TargetTripID.String()))
	return rec, nil
}

func (s *Service) Accept(ctx context.Context, sender ActionSender, state LocalState, cmd DecisionCommand) error {
	return s.decide(ctx, sender, state, ActionAccept, cmd)
}

func (s *Service) Reject(ctx context.Context, sender ActionSender, state LocalState, cmd DecisionCommand) error {
	return s.decide(ctx, sender, state, ActionReject, cmd)
}

func (s *Service) decide(ctx context.Context, sender ActionSender, state LocalState, action Action, cmd DecisionCommand) error {
	tripID, matchedID := cmd.TripID, cmd.TargetTripID
	from := StatusPending
	if cmd.MatchID != "" {
		if rec, ok := state.FindMatch(cmd.MatchID); ok {
			from = rec.Status
			if tripID == "" || matchedID == "" {
				// The caller received the request: their trip is the target.
				tripID, matchedID = rec.TargetTripID, rec.RequesterTripID
			}
		}
	}
	if tripID == "" || matchedID == "" {
		s.log.Error("cannot resolve trip pair for match action",
			zap.String("action", string(action)),
			zap.String("match_id", cmd.MatchID.String()))
		return ErrUnresolvedPair
	}
	if !CanTransition(from, action.TargetStatus()) {
		return ErrInvalidState
	}

	res, err := sender.MatchAction(ctx, ActionCommand{
		TripID:        tripID,
		MatchedTripID: matchedID,
		Action:        action,
	})
	if err := s.remoteFailure(action, res, err); err != nil {
		return err
	}

	if cmd.MatchID != "" {
		state.RemoveMatch(cmd.MatchID)
	}
	if err := state.RefreshMatches(ctx); err != nil {
		s.log.Warn("refresh matches after action", zap.String("action", string(action)), zap.Error(err))
	}
	s.record(ctx, &Event{
		MatchID:         cmd.MatchID,
		RequesterTripID: matchedID,
		TargetTripID:    tripID,
		Action:          action,
		FromStatus:      from,
		ToStatus:        action.TargetStatus(),
		ActorUID:        cmd.ActorUID,
		CreatedAt:       s.now().UTC(),
	})
	s.log.Info("match decided",
		zap.String("action", string(action)),
		zap.String("match_id", cmd.MatchID.String()))
	return nil
}

func (s *Service) remoteFailure(action Action, res ActionResult, err error) error {
	if err == nil && res.Success {
		return nil
	}
	msg := res.Message
	var um userMessager
	if err != nil && errors.As(err, &um) && um.UserMessage() != "" {
		msg = um.UserMessage()
	}
	if msg == "" {
		msg = FallbackMessage
	}
	if err == nil {
		err = errors.New("backend reported failure")
	}
	s.log.Warn("match action failed", zap.String("action", string(action)), zap.Error(err))
	return &RemoteError{Action: action, Message: msg, Err: err}
}

func (s *Service) record(ctx context.Context, e *Event) {
	if s.journal == nil {
		return
	}
	if err := s.journal.AppendEvent(ctx, e); err != nil {
		s.log.Debug("journal match event", zap.Error(err))
	}
}

func containsID(ids []types.ID, id types.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
