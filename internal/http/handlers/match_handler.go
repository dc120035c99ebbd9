// README: Match handlers: list, request, accept/reject, journal history.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tripmate/internal/http/middleware"
	"tripmate/internal/modules/directory"
	"tripmate/internal/modules/matching"
	"tripmate/internal/types"
)

// maxHistoryLimit caps the page size of History.
const maxHistoryLimit = 200

// History reads the match action journal.
type History interface {
	ListByTrip(ctx context.Context, tripID types.ID, limit int) ([]matching.Event, error)
}

type MatchHandler struct {
	sessions
	matching *matching.Service
	history  History
}

// NewMatchHandler builds the handler; history may be nil when no journal is configured.
func NewMatchHandler(svc *matching.Service, manager *directory.Manager, backend BackendFactory, history History, log *zap.Logger) *MatchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MatchHandler{
		sessions: sessions{manager: manager, backend: backend, log: log},
		matching: svc,
		history:  history,
	}
}

type requestMatchReq struct {
	RequesterTripID string `json:"requester_trip_id"`
	TargetTripID    string `json:"target_trip_id"`
	Message         string `json:"message"`
	ConsentGiven    bool   `json:"consent_given"`
}

type decideMatchReq struct {
	TripID       string `json:"trip_id"`
	TargetTripID string `json:"target_trip_id"`
}

func (h *MatchHandler) List(c *gin.Context) {
	d, _ := h.open(c)
	writeJSON(c, http.StatusOK, gin.H{"matches": d.Matches()})
}

func (h *MatchHandler) Request(c *gin.Context) {
	var req requestMatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, b := h.open(c)
	rec, err := h.matching.Request(c.Request.Context(), b, d, matching.RequestCommand{
		ActorUID:        middleware.CallerUID(c),
		RequesterTripID: types.ID(req.RequesterTripID),
		TargetTripID:    types.ID(req.TargetTripID),
		Message:         req.Message,
		ConsentGiven:    req.ConsentGiven,
	})
	if err != nil {
		writeMatchError(c, err)
		return
	}
	h.save(c, d)
	writeJSON(c, http.StatusCreated, gin.H{"match": rec})
}

func (h *MatchHandler) Accept(c *gin.Context) {
	h.decide(c, matching.ActionAccept)
}

func (h *MatchHandler) Reject(c *gin.Context) {
	h.decide(c, matching.ActionReject)
}

func (h *MatchHandler) decide(c *gin.Context, action matching.Action) {
	var req decideMatchReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	d, b := h.open(c)
	cmd := matching.DecisionCommand{
		ActorUID:     middleware.CallerUID(c),
		MatchID:      types.ID(c.Param("id")),
		TripID:       types.ID(req.TripID),
		TargetTripID: types.ID(req.TargetTripID),
	}
	var err error
	if action == matching.ActionAccept {
		err = h.matching.Accept(c.Request.Context(), b, d, cmd)
	} else {
		err = h.matching.Reject(c.Request.Context(), b, d, cmd)
	}
	if err != nil {
		writeMatchError(c, err)
		return
	}
	h.save(c, d)
	writeJSON(c, http.StatusOK, gin.H{"status": action.TargetStatus(), "matches": d.Matches()})
}

// History lists journal entries for one of the caller's trips.
func (h *MatchHandler) History(c *gin.Context) {
	if h.history == nil {
		writeError(c, http.StatusServiceUnavailable, "match history disabled")
		return
	}
	tripID := types.ID(c.Query("trip_id"))
	if tripID.IsZero() {
		writeError(c, http.StatusBadRequest, "missing trip_id")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	d, _ := h.open(c)
	owned := false
	for _, id := range d.OwnedTripIDs() {
		if id == tripID {
			owned = true
			break
		}
	}
	if !owned {
		writeError(c, http.StatusForbidden, "not your trip")
		return
	}
	events, err := h.history.ListByTrip(c.Request.Context(), tripID, limit)
	if err != nil {
		h.log.Error("list match history", zap.String("trip_id", tripID.String()), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}
