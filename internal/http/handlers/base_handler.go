// README: Base handler utilities (JSON helpers, error mapping, per-caller session lookup).
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tripmate/internal/http/middleware"
	"tripmate/internal/modules/directory"
	"tripmate/internal/modules/matching"
	"tripmate/internal/modules/trips"
	"tripmate/internal/upstream"
)

// Backend is the travel backend bound to one caller's token.
type Backend interface {
	directory.Source
	matching.ActionSender
	CreateTrip(ctx context.Context, in upstream.CreateTripInput) (trips.RawTrip, error)
}

// BackendFactory binds the travel backend to a bearer token.
type BackendFactory func(token string) Backend

// UpstreamBackend forwards each caller's token through client.
func UpstreamBackend(client *upstream.Client) BackendFactory {
	return func(token string) Backend {
		return client.WithToken(token)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeMatchError(c *gin.Context, err error) {
	var remote *matching.RemoteError
	switch {
	case errors.Is(err, matching.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, matching.ErrNoOwnedTrip):
		writeError(c, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, matching.ErrUnresolvedPair):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, matching.ErrInvalidState):
		writeError(c, http.StatusConflict, err.Error())
	case errors.As(err, &remote):
		writeError(c, http.StatusBadGateway, remote.Message)
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeUpstreamError(c *gin.Context, err error) {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		writeError(c, http.StatusBadGateway, apiErr.Message)
		return
	}
	writeError(c, http.StatusBadGateway, "travel backend unavailable")
}

// sessions resolves the caller's directory, loading it on first use.
type sessions struct {
	manager *directory.Manager
	backend BackendFactory
	log     *zap.Logger
}

func (s *sessions) open(c *gin.Context) (*directory.Directory, Backend) {
	ctx := c.Request.Context()
	b := s.backend(middleware.CallerToken(c))
	d := s.manager.Open(ctx, middleware.CallerUID(c), b)
	if !d.Loaded() {
		if err := d.Refresh(ctx); err != nil {
			s.log.Warn("initial directory load incomplete", zap.String("uid", d.UID()), zap.Error(err))
		}
		s.manager.Save(ctx, d)
	}
	return d, b
}

func (s *sessions) save(c *gin.Context, d *directory.Directory) {
	s.manager.Save(c.Request.Context(), d)
}

func warnings(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
