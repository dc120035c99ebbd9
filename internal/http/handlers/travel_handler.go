// README: Travel handlers: directory refresh, candidate views, search, own trips.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tripmate/internal/http/middleware"
	"tripmate/internal/modules/directory"
	"tripmate/internal/modules/discovery"
	"tripmate/internal/modules/matching"
	"tripmate/internal/modules/trips"
	"tripmate/internal/upstream"
)

const defaultFeedPageSize = 20

type TravelHandler struct {
	sessions
	pageSize int
}

func NewTravelHandler(manager *directory.Manager, backend BackendFactory, pageSize int, log *zap.Logger) *TravelHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = defaultFeedPageSize
	}
	return &TravelHandler{
		sessions: sessions{manager: manager, backend: backend, log: log},
		pageSize: pageSize,
	}
}

type viewResponse struct {
	Session      trips.SessionUser         `json:"session"`
	MyTrips      []trips.Plan              `json:"my_trips"`
	Plans        []discovery.AnnotatedPlan `json:"plans"`
	Matches      []matching.MatchRecord    `json:"matches"`
	SearchActive bool                      `json:"search_active"`
	Warnings     []string                  `json:"warnings,omitempty"`
}

func (h *TravelHandler) view(d *directory.Directory, f discovery.FilterState, err error) viewResponse {
	return viewResponse{
		Session:      d.Session(),
		MyTrips:      d.MyTrips(),
		Plans:        d.View(f),
		Matches:      d.Matches(),
		SearchActive: d.SearchActive(),
		Warnings:     warnings(err),
	}
}

// Refresh reloads everything; collections that failed keep their previous
// contents and the failures are reported as warnings.
func (h *TravelHandler) Refresh(c *gin.Context) {
	d, _ := h.open(c)
	err := d.Refresh(c.Request.Context())
	if err != nil {
		h.log.Warn("refresh incomplete", zap.String("uid", d.UID()), zap.Error(err))
	}
	h.save(c, d)
	writeJSON(c, http.StatusOK, h.view(d, discovery.FilterState{}, err))
}

func (h *TravelHandler) Plans(c *gin.Context) {
	var f discovery.FilterState
	if err := c.ShouldBindQuery(&f); err != nil {
		writeError(c, http.StatusBadRequest, "invalid filter")
		return
	}
	d, _ := h.open(c)
	writeJSON(c, http.StatusOK, gin.H{"plans": d.View(f), "search_active": d.SearchActive()})
}

func (h *TravelHandler) Feed(c *gin.Context) {
	var q upstream.FeedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "invalid feed query")
		return
	}
	if q.Limit <= 0 {
		q.Limit = h.pageSize
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	d, _ := h.open(c)
	if err := d.LoadFeed(c.Request.Context(), q); err != nil {
		writeUpstreamError(c, err)
		return
	}
	h.save(c, d)
	writeJSON(c, http.StatusOK, gin.H{"plans": d.View(discovery.FilterState{}), "page": q.Page, "limit": q.Limit})
}

func (h *TravelHandler) Search(c *gin.Context) {
	var q upstream.SearchQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, _ := h.open(c)
	if err := d.Search(c.Request.Context(), q); err != nil {
		writeUpstreamError(c, err)
		return
	}
	h.save(c, d)
	writeJSON(c, http.StatusOK, gin.H{"plans": d.View(discovery.FilterState{}), "search_active": d.SearchActive()})
}

func (h *TravelHandler) ClearSearch(c *gin.Context) {
	d, _ := h.open(c)
	d.ClearSearch()
	h.save(c, d)
	writeJSON(c, http.StatusOK, gin.H{"plans": d.View(discovery.FilterState{}), "search_active": false})
}

func (h *TravelHandler) MyTrips(c *gin.Context) {
	d, _ := h.open(c)
	writeJSON(c, http.StatusOK, gin.H{"trips": d.MyTrips()})
}

func (h *TravelHandler) CreateTrip(c *gin.Context) {
	var in upstream.CreateTripInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	d, b := h.open(c)
	created, err := b.CreateTrip(c.Request.Context(), in)
	if err != nil {
		h.log.Warn("create trip failed", zap.String("uid", d.UID()), zap.Error(err))
		writeUpstreamError(c, err)
		return
	}
	d.AddMyTrip(created)
	if err := d.RefreshMyTrips(c.Request.Context()); err != nil {
		h.log.Warn("refresh my trips after create", zap.String("uid", d.UID()), zap.Error(err))
	}
	h.save(c, d)
	writeJSON(c, http.StatusCreated, gin.H{"trip": trips.Normalize(created, d.Session())})
}

// EndSession drops the caller's cached directory.
func (h *TravelHandler) EndSession(c *gin.Context) {
	if err := h.manager.Forget(c.Request.Context(), middleware.CallerUID(c)); err != nil {
		h.log.Warn("forget session", zap.String("uid", middleware.CallerUID(c)), zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}
