// README: API gateway; registers gin routes behind CORS and delegates to handlers.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"tripmate/internal/http/handlers"
	"tripmate/internal/http/middleware"
	"tripmate/internal/infra"
	"tripmate/internal/modules/directory"
	"tripmate/internal/modules/matching"
)

type ServerDeps struct {
	Manager  *directory.Manager
	Matching *matching.Service
	// History is nil when the journal is disabled.
	History      handlers.History
	Backend      handlers.BackendFactory
	Verifier     infra.TokenVerifier
	Log          *zap.Logger
	CORSOrigins  []string
	FeedPageSize int
}

type Server struct {
	travel   *handlers.TravelHandler
	match    *handlers.MatchHandler
	verifier infra.TokenVerifier
	log      *zap.Logger
	origins  []string
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		travel:   handlers.NewTravelHandler(deps.Manager, deps.Backend, deps.FeedPageSize, log),
		match:    handlers.NewMatchHandler(deps.Matching, deps.Manager, deps.Backend, deps.History, log),
		verifier: deps.Verifier,
		log:      log,
		origins:  origins,
	}
}

// Engine returns the gin router without CORS.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api/travel", middleware.Auth(s.verifier))
	api.POST("/refresh", s.travel.Refresh)
	api.GET("/plans", s.travel.Plans)
	api.GET("/feed", s.travel.Feed)
	api.POST("/search", s.travel.Search)
	api.DELETE("/search", s.travel.ClearSearch)
	api.GET("/my-trips", s.travel.MyTrips)
	api.POST("/trips", s.travel.CreateTrip)
	api.DELETE("/session", s.travel.EndSession)

	api.GET("/matches", s.match.List)
	api.POST("/matches", s.match.Request)
	api.GET("/matches/history", s.match.History)
	api.POST("/matches/:id/accept", s.match.Accept)
	api.POST("/matches/:id/reject", s.match.Reject)
	return r
}

func (s *Server) Routes() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		// Callers authenticate with a bearer header, never cookies.
		AllowCredentials: false,
	}).Handler(s.Engine())
}
