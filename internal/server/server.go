// Package server exposes the running tracker over a local HTTP API.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/keyrace/internal/model"
	"github.com/verte-zerg/keyrace/internal/stats"
)

// Tracker is the part of the tracker served over HTTP.
type Tracker interface {
	Snapshot() model.Counters
	Views() model.DerivedViews
	ViewsNow() model.DerivedViews
	Players() []model.Player
	Status() model.Status
	SetVisibilityFilter(ctx context.Context, onlyFollows bool) error
	Sync()
}

// Service serves the local API.
type Service struct {
	addr    string
	tracker Tracker

	router *gin.Engine
	server *http.Server
}

// CountResponse is returned by GET /api/v1/count.
type CountResponse struct {
	Day        string    `json:"day"`
	Total      uint64    `json:"total"`
	Title      string    `json:"title"`
	LastUpdate time.Time `json:"last_update"`
}

// FilterRequest is the body of PUT /api/v1/filter.
type FilterRequest struct {
	OnlyFollows *bool `json:"only_follows"`
}

// New builds the router. Metrics are served from gatherer when it is not nil.
func New(addr string, tracker Tracker, gatherer prometheus.Gatherer) *Service {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if err := router.SetTrustedProxies(nil); err != nil {
		log.Err(err).Msg("failed to set trusted proxies")
	}
	router.Use(
		gin.Recovery(),
		gin.LoggerWithWriter(log.Logger, "/health", "/metrics"),
	)

	s := &Service{
		addr:    addr,
		tracker: tracker,
		router:  router,
	}
	s.initRouter(gatherer)
	return s
}

func (s *Service) initRouter(gatherer prometheus.Gatherer) {
	s.router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	api := s.router.Group("/api/v1")
	{
		api.GET("/count", s.handleCount)
		api.GET("/views", s.handleViews)
		api.GET("/players", s.handlePlayers)
		api.GET("/status", s.handleStatus)
		api.PUT("/filter", s.handleFilter)
		api.POST("/sync", s.handleSync)
	}
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is done, then shuts down.
func (s *Service) Serve(ctx context.Context, l net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(l)
	}()
	log.Info().Str("addr", l.Addr().String()).Msg("HTTP server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Debug().Err(err).Msg("failed to shut down HTTP server")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Service) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

func (s *Service) handleCount(c *gin.Context) {
	counters := s.tracker.Snapshot()
	c.JSON(http.StatusOK, CountResponse{
		Day:        counters.LastDay.String(),
		Total:      counters.Total,
		Title:      stats.FormatCount(counters.Total),
		LastUpdate: counters.LastUpdate,
	})
}

// handleViews returns the views computed at the last sync. ?live=1 projects
// the current counters instead.
func (s *Service) handleViews(c *gin.Context) {
	if isTrue(c.Query("live")) {
		c.JSON(http.StatusOK, s.tracker.ViewsNow())
		return
	}
	c.JSON(http.StatusOK, s.tracker.Views())
}

func (s *Service) handlePlayers(c *gin.Context) {
	players := s.tracker.Players()
	if players == nil {
		players = []model.Player{}
	}
	c.JSON(http.StatusOK, players)
}

func (s *Service) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Status())
}

func (s *Service) handleFilter(c *gin.Context) {
	var req FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}
	if req.OnlyFollows == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only_follows is required"})
		return
	}
	if err := s.tracker.SetVisibilityFilter(c.Request.Context(), *req.OnlyFollows); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "filter not persisted", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"only_follows": *req.OnlyFollows})
}

func (s *Service) handleSync(c *gin.Context) {
	s.tracker.Sync()
	c.Status(http.StatusAccepted)
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}
