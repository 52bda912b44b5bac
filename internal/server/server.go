// Package server exposes the engine over HTTP. Routes mirror the narrow
// operations of the engine; all request handling is single-threaded per
// request with no fire-and-forget work.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openprocure/rfp-pilot/internal/ai"
	"github.com/openprocure/rfp-pilot/internal/dispatch"
	"github.com/openprocure/rfp-pilot/internal/intake"
	"github.com/openprocure/rfp-pilot/internal/ranking"
	"github.com/openprocure/rfp-pilot/internal/rfp"
	"github.com/openprocure/rfp-pilot/internal/store"
)

// Config holds the HTTP surface settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Debug          bool
}

type Server struct {
	cfg        Config
	logger     *zap.Logger
	store      *store.Store
	extractor  ai.Extractor
	reconciler *intake.Reconciler
	merger     *ranking.Merger
	dispatcher *dispatch.Dispatcher
}

// Deps aggregates the engine components the HTTP layer fronts.
type Deps struct {
	Store      *store.Store
	Extractor  ai.Extractor
	Reconciler *intake.Reconciler
	Merger     *ranking.Merger
	Dispatcher *dispatch.Dispatcher
	Logger     *zap.Logger
}

func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":4000"
	}

	return &Server{
		cfg:        cfg,
		logger:     deps.Logger,
		store:      deps.Store,
		extractor:  deps.Extractor,
		reconciler: deps.Reconciler,
		merger:     deps.Merger,
		dispatcher: deps.Dispatcher,
	}
}

// Router builds the gin engine with all API routes mounted under /api/v1.
func (s *Server) Router() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/api/v1")
	{
		rfps := v1.Group("/rfps")
		{
			rfps.POST("", s.createRFP)
			rfps.GET("", s.listRFPs)
			rfps.GET("/:id", s.getRFP)
			rfps.PUT("/:id/structured", s.updateRFPStructured)
			rfps.POST("/:id/send", s.sendRFP)
			rfps.GET("/:id/evaluate", s.getEvaluation)
			rfps.POST("/:id/evaluate", s.runEvaluation)
		}

		vendors := v1.Group("/vendors")
		{
			vendors.POST("", s.createVendor)
			vendors.GET("", s.listVendors)
		}

		v1.POST("/email/inbound", s.inbound)
	}

	return router
}

// Run serves the API until the listener fails.
func (s *Server) Run() error {
	s.logger.Info("serving http api", zap.String("addr", s.cfg.Addr))
	return s.Router().Run(s.cfg.Addr)
}

// fail maps engine errors onto HTTP statuses using the domain taxonomy.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var extractionErr *ai.ExtractionError
	var comparisonErr *ai.ComparisonError

	switch {
	case errors.Is(err, rfp.ErrMissingRFPReference):
		status = http.StatusBadRequest
	case errors.Is(err, rfp.ErrUnknownRFP), errors.Is(err, rfp.ErrUnknownVendor):
		status = http.StatusNotFound
	case errors.Is(err, ai.ErrProviderUnavailable):
		status = http.StatusBadGateway
	case errors.As(err, &extractionErr), errors.As(err, &comparisonErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, rfp.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Warn("request rejected", zap.Int("status", status), zap.Error(err))
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
