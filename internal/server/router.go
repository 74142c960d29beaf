package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/auth"
	"github.com/MarcoPoloResearchLab/drawsync/internal/drawsync"
	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	adminSubjectContextKey = "drawsync_admin_subject"
	triggerHTTP            = "http"
	accessTokenQueryParam  = "access_token"
)

var (
	errMissingSyncService = errors.New("sync service dependency required")
	errMissingValidator   = errors.New("admin validator dependency required")
	errMissingHealthCheck = errors.New("health check dependency required")
)

// SyncService is the orchestrator surface exposed over HTTP.
type SyncService interface {
	SyncGame(ctx context.Context, game lottery.Game, trigger string) (drawsync.GameResult, error)
	SyncAll(ctx context.Context, trigger string) (drawsync.AllResult, error)
	Status(ctx context.Context, reference lottery.Date) (drawsync.StatusReport, error)
	ListDraws(ctx context.Context, game lottery.Game, query drawsync.DrawQuery) ([]drawsync.Draw, error)
	ListRuns(ctx context.Context, game lottery.Game, limit int) ([]drawsync.SyncRun, error)
}

type AdminTokenValidator interface {
	ValidateRequest(r *http.Request) (auth.AdminClaims, error)
	ValidateToken(token string) (auth.AdminClaims, error)
}

// RunSubscriber streams finished runs of one game.
type RunSubscriber interface {
	Subscribe(ctx context.Context, game lottery.Game) (<-chan drawsync.RunEvent, func())
}

type Dependencies struct {
	SyncService       SyncService
	Validator         AdminTokenValidator
	Events            RunSubscriber
	HealthCheck       func(ctx context.Context) error
	MetricsHandler    http.Handler
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SyncService == nil {
		return nil, errMissingSyncService
	}
	if deps.Validator == nil {
		return nil, errMissingValidator
	}
	if deps.HealthCheck == nil {
		return nil, errMissingHealthCheck
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sync:      deps.SyncService,
		validator: deps.Validator,
		events:    deps.Events,
		health:    deps.HealthCheck,
		clock:     clock,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/sync", handler.handleSyncAll)
	protected.POST("/sync/:game", handler.handleSyncGame)
	protected.GET("/status", handler.handleStatus)
	protected.GET("/games/:game/draws", handler.handleListDraws)
	protected.GET("/games/:game/runs", handler.handleListRuns)
	if deps.Events != nil {
		protected.GET("/events/:game", handler.handleEventStream)
	}
	if deps.MetricsHandler != nil {
		protected.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	sync      SyncService
	validator AdminTokenValidator
	events    RunSubscriber
	health    func(ctx context.Context) error
	clock     func() time.Time
	heartbeat time.Duration
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.health(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleSyncAll(c *gin.Context) {
	result, err := h.sync.SyncAll(c.Request.Context(), triggerHTTP)
	if err != nil {
		h.logger.Warn("sync all aborted", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync_aborted"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleSyncGame(c *gin.Context) {
	game, ok := h.gameParam(c)
	if !ok {
		return
	}
	result, err := h.sync.SyncGame(c.Request.Context(), game, triggerHTTP)
	if err != nil {
		if errors.Is(err, drawsync.ErrGameNotConfigured) {
			c.JSON(http.StatusNotFound, gin.H{"error": "game_not_configured"})
			return
		}
		h.logger.Warn("game sync aborted", zap.String("game", game.String()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync_aborted"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	reference := lottery.DateOf(h.clock())
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := lottery.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
			return
		}
		reference = parsed
	}

	report, err := h.sync.Status(c.Request.Context(), reference)
	if err != nil {
		h.logger.Error("failed to build status report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

type drawPayload struct {
	Date   lottery.Date `json:"date"`
	Main   []int        `json:"main"`
	Bonus  []int        `json:"bonus"`
	Source string       `json:"source"`
}

type drawsResponsePayload struct {
	Game  lottery.Game  `json:"game"`
	Draws []drawPayload `json:"draws"`
}

func (h *httpHandler) handleListDraws(c *gin.Context) {
	game, ok := h.gameParam(c)
	if !ok {
		return
	}
	var query drawsync.DrawQuery
	for param, target := range map[string]*lottery.Date{"from": &query.From, "to": &query.To} {
		raw := strings.TrimSpace(c.Query(param))
		if raw == "" {
			continue
		}
		parsed, err := lottery.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
			return
		}
		*target = parsed
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	query.Limit = limit

	draws, err := h.sync.ListDraws(c.Request.Context(), game, query)
	if err != nil {
		h.logger.Error("failed to list draws", zap.String("game", game.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}

	response := drawsResponsePayload{Game: game, Draws: make([]drawPayload, 0, len(draws))}
	for _, draw := range draws {
		response.Draws = append(response.Draws, drawPayload{
			Date:   draw.DrawDate,
			Main:   []int(draw.MainNumbers),
			Bonus:  []int(draw.BonusNumbers),
			Source: draw.Source,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListRuns(c *gin.Context) {
	game, ok := h.gameParam(c)
	if !ok {
		return
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	runs, err := h.sync.ListRuns(c.Request.Context(), game, limit)
	if err != nil {
		h.logger.Error("failed to list runs", zap.String("game", game.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"game": game, "runs": runs})
}

// authorizeRequest prefers the bearer header; GET requests may carry the token as a query parameter instead.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if errors.Is(err, auth.ErrMissingAdminToken) && c.Request.Method == http.MethodGet {
		if token := strings.TrimSpace(c.Query(accessTokenQueryParam)); token != "" {
			claims, err = h.validator.ValidateToken(token)
		}
	}
	if errors.Is(err, auth.ErrMissingAdminToken) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		if errors.Is(err, auth.ErrExpiredAdminToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrForbiddenAdminRole) {
			status = http.StatusForbidden
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminSubjectContextKey, claims.Subject)
	c.Next()
}

func (h *httpHandler) gameParam(c *gin.Context) (lottery.Game, bool) {
	game, err := lottery.ParseGame(c.Param("game"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_game"})
		return "", false
	}
	return game, true
}

func limitParam(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		return 0, false
	}
	return limit, true
}
