// Package api is the HTTP surface: device administration and the read-only
// record, trip, and daily-summary endpoints.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"avl-gateway/internal/model"
	"avl-gateway/internal/store"
)

// Store is the slice of the persistence adapter the API consumes.
type Store interface {
	GetDevice(ctx context.Context, imei string) (*model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	CreateDevice(ctx context.Context, dev *model.Device) error
	UpdateDevice(ctx context.Context, imei string, fields map[string]interface{}) (*model.Device, error)
	SetApproved(ctx context.Context, imei string, approved bool) (*model.Device, error)
	DeleteDevice(ctx context.Context, imei string) error

	FindRecent(ctx context.Context, modemType, imei string, limit, skip int64) ([]model.Record, error)
	FindLatest(ctx context.Context, modemType, imei string) (*model.Record, error)
	FindRange(ctx context.Context, modemType, imei, from, to string) ([]model.Record, error)
	FindRaw(ctx context.Context, modemType, imei string, limit int64) ([]model.RawFrame, error)
	CountRecords(ctx context.Context, modemType, imei string) (int64, error)
	CountSince(ctx context.Context, modemType, imei, from string) (int64, error)
}

type Handler struct {
	store  Store
	live   *store.Live
	logger *zap.Logger
	apiKey string
}

func NewHandler(st Store, live *store.Live, apiKey string, logger *zap.Logger) *Handler {
	return &Handler{
		store:  st,
		live:   live,
		logger: logger.With(zap.String("component", "api")),
		apiKey: apiKey,
	}
}

// NewRouter wires all routes. Everything except /health sits behind the
// API-key check.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)

	authed := r.Group("/", h.RequireAPIKey())
	{
		authed.GET("/devices", h.ListDevices)
		authed.POST("/devices", h.CreateDevice)
		authed.GET("/devices/:imei", h.GetDevice)
		authed.PUT("/devices/:imei", h.UpdateDevice)
		authed.PATCH("/devices/:imei/approve", h.ApproveDevice)
		authed.DELETE("/devices/:imei", h.DeleteDevice)

		authed.GET("/devices/:imei/records", h.ListRecords)
		authed.GET("/devices/:imei/latest", h.LatestRecord)
		authed.GET("/devices/:imei/records/range", h.RecordsRange)
		authed.GET("/devices/:imei/raw", h.ListRaw)
		authed.GET("/devices/:imei/stats", h.Stats)
		authed.GET("/devices/:imei/trips", h.Trips)
		authed.GET("/devices/:imei/daily", h.Daily)
		authed.GET("/devices/:imei/daily/:date", h.Daily)
		authed.GET("/devices/:imei/daily-range", h.DailyRange)
	}
	return r
}

// RequireAPIKey enforces the X-API-Key header on every route in the group.
func (h *Handler) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.apiKey == "" || c.GetHeader("X-API-Key") != h.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}
