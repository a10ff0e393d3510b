package dataplane

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/areimx/faceit-ext-chatbot-service/internal/middleware"
)

// NewRouter wires the full data-plane HTTP surface. An empty apiKey
// leaves the surface open, matching a private-network deployment.
func NewRouter(h *Handler, apiKey string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/health", h.Health)

	api := r.Group("/")
	api.Use(middleware.APIKeyAuth(apiKey))
	{
		api.GET("/bots/active", h.ActiveBots)
		api.GET("/bots/:id/config", h.BotConfig)
		api.GET("/bots/:id/entities", h.BotEntities)

		api.GET("/entities/:id/data", h.EntityData)
		api.POST("/entities/:id/update", h.EntityUpdate)
		api.POST("/entities/:id/assign", h.EntityAssign)
		api.POST("/entities/:id/unassign", h.EntityUnassign)
		api.POST("/entities/:id/status", h.EntityStatus)

		api.GET("/profanity-filter-presets/:id", h.Preset)
		api.POST("/profanity-filter-presets/:id/refresh", h.PresetRefresh)
		api.GET("/profanity-filter-config/:entityId", h.ProfanityConfig)
	}

	return r
}
