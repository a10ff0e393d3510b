package dataplane

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Notifier is the worker fan-out surface the handlers depend on.
type Notifier interface {
	Notify(botID int, path string, body []byte) error
	Broadcast(botIDs []int, path string)
}

type Handler struct {
	service  *Service
	tokens   *TokenService
	notifier Notifier
}

func NewHandler(service *Service, tokens *TokenService, notifier Notifier) *Handler {
	return &Handler{service: service, tokens: tokens, notifier: notifier}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ActiveBots(c *gin.Context) {
	bots, err := h.service.ActiveBots()
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, bots)
}

func (h *Handler) BotConfig(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid bot id"})
		return
	}
	force := c.Query("force") == "1"

	bot, err := h.service.BotByID(botID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "bot not found"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	if err := h.tokens.MaybeRefresh(bot, force); err != nil {
		// A throttled or failed refresh still serves the stored token;
		// the worker decides whether it can authenticate with it.
		log.Printf("dataplane: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"bot_guid":  bot.Guid,
		"bot_token": bot.AccessToken,
		"nickname":  bot.Nickname,
	})
}

func (h *Handler) BotEntities(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid bot id"})
		return
	}
	entities, err := h.service.BotEntities(botID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, entities)
}

func (h *Handler) EntityData(c *gin.Context) {
	cfg, err := h.service.EntityData(c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "entity not found"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// notifyOwner forwards a control-plane change to the worker owning the
// entity: 200 when delivered, 202 when the worker will catch up on its
// next reconcile.
func (h *Handler) notifyOwner(c *gin.Context, entityGuid, path string, body []byte) {
	botID, err := h.service.EntityOwner(entityGuid)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "entity not assigned"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	if err := h.notifier.Notify(botID, path, body); err != nil {
		log.Printf("dataplane: %v", err)
		c.JSON(http.StatusAccepted, MessageResponse{Message: "worker not notified, will reconcile"})
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
}

func (h *Handler) EntityUpdate(c *gin.Context) {
	id := c.Param("id")
	h.notifyOwner(c, id, "/update/"+id, nil)
}

func (h *Handler) EntityAssign(c *gin.Context) {
	id := c.Param("id")
	body, _ := io.ReadAll(c.Request.Body)
	h.notifyOwner(c, id, "/assign/"+id, body)
}

func (h *Handler) EntityUnassign(c *gin.Context) {
	id := c.Param("id")
	h.notifyOwner(c, id, "/unassign/"+id, nil)
}

type entityStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// EntityStatus persists a status flip. Workers post "inactive" here
// when the upstream reports a room gone; the dashboard uses it too.
func (h *Handler) EntityStatus(c *gin.Context) {
	id := c.Param("id")

	var req entityStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	err := h.service.SetEntityStatus(id, req.Status)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "entity not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
}

func (h *Handler) Preset(c *gin.Context) {
	presetID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid preset id"})
		return
	}
	preset, err := h.service.Preset(presetID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "preset not found"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, preset)
}

// PresetRefresh fans the refreshed preset out to every active worker.
func (h *Handler) PresetRefresh(c *gin.Context) {
	presetID := c.Param("id")
	if _, err := strconv.Atoi(presetID); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid preset id"})
		return
	}

	bots, err := h.service.ActiveBots()
	if err != nil {
		h.internalError(c, err)
		return
	}
	ids := make([]int, 0, len(bots))
	for _, b := range bots {
		ids = append(ids, b.BotID)
	}

	go h.notifier.Broadcast(ids, "/refresh-preset/"+presetID)
	c.JSON(http.StatusOK, MessageResponse{Message: "refresh dispatched"})
}

func (h *Handler) ProfanityConfig(c *gin.Context) {
	cfg, err := h.service.ProfanityConfig(c.Param("entityId"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "profanity config not found"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) internalError(c *gin.Context, err error) {
	log.Printf("dataplane: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
