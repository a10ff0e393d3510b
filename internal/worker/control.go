package worker

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/areimx/faceit-ext-chatbot-service/internal/dataplane/client"
)

// ControlPortBase plus the bot id gives the worker's loopback control
// port; the data-plane derives the same number for fan-out.
const ControlPortBase = 4000

// ControlPort derives the worker's control port and rejects ids that
// would overflow the valid port range.
func ControlPort(botID int) (int, error) {
	port := ControlPortBase + botID
	if botID < 0 || port > 65535 {
		return 0, fmt.Errorf("worker: bot id %d maps outside the port range", botID)
	}
	return port, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// startControlServer binds the loopback control surface. A port
// already in use means another worker owns this bot; failing startup
// here keeps one live worker per bot.
func (w *Worker) startControlServer() (*http.Server, error) {
	port, err := ControlPort(w.botID)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("worker: control port %d: %w", port, err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/assign/:entityId", w.handleAssign)
	r.POST("/unassign/:entityId", w.handleUnassign)
	r.POST("/update/:entityId", w.handleUpdate)
	r.POST("/refresh-preset/:presetId", w.handleRefreshPreset)
	r.GET("/reconnection-state", w.handleReconnectionState)
	r.POST("/exit-process", w.handleExitProcess)

	srv := &http.Server{Handler: r}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("worker %d: control server: %v", w.botID, err)
		}
	}()

	log.Printf("worker %d: control surface on %s", w.botID, addr)
	return srv, nil
}

func (w *Worker) handleAssign(c *gin.Context) {
	entityID := c.Param("entityId")

	var body struct {
		EntityData *client.EntityConfig `json:"entityData"`
	}
	// An empty or malformed body just means "fetch it yourself".
	_ = c.ShouldBindJSON(&body)

	if err := w.Assign(entityID, body.EntityData); err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (w *Worker) handleUnassign(c *gin.Context) {
	w.Unassign(c.Param("entityId"))
	c.Status(http.StatusOK)
}

func (w *Worker) handleUpdate(c *gin.Context) {
	if err := w.Update(c.Param("entityId")); err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (w *Worker) handleRefreshPreset(c *gin.Context) {
	presetID, err := strconv.Atoi(c.Param("presetId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid preset id"})
		return
	}
	if err := w.RefreshPreset(presetID); err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (w *Worker) handleReconnectionState(c *gin.Context) {
	c.JSON(http.StatusOK, w.Diagnostics())
}

func (w *Worker) handleExitProcess(c *gin.Context) {
	c.Status(http.StatusOK)
	log.Printf("worker %d: exit requested via control surface", w.botID)
	go func() {
		time.Sleep(200 * time.Millisecond)
		w.Stop()
	}()
}
