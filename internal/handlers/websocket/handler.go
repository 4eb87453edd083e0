package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/voxline/voxline/internal/config"
	"github.com/voxline/voxline/internal/relay"
	"github.com/voxline/voxline/pkg/Logger"
	"github.com/voxline/voxline/pkg/speech"
)

// WebSocketHandler upgrades voice connections and hands each one to its own
// relay session. Collaborators are process-wide; everything else is
// per-connection.
type WebSocketHandler struct {
	logger            *Logger.Logger
	config            *config.Settings
	collaborators     relay.Collaborators
	connectionManager *ConnectionManager
	upgrader          websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	logger *Logger.Logger,
	cfg *config.Settings,
	collaborators relay.Collaborators,
) *WebSocketHandler {
	return &WebSocketHandler{
		logger:            logger,
		config:            cfg,
		collaborators:     collaborators,
		connectionManager: NewConnectionManager(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: Implement proper origin checking for production
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router gin.IRouter) {
	ws := router.Group("/ws")
	{
		ws.GET("", h.HandleVoiceWebSocket)
		ws.GET("/stats", h.HandleStats)
	}
}

// HandleVoiceWebSocket upgrades the connection and runs the relay session on
// the request goroutine until the client disconnects or sends a stop command.
func (h *WebSocketHandler) HandleVoiceWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	session := relay.NewSession(conn, h.collaborators, h.sessionOptions(), h.logger.Named("session"))

	h.connectionManager.Register(session)
	defer h.connectionManager.Unregister(session.ID())

	h.logger.Infof("Voice session %s connected from %s", session.ID(), c.ClientIP())
	session.Run(c.Request.Context())
}

// HandleStats provides connection statistics
func (h *WebSocketHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   h.connectionManager.GetStats(),
	})
}

func (h *WebSocketHandler) sessionOptions() relay.Options {
	return relay.Options{
		Stream: speech.StreamConfig{
			SampleRate:     h.config.Speech.SampleRate,
			Language:       h.config.Speech.Language,
			InterimResults: h.config.Speech.InterimResults,
		},
		IngressCapacity:   h.config.Relay.IngressCapacity,
		TakeTimeout:       h.config.Relay.TakeTimeout,
		SendPoll:          h.config.Relay.SendPoll,
		WorkerJoinTimeout: h.config.Relay.WorkerJoinTimeout,
		GenerationTimeout: h.config.Generation.CallTimeout,
	}
}
