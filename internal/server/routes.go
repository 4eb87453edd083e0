package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxline/voxline/internal/app"
	wshandler "github.com/voxline/voxline/internal/handlers/websocket"
	"github.com/voxline/voxline/web"
)

// InitializeRoutes wires the HTTP surface: the embedded browser client on /,
// the voice websocket and its stats under /ws, and a health endpoint.
func InitializeRoutes(r *gin.Engine, a *app.App) {
	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", web.ClientHTML)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ws := wshandler.NewWebSocketHandler(a.Logger.Named("ws"), a.Config, a.Collaborators)
	ws.RegisterRoutes(r)
}
