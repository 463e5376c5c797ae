package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"archflow/service"
)

type WSController struct {
	Events   *service.EventBus
	upgrader websocket.Upgrader
}

func NewWSController(events *service.EventBus) *WSController {
	return &WSController{
		Events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Feed streams diagram events for one conversation until the client goes
// away. Missed events are not replayed; clients re-query the diagram
// endpoints after reconnecting.
func (w *WSController) Feed(c *gin.Context) {
	conversationId, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return
	}

	conn, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[%s] websocket upgrade error, %s", c.GetString("requestId"), err)
		return
	}
	defer conn.Close()

	events, cancel := w.Events.Subscribe(conversationId)
	defer cancel()

	// drain client frames so close is noticed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			if err := conn.WriteJSON(event); err != nil {
				logger.Warnf("[%s] websocket write error, %s", c.GetString("requestId"), err)
				return
			}
		case <-done:
			return
		}
	}
}
