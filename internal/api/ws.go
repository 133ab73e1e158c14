package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// runProgress is one pipeline stage transition pushed to websocket clients
type runProgress struct {
	RunID uint   `json:"run_id"`
	Stage string `json:"stage"`
	Time  string `json:"time"`
}

type progressHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func newProgressHub() *progressHub {
	return &progressHub{conns: make(map[*websocket.Conn]bool)}
}

func (hub *progressHub) add(conn *websocket.Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.conns[conn] = true
}

func (hub *progressHub) remove(conn *websocket.Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.conns[conn] {
		delete(hub.conns, conn)
		conn.Close()
	}
}

func (hub *progressHub) broadcast(msg runProgress) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for conn := range hub.conns {
		if err := conn.WriteJSON(msg); err != nil {
			delete(hub.conns, conn)
			conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PredictProgressWS: GET /ws/predict - streams run progress events
func (h *APIHandler) PredictProgressWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	h.hub.add(conn)

	// 只推送不接收；读循环用于感知客户端断开
	go func() {
		defer h.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
