package progress

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// registers them with a Hub. Unlike the energy-simulator's ws.Handler,
// this protocol never reads client messages — there is nothing for a
// training observer to send — so the read loop exists only to detect
// disconnects.
type Handler struct {
	hub *Hub
}

// NewHandler creates a Handler broadcasting through hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("progress: websocket upgrade error: %v", err)
		return
	}

	client := &Client{hub: h.hub, conn: conn, send: make(chan []byte, 256)}
	h.hub.Register(client)
	go client.writePump()

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("progress: websocket read error: %v", err)
			}
			return
		}
	}
}
