package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs attaches the connection to the hub as a watcher of threadID and
// blocks until the peer goes away.
func ServeWs(hub *Hub, c *websocket.Conn, threadID uuid.UUID, onMessage func([]byte)) {
	client := &Client{Hub: hub, Conn: c, ThreadID: threadID, Send: make(chan []byte, 256), OnMessage: onMessage}
	if !hub.join(client) {
		c.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump()
}
