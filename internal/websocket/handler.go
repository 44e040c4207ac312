package websocket

import (
	"context"

	"db-agent-be/internal/service"

	"github.com/gofiber/websocket/v2"
)

// ServeWs runs one chat connection until the peer or the hub closes it.
func ServeWs(hub *Hub, conn *websocket.Conn, svc service.IChatService, userID, sessionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:       hub,
		conn:      conn,
		service:   svc,
		userID:    userID,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan inbound, pendingTurns),
		wake:      make(chan struct{}, 1),
		send:      make(chan []byte, 16),
	}
	if !hub.add(client) {
		cancel()
		return
	}

	// The connection is released when the handler returns, so wait for the
	// writer before leaving.
	written := make(chan struct{})
	go func() {
		client.writePump()
		close(written)
	}()
	go client.turnPump()
	client.readPump()
	<-written
}
