package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"db-agent-be/internal/dto"
	"db-agent-be/internal/pkg/serverutils"
	"db-agent-be/internal/service"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024

	// Questions sent while a turn is running wait here.
	pendingTurns = 4

	overflowReason = "Too many questions in flight, wait for the current answer"
)

// inbound is a queued question, or the reason it was refused.
type inbound struct {
	req    dto.ChatRequest
	reject string
}

// Client is one chat connection. Questions arrive as ChatRequest JSON text
// messages and are answered one at a time, each answer ending with a
// complete frame. Only turnPump produces frame sequences, so a refusal never
// lands inside an answer.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	service service.IChatService

	userID    string
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc

	inbox    chan inbound
	overflow atomic.Int32
	wake     chan struct{}
	send     chan []byte
}

// readPump reads questions until the peer goes away, then stops the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.cancel()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("WS", "Read failed", map[string]interface{}{"session_id": c.sessionID, "error": err.Error()})
			}
			return
		}

		in := c.decode(data)
		select {
		case c.inbox <- in:
		case <-c.ctx.Done():
			return
		default:
			c.overflow.Add(1)
			select {
			case c.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (c *Client) decode(data []byte) inbound {
	req := dto.ChatRequest{UserID: c.userID, SessionID: c.sessionID}
	if err := json.Unmarshal(data, &req); err != nil {
		return inbound{reject: "Invalid request body"}
	}
	req.Normalize()
	if err := serverutils.ValidateRequest(&req); err != nil {
		return inbound{reject: err.Error()}
	}
	return inbound{req: req}
}

// turnPump answers queued questions in order. Refusals are answered between
// turns.
func (c *Client) turnPump() {
	for {
		for n := c.overflow.Swap(0); n > 0; n-- {
			if !c.reject(overflowReason) {
				return
			}
		}

		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		case in := <-c.inbox:
			if in.reject != "" {
				if !c.reject(in.reject) {
					return
				}
				continue
			}
			for chunk := range c.service.Stream(c.ctx, &in.req) {
				if !c.enqueue(dto.NewStreamFrame(chunk)) {
					return
				}
			}
		}
	}
}

// writePump writes frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// reject answers an invalid question with its reason and a complete frame.
func (c *Client) reject(reason string) bool {
	return c.enqueue(dto.StreamFrame{Text: reason}) && c.enqueue(dto.StreamFrame{Complete: true})
}

func (c *Client) enqueue(frame dto.StreamFrame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.ctx.Done():
		return false
	}
}
