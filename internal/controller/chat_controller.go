package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"db-agent-be/internal/dto"
	"db-agent-be/internal/pkg/logger"
	"db-agent-be/internal/pkg/serverutils"
	"db-agent-be/internal/service"

	internalWS "db-agent-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	ChatSocket(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewChatController(service service.IChatService, hub *internalWS.Hub, logger logger.ILogger) IChatController {
	return &chatController{service: service, hub: hub, logger: logger}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	r.Post("/chat", c.Chat)
	r.Get("/ws/chat", c.ChatSocket)
	r.Get("/health", c.Health)
}

func (c *chatController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(dto.HealthResponse{Status: "healthy"})
}

// Chat streams the answer as Server-Sent Events, one JSON frame per chunk.
func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	req.Normalize()

	if err := serverutils.ValidateRequest(&req); err != nil {
		return err
	}

	ctx.Set("Content-Type", "text/event-stream")
	ctx.Set("Cache-Control", "no-cache")
	ctx.Set("Connection", "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	// The fasthttp request context is not cancelled when the client goes
	// away, so the turn gets its own and the writer cancels it on failure.
	turnCtx, cancel := context.WithCancel(context.Background())
	chunks := c.service.Stream(turnCtx, &req)

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for chunk := range chunks {
			if err := WriteFrame(w, dto.NewStreamFrame(chunk)); err != nil {
				c.logger.Warn("CHAT", "Client disconnected", map[string]interface{}{"error": err.Error()})
				return
			}
		}
	})
	return nil
}

// ChatSocket serves the same frames over a WebSocket, one JSON text message
// per chunk. The identity comes from the user_id and session_id query params.
func (c *chatController) ChatSocket(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		userID := conn.Query("user_id", dto.DefaultUserID)
		sessionID := conn.Query("session_id", dto.DefaultSessionID)

		c.logger.Info("CHAT", "Starting WebSocket session", map[string]interface{}{"user_id": userID, "session_id": sessionID})
		internalWS.ServeWs(c.hub, conn, c.service, userID, sessionID)
		c.logger.Info("CHAT", "WebSocket session ended", map[string]interface{}{"user_id": userID, "session_id": sessionID})
	})(ctx)
}

// WriteFrame writes one `data: <json>` frame and flushes it.
func WriteFrame(w *bufio.Writer, frame dto.StreamFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
