package controller

import (
	"db-agent-be/internal/dto"
	"db-agent-be/internal/pkg/serverutils"
	"db-agent-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAuditController interface {
	RegisterRoutes(r fiber.Router)
	Turns(ctx *fiber.Ctx) error
}

type auditController struct {
	service service.IAuditService
}

func NewAuditController(service service.IAuditService) IAuditController {
	return &auditController{service: service}
}

func (c *auditController) RegisterRoutes(r fiber.Router) {
	r.Get("/turns", c.Turns)
}

// Turns lists audited chat turns, newest first.
// Query: session_id, limit (1-100, default 20), offset.
func (c *auditController) Turns(ctx *fiber.Ctx) error {
	var q dto.TurnHistoryQuery
	if err := ctx.QueryParser(&q); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid query parameters"))
	}
	if err := serverutils.ValidateRequest(&q); err != nil {
		return err
	}

	records, err := c.service.Recent(q)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Turns retrieved", records))
}
