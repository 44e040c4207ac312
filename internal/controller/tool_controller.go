package controller

import (
	"sort"

	"db-agent-be/internal/dto"
	"db-agent-be/internal/pkg/serverutils"
	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/tools"

	"github.com/gofiber/fiber/v2"
)

type IToolController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	Call(ctx *fiber.Ctx) error
}

type toolController struct {
	toolbox *tools.Toolbox
}

func NewToolController(toolbox *tools.Toolbox) IToolController {
	return &toolController{toolbox: toolbox}
}

func (c *toolController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/tools")
	h.Get("/", c.List)
	h.Post("/:name", c.Call)
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *toolController) List(ctx *fiber.Ctx) error {
	reg := c.toolbox.Registry()
	out := make([]toolInfo, 0, len(reg))
	for name, t := range reg {
		out = append(out, toolInfo{Name: name, Description: t.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return ctx.JSON(serverutils.SuccessResponse("Available tools", out))
}

// Call runs one tool directly. Tool failures are part of the output text;
// only an unknown tool name is an HTTP error.
func (c *toolController) Call(ctx *fiber.Ctx) error {
	var req dto.ToolCallRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
		}
	}

	name := ctx.Params("name")
	out, err := c.toolbox.Call(ctx.UserContext(), name, req.Input)
	if err != nil {
		if apperrors.Is(err, apperrors.Lookup) {
			return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, apperrors.Message(err, "Unknown tool")))
		}
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Tool executed", dto.ToolCallResponse{Tool: name, Output: out}))
}
