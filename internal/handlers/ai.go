package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/example/marketplace/internal/dispatch"
	"github.com/example/marketplace/internal/middleware"
	"github.com/example/marketplace/internal/services"
)

// Conversation answers a natural-language message with an API call.
type Conversation interface {
	Converse(ctx context.Context, identity *services.Identity, message string) (dispatch.Response, error)
}

// AIHandler serves the assistant endpoint.
type AIHandler struct {
	bridge Conversation
}

// NewAIHandler constructs AIHandler.
func NewAIHandler(bridge Conversation) *AIHandler {
	return &AIHandler{bridge: bridge}
}

type conversationRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// Converse routes the message through the dispatch table and renders the
// selected endpoint's response.
func (h *AIHandler) Converse(c *fiber.Ctx) error {
	var req conversationRequest
	if err := bodyOf(c, &req); err != nil {
		return err
	}

	var identity *services.Identity
	if id, ok := middleware.CurrentIdentity(c); ok {
		identity = &id
	}

	res, err := h.bridge.Converse(c.UserContext(), identity, req.Message)
	if err != nil {
		return err
	}
	return Render(c, res)
}
