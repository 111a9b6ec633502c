package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/handover-bot/internal/api/dto"
	"github.com/spec-kit/handover-bot/internal/service"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

// TokenHandler issues ops API tokens to admins.
type TokenHandler struct {
	directory *service.DirectoryService
}

// NewTokenHandler constructs handler.
func NewTokenHandler(directory *service.DirectoryService) *TokenHandler {
	return &TokenHandler{directory: directory}
}

// Issue handles POST /auth/token.
func (h *TokenHandler) Issue(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.UserID == 0 || req.Secret == "" {
		return apperrors.NewValidationError("user_id and secret required", nil)
	}

	token, exp, err := h.directory.IssueToken(c.UserContext(), req.UserID, req.Secret)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{Token: token, ExpiresAt: exp}})
}
