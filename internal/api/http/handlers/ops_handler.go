package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/handover-bot/internal/api/dto"
	"github.com/spec-kit/handover-bot/internal/service"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

// OpsHandler exposes operator views of the handover state.
type OpsHandler struct {
	escalation *service.EscalationService
	directory  *service.DirectoryService
}

// NewOpsHandler constructs handler.
func NewOpsHandler(escalation *service.EscalationService, directory *service.DirectoryService) *OpsHandler {
	return &OpsHandler{escalation: escalation, directory: directory}
}

// Queue handles GET /ops/queue.
func (h *OpsHandler) Queue(c *fiber.Ctx) error {
	state, err := h.escalation.Snapshot(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewQueueResponse(state)})
}

// Admins handles GET /ops/admins.
func (h *OpsHandler) Admins(c *fiber.Ctx) error {
	admins, err := h.directory.Admins(c.UserContext())
	if err != nil {
		return err
	}
	resp := make([]dto.UserResponse, 0, len(admins))
	for _, a := range admins {
		resp = append(resp, dto.NewUserResponse(a))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// EndDialog handles DELETE /ops/dialogs/:participant_id.
func (h *OpsHandler) EndDialog(c *fiber.Ctx) error {
	participantID, err := strconv.ParseInt(c.Params("participant_id"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("invalid participant id", nil)
	}

	ended, err := h.escalation.EndDialog(c.UserContext(), participantID)
	if err != nil {
		return err
	}
	if !ended {
		return apperrors.NewNotFound("dialog", map[string]any{"participant_id": participantID})
	}
	return c.SendStatus(http.StatusNoContent)
}
