// Package agent talks to the upstream conversational agent that answers
// users and decides when a human is needed.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/handover-bot/internal/domain"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

// Reply is the agent's answer to one user message.
type Reply struct {
	Text              string   `json:"reply"`
	HandoverRequested bool     `json:"handover"`
	Context           []string `json:"context"`
}

// Agent answers a user message given the prior conversation.
type Agent interface {
	Handle(ctx context.Context, userID int64, history []domain.Turn, message string) (Reply, error)
}

type handleRequest struct {
	UserID  int64         `json:"user_id"`
	Message string        `json:"message"`
	History []domain.Turn `json:"history"`
}

// HTTPAgent calls an agent service exposing POST <url> with a JSON body.
type HTTPAgent struct {
	url     string
	apiKey  string
	timeout time.Duration
}

// NewHTTPAgent builds a client for the agent endpoint.
func NewHTTPAgent(url, apiKey string, timeout time.Duration) *HTTPAgent {
	return &HTTPAgent{url: url, apiKey: apiKey, timeout: timeout}
}

func (a *HTTPAgent) Handle(ctx context.Context, userID int64, history []domain.Turn, message string) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, apperrors.NewUpstreamUnavailable("agent", err)
	}
	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}

	req := fiber.Post(a.url)
	if a.apiKey != "" {
		req.Set(fiber.HeaderAuthorization, "Bearer "+a.apiKey)
	}
	if timeout > 0 {
		req.Timeout(timeout)
	}
	req.JSON(handleRequest{UserID: userID, Message: message, History: history})
	if err := req.Parse(); err != nil {
		fiber.ReleaseAgent(req)
		return Reply{}, apperrors.NewUpstreamUnavailable("agent", err)
	}

	code, body, errs := req.Bytes()
	if len(errs) > 0 {
		return Reply{}, apperrors.NewUpstreamUnavailable("agent", errs[0])
	}
	if code < 200 || code >= 300 {
		return Reply{}, apperrors.NewUpstreamUnavailable("agent", fmt.Errorf("status %d", code))
	}

	var reply Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return Reply{}, apperrors.NewUpstreamUnavailable("agent", err)
	}
	return reply, nil
}
