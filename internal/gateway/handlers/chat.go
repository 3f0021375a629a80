package handlers

import (
	"context"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/agent"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
)

const maxHistory = 20

// Runner answers one agent turn
type Runner interface {
	Run(ctx context.Context, turn agent.Turn) (agent.Result, error)
}

// ChatRequest is the body of POST /v1/chat
type ChatRequest struct {
	Message string          `json:"message"`
	History []agent.Message `json:"history"`
}

func (r ChatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required, validation.Length(1, 4000)),
		validation.Field(&r.History, validation.Length(0, maxHistory), validation.Each(validation.By(validateMessage))),
	)
}

func validateMessage(v any) error {
	m, _ := v.(agent.Message)
	return validation.ValidateStruct(&m,
		validation.Field(&m.Role, validation.Required, validation.In("user", "assistant")),
		validation.Field(&m.Content, validation.Required, validation.Length(1, 8000)),
	)
}

// ChatResponse is the agent's reply and the cost charged for it
type ChatResponse struct {
	Reply            string           `json:"reply"`
	ToolCalls        []string         `json:"tool_calls,omitempty"`
	Usage            usage.TokenUsage `json:"usage"`
	CostUSD          float64          `json:"cost_usd"`
	RemainingDollars *float64         `json:"remaining_dollars"`
}

type ChatHandler struct {
	accountant *usage.Accountant
	agent      Runner
	log        logrus.FieldLogger
}

func NewChatHandler(accountant *usage.Accountant, runner Runner, logger logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{
		accountant: accountant,
		agent:      runner,
		log:        logger,
	}
}

// HandleChat handles POST /v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)

	if h.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "agent not configured")
		return
	}

	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err, nil)
		return
	}

	decision, err := h.accountant.EnsureChatAllowed(ctx, userID)
	if err != nil {
		writeErr(w, err, decision)
		return
	}

	res, runErr := h.agent.Run(ctx, agent.Turn{UserID: userID, Message: req.Message, History: req.History})

	// Tokens of completed rounds are billed even when the turn failed
	cost := h.accountant.RecordChatUsage(context.WithoutCancel(ctx), userID, res.Usage)

	if runErr != nil {
		h.log.WithError(runErr).WithField("user_id", userID).Error("[CHAT] agent turn failed")
		writeError(w, http.StatusBadGateway, "agent failed to answer")
		return
	}

	remaining := decision.RemainingDollars
	if remaining != nil {
		left := max(0, *remaining-cost)
		remaining = &left
	}

	w.Header().Set("X-Cost-USD", fmt.Sprintf("%.6f", cost))
	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:            res.Reply,
		ToolCalls:        res.ToolCalls,
		Usage:            res.Usage,
		CostUSD:          cost,
		RemainingDollars: remaining,
	})
}
