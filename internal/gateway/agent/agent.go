// Package agent runs the prospecting assistant: a bounded tool-calling
// loop over the company directory, the user's profile and the web.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
)

const systemPrompt = `You are a B2B prospecting assistant for salespeople selling to Peruvian companies.
Use the tools to look up companies in the directory (by name, RUC, sector or location),
to read the salesperson's own profile, and to check the public web for recent news.
Ground every claim about a company in tool output. Cite RUCs when you mention companies.
Answer in the language the user writes in. Be concise.`

// ErrNoChoices is returned when the model returns an empty completion
var ErrNoChoices = errors.New("model returned no choices")

// Message is one prior exchange in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is one user message plus the conversation so far
type Turn struct {
	UserID  string
	Message string
	History []Message
}

// Result is the agent's reply and what producing it cost
type Result struct {
	Reply     string           `json:"reply"`
	ToolCalls []string         `json:"tool_calls,omitempty"`
	Rounds    int              `json:"rounds"`
	Usage     usage.TokenUsage `json:"usage"`
}

// Options tunes an Agent
type Options struct {
	Model         string
	MaxToolRounds int
	Logger        logrus.FieldLogger
}

// Agent answers prospecting questions
type Agent struct {
	completer Completer
	tools     *Toolbox
	model     string
	maxRounds int
	log       logrus.FieldLogger
}

// New creates an agent
func New(completer Completer, tools *Toolbox, opts Options) *Agent {
	if opts.Model == "" {
		opts.Model = usage.DefaultModel
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 5
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Agent{
		completer: completer,
		tools:     tools,
		model:     opts.Model,
		maxRounds: opts.MaxToolRounds,
		log:       opts.Logger,
	}
}

// Model is the chat model the agent calls
func (a *Agent) Model() string {
	return a.model
}

// Run answers one turn. The model may call tools for up to MaxToolRounds
// rounds; after that it must answer without them. On error the returned
// Result still carries the usage of the rounds that completed.
func (a *Agent) Run(ctx context.Context, turn Turn) (Result, error) {
	started := time.Now()
	logger := a.log.WithField("user_id", turn.UserID)

	msgs := make([]openai.ChatCompletionMessage, 0, len(turn.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, m := range turn.History {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.Message})

	res := Result{Usage: usage.TokenUsage{Model: a.model}}
	tools := a.tools.Definitions()

	for round := 0; ; round++ {
		req := openai.ChatCompletionRequest{
			Model:    a.model,
			Messages: msgs,
			Tools:    tools,
		}
		if round >= a.maxRounds {
			req.ToolChoice = "none"
		}

		resp, err := a.completer.CreateChatCompletion(ctx, req)
		if err != nil {
			return res, fmt.Errorf("completion round %d: %w", round+1, err)
		}
		res.Rounds++
		res.Usage.InputTokens += int64(resp.Usage.PromptTokens)
		res.Usage.OutputTokens += int64(resp.Usage.CompletionTokens)
		res.Usage.TotalTokens += int64(resp.Usage.TotalTokens)
		if resp.Model != "" {
			res.Usage.Model = resp.Model
		}

		if len(resp.Choices) == 0 {
			return res, ErrNoChoices
		}
		msg := resp.Choices[0].Message

		if len(msg.ToolCalls) == 0 || round >= a.maxRounds {
			res.Reply = msg.Content
			break
		}

		msgs = append(msgs, msg)
		for _, call := range msg.ToolCalls {
			logger.WithFields(logrus.Fields{"tool": call.Function.Name, "round": round + 1}).Debug("[AGENT] tool call")
			res.ToolCalls = append(res.ToolCalls, call.Function.Name)
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    a.tools.Call(ctx, turn.UserID, call.Function.Name, call.Function.Arguments),
				ToolCallID: call.ID,
			})
		}
	}

	logger.WithFields(logrus.Fields{
		"rounds":        res.Rounds,
		"tool_calls":    len(res.ToolCalls),
		"input_tokens":  res.Usage.InputTokens,
		"output_tokens": res.Usage.OutputTokens,
		"took":          time.Since(started).String(),
	}).Info("[AGENT] turn complete")

	return res, nil
}
