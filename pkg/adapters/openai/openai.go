// Package openai detects intents and writes free-form replies with an
// OpenAI-compatible chat completion API. Role actions are offered as function
// tools; the model's tool call becomes the turn's intent.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/gocare/internal/logging"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.ChatModelGPT4oMini

const detectPrompt = `You route one utterance from a caller on a bank support line.
The conversation is in the %q stage. If the utterance asks for one of the available tools, call exactly that tool with its arguments.
If it asks for none of them, answer with an empty message and call no tool. Never invent argument values the caller did not say.`

const respondPrompt = `You are a friendly voice agent on a bank support line. Answer in one or two short spoken sentences.
Never ask for or repeat passwords, PINs or one-time codes. You cannot look up account data yourself.`

// ChatService is the subset of the SDK client used here.
type ChatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps a chat completion service.
type Client struct {
	chat   ChatService
	model  shared.ChatModel
	logger *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = shared.ChatModel(model)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for apiKey. baseURL may be empty for the public API.
func New(apiKey, baseURL string, opts ...Option) *Client {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	sdk := openai.NewClient(reqOpts...)
	return NewWithService(&sdk.Chat.Completions, opts...)
}

// NewWithService wraps an existing chat service.
func NewWithService(chat ChatService, opts ...Option) *Client {
	c := &Client{
		chat:   chat,
		model:  DefaultModel,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tools converts action specs into function tool definitions.
func Tools(actions []domain.ActionSpec) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(actions))
	for _, a := range actions {
		params := shared.FunctionParameters{"type": "object", "properties": map[string]any{}}
		for k, v := range a.Parameters {
			params[k] = v
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(a.Action),
				Description: openai.String(a.Description),
				Parameters:  params,
			},
		})
	}
	return tools
}

// Detect implements ports.IntentDetector.
func (c *Client) Detect(ctx context.Context, role domain.Role, actions []domain.ActionSpec, text string) (domain.Intent, error) {
	if len(actions) == 0 {
		return domain.Intent{Text: text}, nil
	}
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(detectPrompt, role.String())),
			openai.UserMessage(text),
		},
		Tools: Tools(actions),
	})
	if err != nil {
		return domain.Intent{}, fmt.Errorf("intent detection request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Intent{}, errors.New("intent detection returned no choices")
	}

	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return domain.Intent{Text: text}, nil
	}
	call := calls[0]
	action, err := domain.ParseAction(call.Function.Name)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("model called unknown tool: %w", err)
	}
	args, err := DecodeArgs([]byte(call.Function.Arguments))
	if err != nil {
		return domain.Intent{}, err
	}
	c.logger.Debug("intent detected", "role", role, "action", action, "calls", len(calls))
	return domain.Intent{Action: action, Args: args, Text: text}, nil
}

// DecodeArgs parses tool-call arguments. Scalar values are coerced to strings,
// so a code the model sends as 1234 arrives as "1234".
func DecodeArgs(raw []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	var flat map[string]string
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &flat,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(generic); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	args := make(map[string]any, len(flat))
	for k, v := range flat {
		args[k] = v
	}
	return args, nil
}

// Respond implements ports.Responder.
func (c *Client) Respond(ctx context.Context, sc *domain.SessionContext, text string) (string, error) {
	system := respondPrompt
	if sc.UserName != "" {
		system += fmt.Sprintf(" The caller is %s.", sc.UserName)
	}
	if sc.Role == domain.RoleHelpline {
		system += " You are speaking as a customer support specialist."
		if sc.Advisory != "" {
			system += " Handoff note: " + sc.Advisory
		}
	}
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("responder request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("responder returned no choices")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("responder returned an empty reply")
	}
	return reply, nil
}
