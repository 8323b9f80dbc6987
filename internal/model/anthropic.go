package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
)

// anthropicResponseTool is the single forced tool used to coerce Claude into
// emitting JSON matching InvokeRequest.ResponseSchema. Anthropic has no
// native "response_format" knob (unlike OpenAI), so structured output is
// obtained the same way a real tool call is: force tool_choice at this one
// tool and parse its input back out.
const anthropicResponseTool = "emit_structured_response"

// AnthropicConfig configures an Anthropic-backed LanguageModel.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

type anthropicModel struct {
	client     anthropic.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewAnthropicModel builds a LanguageModel backed by anthropic-sdk-go.
func NewAnthropicModel(cfg AnthropicConfig, log zerolog.Logger) (LanguageModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicModel{
		client:     anthropic.NewClient(opts...),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		log:        log,
	}, nil
}

func (m *anthropicModel) Name() string { return "anthropic:" + m.model }

func (m *anthropicModel) Invoke(ctx context.Context, req InvokeRequest) (InvokeResponse, error) {
	params, err := m.buildParams(req)
	if err != nil {
		return InvokeResponse{}, fmt.Errorf("anthropic: build request: %w", err)
	}

	var message *anthropic.Message
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		message, err = m.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryableAnthropicError(err) {
			return InvokeResponse{}, classifyAnthropicError(err)
		}
		m.log.Warn().Err(err).Int("attempt", attempt).Msg("anthropic request failed, retrying")
		if attempt == m.maxRetries {
			break
		}
		backoff := m.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return InvokeResponse{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return InvokeResponse{}, fmt.Errorf("anthropic: max retries exceeded: %w", classifyAnthropicError(err))
	}

	return m.parseResponse(message)
}

func (m *anthropicModel) buildParams(req InvokeRequest) (anthropic.MessageNewParams, error) {
	messages, system, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if req.ResponseSchema != nil {
		var schema anthropic.ToolInputSchemaParam
		raw, err := json.Marshal(req.ResponseSchema)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("marshal response schema: %w", err)
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("response schema is not a valid tool schema: %w", err)
		}
		name := req.SchemaName
		if name == "" {
			name = anthropicResponseTool
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, name)
		toolParam.OfTool.Description = anthropic.String("Emit the next action as structured JSON.")
		params.Tools = []anthropic.ToolUnionParam{toolParam}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: name},
		}
	}

	if req.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThinkingBudget))
	}

	return params, nil
}

func convertMessages(messages []Message) ([]anthropic.MessageParam, string, error) {
	var out []anthropic.MessageParam
	var system string

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = joinText(msg.Content)
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		for _, part := range msg.Content {
			switch part.Type {
			case PartText:
				if part.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			case PartImage:
				mediaType, ok := anthropicImageMediaType(part.ImageMIME)
				if !ok {
					continue
				}
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(part.ImageData)))
			}
		}
		if len(blocks) == 0 {
			continue
		}

		if msg.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}

	return out, system, nil
}

func joinText(parts []ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func anthropicImageMediaType(mime string) (string, bool) {
	switch strings.ToLower(mime) {
	case "image/png", "image/jpeg", "image/jpg", "image/gif", "image/webp":
		return strings.ToLower(mime), true
	default:
		return "", false
	}
}

func (m *anthropicModel) parseResponse(msg *anthropic.Message) (InvokeResponse, error) {
	resp := InvokeResponse{
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		if toolUse := block.AsToolUse(); toolUse.Type == "tool_use" {
			resp.Parsed = json.RawMessage(toolUse.Input)
			break
		}
	}

	switch msg.StopReason {
	case anthropic.StopReasonEndTurn:
		resp.FinishReason = FinishStop
	case anthropic.StopReasonMaxTokens:
		resp.FinishReason = FinishLength
	case anthropic.StopReasonToolUse:
		resp.FinishReason = FinishToolCalls
	case anthropic.StopReasonStopSequence:
		resp.FinishReason = FinishStop
	default:
		resp.FinishReason = FinishOther
	}

	if resp.Parsed == nil {
		resp.FinishReason = FinishError
		return resp, errors.New("anthropic: response contained no structured tool_use block")
	}

	return resp, nil
}

func isRetryableAnthropicError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused")
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return &agenterrors.ModelThrottled{Cause: err}
	}
	return agenterrors.NewModelError(err)
}
