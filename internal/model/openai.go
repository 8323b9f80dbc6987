package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
)

// OpenAIConfig configures an OpenAI-backed LanguageModel.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

type openAIModel struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewOpenAIModel builds a LanguageModel backed by sashabaranov/go-openai.
func NewOpenAIModel(cfg OpenAIConfig, log zerolog.Logger) (LanguageModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openAIModel{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		log:        log,
	}, nil
}

func (m *openAIModel) Name() string { return "openai:" + m.model }

func (m *openAIModel) Invoke(ctx context.Context, req InvokeRequest) (InvokeResponse, error) {
	chatReq, err := m.buildRequest(req)
	if err != nil {
		return InvokeResponse{}, fmt.Errorf("openai: build request: %w", err)
	}

	var resp openai.ChatCompletionResponse
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		resp, err = m.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			break
		}
		if !isRetryableOpenAIError(err) {
			return InvokeResponse{}, classifyOpenAIError(err)
		}
		m.log.Warn().Err(err).Int("attempt", attempt).Msg("openai request failed, retrying")
		if attempt == m.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return InvokeResponse{}, ctx.Err()
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return InvokeResponse{}, fmt.Errorf("openai: max retries exceeded: %w", classifyOpenAIError(err))
	}

	return parseOpenAIResponse(resp)
}

func (m *openAIModel) buildRequest(req InvokeRequest) (openai.ChatCompletionRequest, error) {
	messages, err := convertOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	if req.ResponseSchema != nil {
		name := req.SchemaName
		if name == "" {
			name = "structured_response"
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: jsonSchemaDefinition(req.ResponseSchema),
				Strict: true,
			},
		}
	}

	return chatReq, nil
}

// jsonSchemaDefinition adapts a raw map schema to go-openai's Marshaler
// interface, which ChatCompletionResponseFormatJSONSchema.Schema expects.
type jsonSchemaDefinition map[string]any

func (s jsonSchemaDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

func convertOpenAIMessages(messages []Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openAIRole(msg.Role)

		if !hasImage(msg.Content) {
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: joinText(msg.Content)})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(msg.Content))
		for _, part := range msg.Content {
			switch part.Type {
			case PartText:
				if part.Text != "" {
					parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: part.Text})
				}
			case PartImage:
				if len(part.ImageData) == 0 {
					continue
				}
				dataURL := fmt.Sprintf("data:%s;base64,%s", part.ImageMIME, base64.StdEncoding.EncodeToString(part.ImageData))
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
				})
			}
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return out, nil
}

func hasImage(parts []ContentPart) bool {
	for _, p := range parts {
		if p.Type == PartImage {
			return true
		}
	}
	return false
}

func openAIRole(r Role) string {
	switch r {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func parseOpenAIResponse(resp openai.ChatCompletionResponse) (InvokeResponse, error) {
	out := InvokeResponse{
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) == 0 {
		out.FinishReason = FinishError
		return out, errors.New("openai: response contained no choices")
	}

	choice := resp.Choices[0]
	out.Parsed = json.RawMessage(choice.Message.Content)

	switch choice.FinishReason {
	case openai.FinishReasonStop:
		out.FinishReason = FinishStop
	case openai.FinishReasonLength:
		out.FinishReason = FinishLength
	case openai.FinishReasonContentFilter:
		out.FinishReason = FinishContentFilter
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		out.FinishReason = FinishToolCalls
	default:
		out.FinishReason = FinishOther
	}

	return out, nil
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
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

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return &agenterrors.ModelThrottled{Cause: err}
	}
	return agenterrors.NewModelError(err)
}
