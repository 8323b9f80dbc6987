// Package model defines the abstract LanguageModel capability the agent
// loop depends on (spec §6, §4.5) and two concrete adapters backing it.
// The agent loop never imports a provider SDK directly — only this
// package's interface — so swapping providers never touches loop code.
package model

import (
	"context"
	"encoding/json"
	"time"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool-result"
)

// PartType distinguishes a Message's content parts.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one piece of a (possibly multi-modal) message.
type ContentPart struct {
	Type PartType
	Text string
	// ImageData holds the raw image bytes for PartImage; ImageMIME names
	// their media type.
	ImageData  []byte
	ImageMIME  string
	ImageAlt   string
}

// Message is a single turn. Content may be a bare string (wrapped as one
// text part by NewTextMessage) or an ordered list of parts for vision.
type Message struct {
	Role    Role
	Content []ContentPart
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentPart{{Type: PartText, Text: text}}}
}

// FinishReason mirrors spec §6's enumeration.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
)

// Usage reports token accounting for one Invoke call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates usage across steps.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// InvokeRequest is the single shape every provider adapter accepts.
type InvokeRequest struct {
	Messages       []Message
	ResponseSchema map[string]any
	SchemaName     string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	Cache          bool
	ThinkingBudget int
}

// InvokeResponse carries the structured JSON payload plus usage. The
// adapters return the payload as received; they do not validate it
// against ResponseSchema.
type InvokeResponse struct {
	Parsed       json.RawMessage
	Usage        Usage
	FinishReason FinishReason
}

// LanguageModel is the single capability the agent loop requires. A real
// implementation backs it with any provider SDK; the core must not leak
// provider specifics past this interface (spec §6, §9 "Provider adapter").
type LanguageModel interface {
	// Invoke sends messages and asks for output matching ResponseSchema.
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResponse, error)
	// Name identifies the backing model for logs and usage reports.
	Name() string
}
