package agent

import (
	"encoding/json"
	"context"
	"fmt"

	"github.com/ntegrals/openbrowser-sub001/internal/model"
)

// extractionSchema forces both provider adapters down their structured-
// output path (anthropic.go requires a ResponseSchema to produce a
// tool_use block at all) so Summarize works identically on either backend.
var extractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"answer": map[string]any{"type": "string"},
	},
	"required": []string{"answer"},
}

// ExtractionAdapter wraps a model.LanguageModel to satisfy
// catalog.ExtractionModel, the smaller summarization-only capability the
// extract/extract_structured handlers use (spec §6's "extraction-LM" is
// allowed to be a cheaper model than the main decision loop's).
type ExtractionAdapter struct {
	LLM model.LanguageModel
}

// Summarize asks the wrapped model to answer goal using only pageText.
func (e ExtractionAdapter) Summarize(ctx context.Context, goal, pageText string) (string, error) {
	prompt := fmt.Sprintf("Given this page text, answer the following goal concisely.\n\nGoal: %s\n\nPage text:\n%s", goal, pageText)
	resp, err := e.LLM.Invoke(ctx, model.InvokeRequest{
		Messages:       []model.Message{model.NewTextMessage(model.RoleUser, prompt)},
		ResponseSchema: extractionSchema,
		SchemaName:     "ExtractionAnswer",
		Temperature:    0,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(resp.Parsed, &out); err != nil {
		return "", fmt.Errorf("extraction: parse answer: %w", err)
	}
	return out.Answer, nil
}
