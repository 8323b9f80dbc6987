// Package history owns the agent's two persistent logs: the StepRecord
// trail (spec §3, §4.5) used for stall/budget bookkeeping and display, and
// the rolling Conversation of model messages used as Invoke input.
package history

import (
	"fmt"
	"strings"

	"github.com/ntegrals/openbrowser-sub001/internal/catalog"
	"github.com/ntegrals/openbrowser-sub001/internal/model"
)

// CurrentState is the model's self-reported state for one step, mirroring
// the teacher's HistoryItem evaluation/memory/next_goal fields.
type CurrentState struct {
	Evaluation string `json:"evaluation"`
	Memory     string `json:"memory"`
	NextGoal   string `json:"nextGoal"`
}

// StepRecord is one completed step of the agent loop (spec §3).
type StepRecord struct {
	Step        int
	CurrentState CurrentState
	Actions     []catalog.Command
	Results     []catalog.CommandResult
	Duration    float64
	Usage       model.Usage
}

// AllFailed reports whether every result in the step failed, the signal the
// loop uses to advance consecutiveFailures (spec §4.5 step 6).
func (s StepRecord) AllFailed() bool {
	if len(s.Results) == 0 {
		return false
	}
	for _, r := range s.Results {
		if r.Success {
			return false
		}
	}
	return true
}

// AnyFinished reports whether any result carries a finish outcome.
func (s StepRecord) AnyFinished() (catalog.CommandResult, bool) {
	for _, r := range s.Results {
		if r.IsFinish {
			return r, true
		}
	}
	return catalog.CommandResult{}, false
}

// Trail is the append-only list of StepRecords for a run. It keeps every
// record; Last(n) returns the trailing window that callers render through
// FormatAgentHistory, matching the teacher's `last(history, 5)` windowing
// in orchestrator.go.
type Trail struct {
	records []StepRecord
}

func NewTrail() *Trail { return &Trail{} }

func (t *Trail) Append(r StepRecord) { t.records = append(t.records, r) }

func (t *Trail) All() []StepRecord { return t.records }

func (t *Trail) Last(n int) []StepRecord {
	if n <= 0 || len(t.records) == 0 {
		return nil
	}
	if n > len(t.records) {
		n = len(t.records)
	}
	return t.records[len(t.records)-n:]
}

// ConsecutiveAllFailed counts trailing steps that were entirely failures.
func (t *Trail) ConsecutiveAllFailed() int {
	count := 0
	for i := len(t.records) - 1; i >= 0; i-- {
		if !t.records[i].AllFailed() {
			break
		}
		count++
	}
	return count
}

// FormatAgentHistory renders every step it is given as the <agent_history> block
// the teacher's planner.go builds via formatHistory, generalized from the
// single-action HistoryItem shape to StepRecord's multi-action shape.
func FormatAgentHistory(steps []StepRecord) string {
	if len(steps) == 0 {
		return "(no actions taken yet)"
	}
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "<step_%d>:\n", s.Step)
		if s.CurrentState.Evaluation != "" {
			fmt.Fprintf(&b, "Evaluation: %s\n", s.CurrentState.Evaluation)
		}
		if s.CurrentState.Memory != "" {
			fmt.Fprintf(&b, "Memory: %s\n", s.CurrentState.Memory)
		}
		if s.CurrentState.NextGoal != "" {
			fmt.Fprintf(&b, "Next Goal: %s\n", s.CurrentState.NextGoal)
		}
		for i, a := range s.Actions {
			result := "(pending)"
			if i < len(s.Results) {
				result = s.Results[i].Observation
			}
			fmt.Fprintf(&b, "Action Result: %s -> %s\n", a.Action(), result)
		}
		fmt.Fprintf(&b, "</step_%d>\n", s.Step)
	}
	return b.String()
}

// DefaultMaxMessages is the conversation pruning threshold (spec §4.5).
const DefaultMaxMessages = 100

// Conversation is the rolling user/assistant message log the agent feeds
// to model.Invoke. The system prompt is held separately by the caller and
// prepended on every call, matching spec §4.5's "held separately".
type Conversation struct {
	messages    []model.Message
	maxMessages int
}

func NewConversation(maxMessages int) *Conversation {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Conversation{maxMessages: maxMessages}
}

// AppendObservation records the rendered page state handed to the model.
func (c *Conversation) AppendObservation(text string) {
	c.append(model.NewTextMessage(model.RoleUser, text))
}

// AppendObservationParts records a multi-part observation (text plus an
// optional screenshot image part), used when vision is enabled.
func (c *Conversation) AppendObservationParts(parts []model.ContentPart) {
	c.append(model.Message{Role: model.RoleUser, Content: parts})
}

// AppendDecision records the model's JSON decision for this step.
func (c *Conversation) AppendDecision(jsonText string) {
	c.append(model.NewTextMessage(model.RoleAssistant, jsonText))
}

// AppendNudge records a synthetic user message (stall or budget warning).
func (c *Conversation) AppendNudge(text string) {
	c.append(model.NewTextMessage(model.RoleUser, text))
}

func (c *Conversation) append(msg model.Message) {
	c.messages = append(c.messages, msg)
	c.prune()
}

// prune drops the oldest non-system user/assistant pair once the log
// exceeds maxMessages, per spec §4.5. System messages never live in this
// log (the caller prepends the system prompt separately), so the oldest
// pair is always messages[0:2].
func (c *Conversation) prune() {
	for len(c.messages) > c.maxMessages {
		if len(c.messages) < 2 {
			c.messages = nil
			return
		}
		c.messages = c.messages[2:]
	}
}

// Messages returns the current log, suitable for direct use as
// model.InvokeRequest.Messages (after prepending the system message).
func (c *Conversation) Messages() []model.Message {
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int { return len(c.messages) }
