// Package agent implements the deliberation-action-observation cycle of
// spec §4.5: the Loop asks a pageanalyzer.Analyzer (via render.State) for
// the current page, composes a prompt with promptbuilder, invokes a
// model.LanguageModel, and runs the returned actions through a
// catalog.Executor. Grounded on the teacher's orchestrator.go Run loop
// (the step-by-step re-observation pattern, zerolog field usage, and the
// adaptive-retry shape) generalized from a single free-text action per
// step to the catalog's batched {currentState, actions} decision and from
// email-specific sub-agent dispatch to the spec's generic stall/budget
// bookkeeping.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
	"github.com/ntegrals/openbrowser-sub001/internal/catalog"
	"github.com/ntegrals/openbrowser-sub001/internal/history"
	"github.com/ntegrals/openbrowser-sub001/internal/model"
	"github.com/ntegrals/openbrowser-sub001/internal/promptbuilder"
	"github.com/ntegrals/openbrowser-sub001/internal/render"
)

// Defaults per spec §4.5/§9.
const (
	DefaultStepLimit         = 40
	DefaultCommandsPerStep   = 10
	DefaultFailureThreshold  = 5
	DefaultSignatureRingSize = 8
	StallWindow              = 3
	BudgetWarningFraction    = 0.75
)

// Config tunes one Loop run; zero value fills in every default.
type Config struct {
	StepLimit        int
	CommandsPerStep  int
	FailureThreshold int
	SignatureRingCap int
	MaxElementsLength int

	Vision      bool
	Temperature float64

	// Judge optionally downgrades a reported success (spec §4.5's
	// "judge (if enabled)"); nil disables judging.
	Judge func(Completed) bool

	OnStepStart func(step int)
	OnStepEnd   func(step int, results []catalog.CommandResult)
}

func (c Config) withDefaults() Config {
	if c.StepLimit <= 0 {
		c.StepLimit = DefaultStepLimit
	}
	if c.CommandsPerStep <= 0 {
		c.CommandsPerStep = DefaultCommandsPerStep
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SignatureRingCap <= 0 {
		c.SignatureRingCap = DefaultSignatureRingSize
	}
	if c.MaxElementsLength <= 0 {
		c.MaxElementsLength = promptbuilder.DefaultMaxElementsLength
	}
	return c
}

// Task is the user's ultimate goal plus optional plan/sensitive-data hints.
// Real sensitive values never live here: they travel in the caller's
// catalog.ExecutionContext.MaskedValues, and only their keys are named to
// the model (spec §4.4's masking contract).
type Task struct {
	Description       string
	Plan              string
	SensitiveDataKeys []string
}

// Completed is the loop's termination outcome (spec §4.5 step 8).
type Completed struct {
	Success       bool
	FinalResult   string
	History       []history.StepRecord
	Errors        []error
	TotalUsage    model.Usage
	TotalDuration time.Duration
}

// StateExtractor is the narrow capability Loop needs from the page
// analyzer: a fresh RenderedPageState per step (spec §4.5 step 2). Satisfied
// by *pageanalyzer.Analyzer; kept as an interface here so the loop can be
// driven by a fake observer in tests, the same capability-seam pattern as
// catalog.PageController/Analyzer.
type StateExtractor interface {
	ExtractState(ctx context.Context, vp render.Viewport) (*render.State, error)
}

// TabLister exposes the open tabs for the <browser_state> section.
type TabLister interface {
	ListTabs() []promptbuilder.TabInfo
}

// ScreenshotCapturer takes a PNG screenshot of the current page for vision.
type ScreenshotCapturer interface {
	CaptureBytes(ctx context.Context) ([]byte, error)
}

// Loop is one runnable instance of the agent loop, wired against a
// specific viewport/analyzer/model/catalog quadruple.
type Loop struct {
	cfg Config

	llm        model.LanguageModel
	analyzer   StateExtractor
	executor   *catalog.Executor
	catalogRef *catalog.Catalog
	tabs       TabLister
	shots      ScreenshotCapturer
	pageURL    func(ctx context.Context) (string, error)
	viewport   func(ctx context.Context) (render.Viewport, error)
	ec         catalog.ExecutionContext

	builder *promptbuilder.Builder
	log     zerolog.Logger
}

// New builds a Loop. ec supplies the capability dependencies the executor
// injects into handlers (Page/Analyzer/ExtractionLM/Sandbox/MaskedValues).
func New(
	cfg Config,
	llm model.LanguageModel,
	analyzer StateExtractor,
	cat *catalog.Catalog,
	ec catalog.ExecutionContext,
	tabs TabLister,
	shots ScreenshotCapturer,
	pageURL func(ctx context.Context) (string, error),
	viewportMetrics func(ctx context.Context) (render.Viewport, error),
	log zerolog.Logger,
) *Loop {
	return &Loop{
		cfg:        cfg.withDefaults(),
		llm:        llm,
		analyzer:   analyzer,
		executor:   catalog.NewExecutor(cat),
		catalogRef: cat,
		tabs:       tabs,
		shots:      shots,
		pageURL:    pageURL,
		viewport:   viewportMetrics,
		ec:         ec,
		builder:    promptbuilder.NewBuilder(),
		log:        log,
	}
}

// Run executes the agent loop for task until finish, stall, failure
// threshold, or step limit (spec §4.5).
func (l *Loop) Run(ctx context.Context, task Task) Completed {
	start := time.Now()
	systemPrompt := promptbuilder.BuildSystemPrompt(task.Description)
	conversation := history.NewConversation(history.DefaultMaxMessages)
	trail := history.NewTrail()
	ring := newSignatureRing(l.cfg.SignatureRingCap)

	var (
		errs                []error
		totalUsage          model.Usage
		consecutiveFailures int
	)

	for step := 1; step <= l.cfg.StepLimit; step++ {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if l.cfg.OnStepStart != nil {
			l.cfg.OnStepStart(step)
		}

		stepStart := time.Now()

		// 2. Observe.
		url, _ := l.pageURL(ctx)
		vp, err := l.viewport(ctx)
		if err != nil {
			errs = append(errs, err)
			consecutiveFailures++
			if consecutiveFailures >= l.cfg.FailureThreshold {
				return l.finish(false, "", trail, errs, totalUsage, start, agenterrors.ErrAgentStalled)
			}
			continue
		}
		state, err := l.analyzer.ExtractState(ctx, vp)
		if err != nil {
			errs = append(errs, err)
			consecutiveFailures++
			if consecutiveFailures >= l.cfg.FailureThreshold {
				return l.finish(false, "", trail, errs, totalUsage, start, agenterrors.ErrAgentStalled)
			}
			continue
		}
		ring.push(computeSignature(url, state))

		// 3. Compose prompt.
		isFreshBlankFirstStep := step == 1 && (url == "" || url == "about:blank")
		var screenshot []byte
		if l.cfg.Vision && !isFreshBlankFirstStep && l.shots != nil {
			screenshot, _ = l.shots.CaptureBytes(ctx)
		}

		var tabInfos []promptbuilder.TabInfo
		if l.tabs != nil {
			tabInfos = l.tabs.ListTabs()
		}
		var pageSpecific []*catalog.Entry
		if l.catalogRef != nil {
			pageSpecific = l.catalogRef.Entries(url)
		}

		parts := l.builder.Build(promptbuilder.Input{
			Task:                  task.Description,
			Plan:                  task.Plan,
			SensitiveDataKeys:     task.SensitiveDataKeys,
			Step:                  step,
			StepLimit:             l.cfg.StepLimit,
			Tabs:                  tabInfos,
			State:                 state,
			History:               trail.Last(promptbuilder.HistoryWindow),
			PageSpecificEntries:   pageSpecific,
			Vision:                l.cfg.Vision,
			Screenshot:            screenshot,
			IsFreshBlankFirstStep: isFreshBlankFirstStep,
			MaxElementsLength:     l.cfg.MaxElementsLength,
		})
		conversation.AppendObservationParts(parts)

		// 7 (budget half). Warn before inference so the model sees it this step.
		if float64(step) >= float64(l.cfg.StepLimit)*BudgetWarningFraction {
			conversation.AppendNudge(fmt.Sprintf("Budget warning: step %d of %d; wrap up soon.", step, l.cfg.StepLimit))
		}
		if ring.lastNIdentical(StallWindow) && !lastStepDone(trail) {
			conversation.AppendNudge(fmt.Sprintf("You appear to be stuck on %s; try a different approach.", url))
		}

		messages := append([]model.Message{model.NewTextMessage(model.RoleSystem, systemPrompt)}, conversation.Messages()...)

		// 4. Infer.
		dec, usage, err := l.invoke(ctx, messages)
		totalUsage = totalUsage.Add(usage)
		if err != nil {
			errs = append(errs, err)
			consecutiveFailures++
			if l.cfg.OnStepEnd != nil {
				l.cfg.OnStepEnd(step, nil)
			}
			if consecutiveFailures >= l.cfg.FailureThreshold {
				return l.finish(false, "", trail, errs, totalUsage, start, agenterrors.ErrAgentStalled)
			}
			continue
		}

		actions := dec.Actions
		if len(actions) > l.cfg.CommandsPerStep {
			actions = actions[:l.cfg.CommandsPerStep]
		}

		// 5. Act.
		results := l.executor.ExecuteSequence(ctx, actions, l.ec)

		record := history.StepRecord{
			Step:         step,
			CurrentState: dec.CurrentState,
			Actions:      actions,
			Results:      results,
			Duration:     time.Since(stepStart).Seconds(),
			Usage:        usage,
		}
		trail.Append(record)
		if decisionJSON, err := marshalDecision(dec); err == nil {
			conversation.AppendDecision(decisionJSON)
		}

		// 6. Post-step.
		if finishResult, ok := record.AnyFinished(); ok {
			return l.finish(finishResult.FinishSuccess, finishResult.FinishText, trail, errs, totalUsage, start, nil)
		}
		if record.AllFailed() {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}
		if consecutiveFailures >= l.cfg.FailureThreshold {
			return l.finish(false, "", trail, errs, totalUsage, start, agenterrors.ErrAgentStalled)
		}

		if l.cfg.OnStepEnd != nil {
			l.cfg.OnStepEnd(step, results)
		}
	}

	return l.finish(false, "", trail, errs, totalUsage, start, agenterrors.ErrStepLimitReached)
}

func (l *Loop) invoke(ctx context.Context, messages []model.Message) (Decision, model.Usage, error) {
	req := model.InvokeRequest{
		Messages:       messages,
		ResponseSchema: decisionResponseSchema(),
		SchemaName:     "Decision",
		Temperature:    l.cfg.Temperature,
	}

	resp, err := l.llm.Invoke(ctx, req)
	if err != nil {
		var throttled *agenterrors.ModelThrottled
		if isModelThrottled(err, &throttled) {
			delay := time.Duration(throttled.RetryAfterMs) * time.Millisecond
			if delay <= 0 {
				delay = time.Second
			}
			l.log.Warn().Dur("retry_after", delay).Msg("model throttled, retrying once")
			select {
			case <-ctx.Done():
				return Decision{}, model.Usage{}, ctx.Err()
			case <-time.After(delay):
			}
			resp, err = l.llm.Invoke(ctx, req)
		}
		if err != nil {
			return Decision{}, model.Usage{}, agenterrors.NewModelError(err)
		}
	}

	var dec Decision
	if err := unmarshalDecision(resp.Parsed, &dec); err != nil {
		return Decision{}, resp.Usage, fmt.Errorf("parse decision: %w", err)
	}
	return dec, resp.Usage, nil
}

// lastStepDone reports whether the most recently recorded step already
// carried a finish result, so the stall nudge doesn't fire against a
// terminal step that merely happens to repeat the prior page signature.
func lastStepDone(trail *history.Trail) bool {
	all := trail.All()
	if len(all) == 0 {
		return false
	}
	_, ok := all[len(all)-1].AnyFinished()
	return ok
}

func (l *Loop) finish(success bool, result string, trail *history.Trail, errs []error, usage model.Usage, start time.Time, terminal error) Completed {
	if terminal != nil {
		errs = append(errs, terminal)
	}
	c := Completed{
		Success:       success,
		FinalResult:   result,
		History:       trail.All(),
		Errors:        errs,
		TotalUsage:    usage,
		TotalDuration: time.Since(start),
	}
	if success && l.cfg.Judge != nil && !l.cfg.Judge(c) {
		c.Success = false
	}
	return c
}
