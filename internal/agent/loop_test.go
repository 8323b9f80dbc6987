package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
	"github.com/ntegrals/openbrowser-sub001/internal/catalog"
	"github.com/ntegrals/openbrowser-sub001/internal/model"
	"github.com/ntegrals/openbrowser-sub001/internal/promptbuilder"
	"github.com/ntegrals/openbrowser-sub001/internal/render"
)

type fakeExtractor struct {
	state *render.State
	err   error
}

func (f *fakeExtractor) ExtractState(ctx context.Context, vp render.Viewport) (*render.State, error) {
	return f.state, f.err
}

type fakeModel struct {
	decisions []Decision
	i         int
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Invoke(ctx context.Context, req model.InvokeRequest) (model.InvokeResponse, error) {
	dec := f.decisions[f.i]
	if f.i < len(f.decisions)-1 {
		f.i++
	}
	raw, _ := json.Marshal(dec)
	return model.InvokeResponse{Parsed: raw, Usage: model.Usage{InputTokens: 10, OutputTokens: 5}, FinishReason: model.FinishStop}, nil
}

type fakeTabs struct{}

func (fakeTabs) ListTabs() []promptbuilder.TabInfo {
	return []promptbuilder.TabInfo{{ID: "tab-1", URL: "https://example.com", Current: true}}
}

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.BuildDefault()
	require.NoError(t, err)
	return cat
}

func testState() *render.State {
	return &render.State{
		Tree:                    "[0]<button>Go</button>\n",
		SelectorMap:             map[int]render.SelectorEntry{0: {CSSSelector: "#go"}},
		ElementCount:            1,
		InteractiveElementCount: 1,
	}
}

func newLoop(t *testing.T, decisions []Decision, extractor StateExtractor, stepLimit int) *Loop {
	t.Helper()
	cat := newTestCatalog(t)
	return New(
		Config{StepLimit: stepLimit, FailureThreshold: 2},
		&fakeModel{decisions: decisions},
		extractor,
		cat,
		catalog.ExecutionContext{},
		fakeTabs{},
		nil,
		func(ctx context.Context) (string, error) { return "https://example.com", nil },
		func(ctx context.Context) (render.Viewport, error) { return render.Viewport{}, nil },
		zerolog.Nop(),
	)
}

func TestConfigWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultStepLimit, cfg.StepLimit)
	assert.Equal(t, DefaultCommandsPerStep, cfg.CommandsPerStep)
	assert.Equal(t, DefaultFailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, DefaultSignatureRingSize, cfg.SignatureRingCap)
	assert.Equal(t, promptbuilder.DefaultMaxElementsLength, cfg.MaxElementsLength)
}

func TestLoopRunFinishesOnFinishAction(t *testing.T) {
	loop := newLoop(t, []Decision{
		{Actions: []catalog.Command{{ActionName: catalog.ActionFinish, Params: map[string]any{"message": "done", "success": true}}}},
	}, &fakeExtractor{state: testState()}, 10)

	result := loop.Run(context.Background(), Task{Description: "buy a book"})
	assert.True(t, result.Success)
	assert.Equal(t, "done", result.FinalResult)
	require.Len(t, result.History, 1)
	assert.Empty(t, result.Errors)
}

func TestLoopRunStopsAtFailureThreshold(t *testing.T) {
	loop := newLoop(t, []Decision{{}}, &fakeExtractor{err: agenterrors.ExtractionFailed("capture", nil)}, 10)

	result := loop.Run(context.Background(), Task{Description: "buy a book"})
	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.ErrorIs(t, result.Errors[len(result.Errors)-1], agenterrors.ErrAgentStalled)
}

func TestLoopRunReachesStepLimit(t *testing.T) {
	loop := newLoop(t, []Decision{
		{Actions: []catalog.Command{{ActionName: catalog.ActionWait, Params: map[string]any{"ms": 1}}}},
	}, &fakeExtractor{state: testState()}, 3)

	result := loop.Run(context.Background(), Task{Description: "idle"})
	assert.False(t, result.Success)
	require.Len(t, result.History, 3)
	assert.ErrorIs(t, result.Errors[len(result.Errors)-1], agenterrors.ErrStepLimitReached)
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) ClickElementByIndex(ctx context.Context, index int) error {
	return agenterrors.ElementNotFound(index)
}
func (fakeAnalyzer) InputTextByIndex(ctx context.Context, index int, text string, clearFirst bool) error {
	return nil
}
func (fakeAnalyzer) ScrollToIndex(ctx context.Context, index int) error { return nil }
func (fakeAnalyzer) SelectOption(ctx context.Context, index int, value string) error { return nil }
func (fakeAnalyzer) ListOptions(ctx context.Context, index int) ([]string, error)    { return nil, nil }
func (fakeAnalyzer) UploadFiles(ctx context.Context, index int, paths []string) error { return nil }
func (fakeAnalyzer) FindByText(ctx context.Context, text string, exact bool) (int, error) {
	return 0, nil
}
func (fakeAnalyzer) ReadPage(ctx context.Context, selector string, maxChars int) (string, error) {
	return "", nil
}
func (fakeAnalyzer) ReadHTML(ctx context.Context, selector string, maxChars int) (string, error) {
	return "", nil
}

// TestLoopRunElementNotFoundFailsStepButContinues covers the scenario where
// the model addresses an ElementRef the current selectorMap no longer has:
// the step's single command fails, but the run proceeds rather than
// aborting outright.
func TestLoopRunElementNotFoundFailsStepButContinues(t *testing.T) {
	cat := newTestCatalog(t)
	loop := New(
		Config{StepLimit: 2, FailureThreshold: 5},
		&fakeModel{decisions: []Decision{
			{Actions: []catalog.Command{{ActionName: catalog.ActionTap, Params: map[string]any{"index": 99}}}},
		}},
		&fakeExtractor{state: testState()},
		cat,
		catalog.ExecutionContext{Analyzer: fakeAnalyzer{}},
		fakeTabs{},
		nil,
		func(ctx context.Context) (string, error) { return "https://example.com", nil },
		func(ctx context.Context) (render.Viewport, error) { return render.Viewport{}, nil },
		zerolog.Nop(),
	)

	result := loop.Run(context.Background(), Task{Description: "click missing element"})
	require.Len(t, result.History, 2)
	require.Len(t, result.History[0].Results, 1)
	assert.False(t, result.History[0].Results[0].Success)
	assert.Contains(t, result.History[0].Results[0].Error, "not found")
}

// TestLoopRunStallRingDetectsRepeatedSignature covers the stall-detection
// fingerprint: an unchanging url/DOM/scroll across steps collapses to the
// same PageSignature, so the ring flags it as stuck well before the
// failure threshold would.
func TestLoopRunStallRingDetectsRepeatedSignature(t *testing.T) {
	ring := newSignatureRing(8)
	sig := computeSignature("https://example.com", testState())
	for i := 0; i < 3; i++ {
		ring.push(sig)
	}
	assert.True(t, ring.lastNIdentical(3))

	ring2 := newSignatureRing(8)
	ring2.push(sig)
	ring2.push(computeSignature("https://example.com/other", testState()))
	ring2.push(sig)
	assert.False(t, ring2.lastNIdentical(3))
}

func TestLoopRunEnforcesCommandsPerStep(t *testing.T) {
	actions := make([]catalog.Command, 0, 20)
	for i := 0; i < 20; i++ {
		actions = append(actions, catalog.Command{ActionName: catalog.ActionWait, Params: map[string]any{"ms": 1}})
	}
	loop := newLoop(t, []Decision{{Actions: actions}}, &fakeExtractor{state: testState()}, 1)
	loop.cfg.CommandsPerStep = 3

	result := loop.Run(context.Background(), Task{Description: "idle"})
	require.Len(t, result.History, 1)
	assert.Len(t, result.History[0].Actions, 3)
}
