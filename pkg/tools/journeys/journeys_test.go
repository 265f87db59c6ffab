package journeys

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/journeyforge/pkg/history"
	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/page/pagetest"
	"github.com/entrhq/journeyforge/pkg/store"
)

type fakePages map[string]page.Controller

func (f fakePages) Page(session string) (page.Controller, error) {
	p, ok := f[session]
	if !ok {
		return nil, fmt.Errorf("session %q not found", session)
	}
	return p, nil
}

type fixture struct {
	fake    *pagetest.Fake
	runner  *Runner
	defs    *store.FileStore
	history *history.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := pagetest.New("about:blank", "#login", "#user")
	defs, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	h, err := history.Open(context.Background(), history.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	exec := journey.NewStepExecutor(journey.WithScreenshotDir(t.TempDir()))
	runner := NewRunner(fakePages{"main": fake},
		journey.WithExecutor(exec),
		journey.WithDelay(func(context.Context, time.Duration) error { return nil }),
	)
	return &fixture{fake: fake, runner: runner, defs: defs, history: h}
}

func loginJourney() *journey.Definition {
	return &journey.Definition{
		Name:        "login",
		Description: "log in",
		Steps: []journey.Step{
			{ID: "open", Action: journey.ActionNavigate, Value: journey.Value("https://example.com/login")},
			{ID: "user", Action: journey.ActionType, Selector: "#user", Value: journey.Value("alice")},
			{ID: "go", Action: journey.ActionClick, Selector: "#login"},
		},
	}
}

func mustArgs(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestRunTool_RecordsHistory(t *testing.T) {
	f := newFixture(t)
	tool := NewRunTool(f.runner, f.defs, f.history, 0, nil)

	text, meta, err := tool.Execute(context.Background(), mustArgs(t, map[string]interface{}{
		"session": "main",
		"journey": loginJourney(),
	}))
	require.NoError(t, err)
	assert.Equal(t, true, meta["success"])

	var out RunOutput
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.NotNil(t, out.Result)
	assert.Equal(t, 3, out.Result.CompletedSteps)
	assert.Empty(t, out.Aborted)
	assert.Equal(t, "alice", f.fake.Values["#user"])

	runs, err := f.history.List(context.Background(), "login", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, out.Result.JourneyID, runs[0].ID)
}

func TestRunTool_FailureIsReportedInResult(t *testing.T) {
	f := newFixture(t)
	tool := NewRunTool(f.runner, f.defs, f.history, 0, nil)

	def := loginJourney()
	def.Steps[2].Selector = "#missing"
	text, meta, err := tool.Execute(context.Background(), mustArgs(t, map[string]interface{}{
		"session": "main",
		"journey": def,
	}))
	require.NoError(t, err)
	assert.Equal(t, false, meta["success"])

	var out RunOutput
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.NotEmpty(t, out.Aborted)
	require.Len(t, out.Result.Errors, 1)
	assert.Equal(t, "go", out.Result.Errors[0].StepID)
}

func TestRunTool_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	tool := NewRunTool(f.runner, f.defs, nil, 0, nil)
	ctx := context.Background()

	_, _, err := tool.Execute(ctx, mustArgs(t, map[string]interface{}{"journey": loginJourney()}))
	assert.ErrorContains(t, err, "session is required")

	_, _, err = tool.Execute(ctx, mustArgs(t, map[string]interface{}{"session": "main"}))
	assert.ErrorIs(t, err, errNoDefinition)

	_, _, err = tool.Execute(ctx, mustArgs(t, map[string]interface{}{
		"session": "main",
		"journey": &journey.Definition{Name: "empty"},
	}))
	assert.ErrorContains(t, err, "invalid journey")
	assert.Zero(t, f.fake.CallCount("navigate"))

	_, _, err = tool.Execute(ctx, mustArgs(t, map[string]interface{}{
		"session": "other",
		"journey": loginJourney(),
	}))
	assert.ErrorContains(t, err, "not found")
}

func TestRunTool_StoredByName(t *testing.T) {
	f := newFixture(t)
	_, err := f.defs.Save(loginJourney())
	require.NoError(t, err)

	tool := NewRunTool(f.runner, f.defs, nil, 0, nil)
	_, meta, err := tool.Execute(context.Background(), mustArgs(t, map[string]interface{}{
		"session": "main",
		"name":    "login",
	}))
	require.NoError(t, err)
	assert.Equal(t, true, meta["success"])
}

func TestStopTool(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.fake.OnAction = func(ctx context.Context, op, selector string) error {
		if op == "fill" {
			entered <- struct{}{}
			<-release
		}
		return nil
	}

	run := NewRunTool(f.runner, f.defs, nil, 0, nil)
	stop := NewStopTool(f.runner)

	done := make(chan RunOutput, 1)
	go func() {
		text, _, err := run.Execute(context.Background(), mustArgs(t, map[string]interface{}{
			"session": "main",
			"journey": loginJourney(),
		}))
		var out RunOutput
		if err == nil {
			_ = json.Unmarshal([]byte(text), &out)
		}
		done <- out
	}()

	<-entered
	assert.True(t, f.runner.IsRunning("main"))
	text, _, err := stop.Execute(context.Background(), mustArgs(t, map[string]string{"session": "main"}))
	require.NoError(t, err)
	assert.Contains(t, text, `"stopped": true`)
	close(release)

	out := <-done
	require.NotNil(t, out.Result)
	assert.Equal(t, 2, out.Result.CompletedSteps)
	assert.Contains(t, out.Aborted, "journey stopped")
	assert.False(t, f.runner.IsRunning("main"))

	text, _, err = stop.Execute(context.Background(), mustArgs(t, map[string]string{"session": "main"}))
	require.NoError(t, err)
	assert.Contains(t, text, `"stopped": false`)
}

func TestRunner_ForgetDropsSimulator(t *testing.T) {
	f := newFixture(t)
	first, err := f.runner.Simulator("main")
	require.NoError(t, err)
	again, err := f.runner.Simulator("main")
	require.NoError(t, err)
	assert.Same(t, first, again)

	f.runner.Forget("main")
	fresh, err := f.runner.Simulator("main")
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
}

func TestValidateTool_YAML(t *testing.T) {
	f := newFixture(t)
	tool := NewValidateTool(f.defs)

	doc := `
name: checkout
steps:
  - id: open
    action: navigate
    value: https://example.com
  - id: open
    action: click
`
	text, meta, err := tool.Execute(context.Background(), mustArgs(t, map[string]string{"yaml": doc}))
	require.NoError(t, err)
	assert.Equal(t, false, meta["isValid"])

	var vr journey.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(text), &vr))
	assert.NotEmpty(t, vr.Errors)
	assert.NotEmpty(t, vr.Warnings, "missing description")
}

func TestSaveAndListTools(t *testing.T) {
	f := newFixture(t)
	save := NewSaveTool(f.defs)
	list := NewListTool(f.defs)
	ctx := context.Background()

	text, _, err := list.Execute(ctx, nil)
	require.NoError(t, err)
	assert.Contains(t, text, `"count": 0`)

	_, _, err = save.Execute(ctx, mustArgs(t, map[string]string{"name": "login"}))
	assert.ErrorContains(t, err, "journey or yaml is required")

	_, _, err = save.Execute(ctx, mustArgs(t, map[string]interface{}{
		"journey": &journey.Definition{Name: "broken"},
	}))
	assert.ErrorContains(t, err, "invalid journey")

	text, _, err = save.Execute(ctx, mustArgs(t, map[string]interface{}{"journey": loginJourney()}))
	require.NoError(t, err)
	var out savedOutput
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.NotEmpty(t, out.Path)
	assert.Equal(t, "login", out.Journey.Name)

	text, _, err = list.Execute(ctx, nil)
	require.NoError(t, err)
	assert.Contains(t, text, `"count": 1`)
	assert.Contains(t, text, `"name": "login"`)
}

func TestOptimizeTool(t *testing.T) {
	f := newFixture(t)
	tool := NewOptimizeTool(f.defs, journey.WithDefaultStepTimeout(5*time.Second))
	ctx := context.Background()

	def := loginJourney()
	def.Steps[1].Timeout = 1234
	text, _, err := tool.Execute(ctx, mustArgs(t, map[string]interface{}{"journey": def}))
	require.NoError(t, err)

	var out savedOutput
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.Len(t, out.Journey.Steps, 3)
	assert.Equal(t, 5000, out.Journey.Steps[0].Timeout)
	assert.Equal(t, 1234, out.Journey.Steps[1].Timeout)
	assert.Empty(t, out.Path)
	assert.Empty(t, f.defs.List())

	_, _, err = tool.Execute(ctx, mustArgs(t, map[string]interface{}{"journey": def, "save": true}))
	require.NoError(t, err)
	stored, err := f.defs.Get("login")
	require.NoError(t, err)
	assert.Equal(t, 5000, stored.Steps[2].Timeout)
}

func TestHistoryTool(t *testing.T) {
	f := newFixture(t)
	run := NewRunTool(f.runner, f.defs, f.history, 0, nil)
	tool := NewHistoryTool(f.history)
	ctx := context.Background()

	text, _, err := tool.Execute(ctx, nil)
	require.NoError(t, err)
	assert.Contains(t, text, `"runs": []`)

	for i := 0; i < 2; i++ {
		_, _, err := run.Execute(ctx, mustArgs(t, map[string]interface{}{"session": "main", "journey": loginJourney()}))
		require.NoError(t, err)
	}

	text, _, err = tool.Execute(ctx, mustArgs(t, map[string]string{"name": "login"}))
	require.NoError(t, err)
	var out historyOutput
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.Len(t, out.Runs, 2)
	require.NotNil(t, out.Stats)
	assert.Equal(t, 2, out.Stats.Runs)
	assert.Equal(t, 2, out.Stats.Passed)

	text, _, err = tool.Execute(ctx, mustArgs(t, map[string]string{"runId": out.Runs[0].ID}))
	require.NoError(t, err)
	var res journey.Result
	require.NoError(t, json.Unmarshal([]byte(text), &res))
	assert.Equal(t, out.Runs[0].ID, res.JourneyID)

	_, _, err = tool.Execute(ctx, mustArgs(t, map[string]string{"runId": "nope"}))
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestTools_HistoryOptional(t *testing.T) {
	f := newFixture(t)
	without := Tools(Config{Runner: f.runner, Definitions: f.defs})
	with := Tools(Config{Runner: f.runner, Definitions: f.defs, History: f.history})
	assert.Len(t, with, len(without)+1)
}
