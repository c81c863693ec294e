package campaign

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skolmuirgheasa/resquared-automation/agent"
	"github.com/skolmuirgheasa/resquared-automation/config"
	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/executor/executortest"
	"github.com/skolmuirgheasa/resquared-automation/locator"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSession struct {
	page *executortest.Page

	mu        sync.Mutex
	navErr    error
	navigated []string
	statuses  []string
	closed    int
}

func (s *fakeSession) Page() executor.Page { return s.page }

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return s.navErr
}

func (s *fakeSession) URL(context.Context) string { return "https://app.example.com/prospects" }

func (s *fakeSession) ShowStatus(_ context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, text)
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type factory struct {
	session *fakeSession
	calls   atomic.Int32
	err     error
}

func (f *factory) NewSession(context.Context) (executor.Session, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type memStore struct {
	mu    sync.Mutex
	saves int
	last  models.CampaignRun
}

func (m *memStore) SaveRun(run *models.CampaignRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.last = *run
	return nil
}

// button 页面上唯一的交互元素,ref 为 1
func pageBody() *snapshot.RawNode {
	return &snapshot.RawNode{
		Type: snapshot.RawElement, Tag: "body", Width: 800, Height: 600,
		Children: []*snapshot.RawNode{{
			Type: snapshot.RawElement, Tag: "button", Ref: 1, Width: 80, Height: 20,
			Children: []*snapshot.RawNode{{Type: snapshot.RawText, Text: "Go"}},
		}},
	}
}

// servePage 让假页面回答采集脚本、页面 HTML 和高亮脚本
func servePage(p *executortest.Page, notReady int, collects *atomic.Int32) {
	p.EvalFunc = func(fn string, out any) error {
		switch v := out.(type) {
		case *snapshot.PageState:
			n := collects.Add(1)
			if int(n) <= notReady {
				*v = snapshot.PageState{Ready: false, URL: "https://app.example.com"}
				return nil
			}
			*v = snapshot.PageState{Ready: true, URL: "https://app.example.com", Body: pageBody()}
		case *string:
			*v = "<p>page</p>"
		case *int:
			*v = 1
		}
		return nil
	}
}

func newFixture(t *testing.T) (*executortest.Page, *fakeSession, *factory, *memStore) {
	t.Helper()
	page := executortest.NewPage()
	servePage(page, 0, &atomic.Int32{})
	sess := &fakeSession{page: page}
	return page, sess, &factory{session: sess}, &memStore{}
}

func testOptions(store Store) Options {
	return Options{
		Campaign: &config.CampaignConfig{
			MaxSteps:               10,
			MaxConsecutiveFailures: 3,
			DegenerateRetries:      3,
			DegenerateRetryDelayMs: 1,
			NavigationTimeoutMs:    1000,
		},
		Executor: &config.ExecutorConfig{
			VisibleTimeoutMs:     100,
			NetworkIdleTimeoutMs: 10,
			DefaultWaitMs:        10,
			VerifyTimeoutMs:      40,
		},
		Snapshot: &config.SnapshotConfig{MaxDepth: 20, IncludeHighlighting: true},
		Store:    store,
	}
}

func validRequest() models.CampaignRequest {
	return models.CampaignRequest{
		Prompt:    `Find "pizza" restaurants and save them to a list`,
		TargetURL: "app.example.com",
		Username:  "rep@example.com",
		Password:  "hunter2",
	}
}

// scripted 依次返回预设的决策,用完后返回 done
func scripted(decisions ...agent.Decision) (agent.Decider, *[]agent.DecisionInput) {
	var mu sync.Mutex
	var inputs []agent.DecisionInput
	i := 0
	return agent.DeciderFunc(func(_ context.Context, in agent.DecisionInput) (agent.Decision, error) {
		mu.Lock()
		defer mu.Unlock()
		inputs = append(inputs, in)
		if i >= len(decisions) {
			return agent.Decision{Done: true, Summary: "done"}, nil
		}
		d := decisions[i]
		i++
		return d, nil
	}), &inputs
}

func click(loc string) agent.Decision {
	return agent.Decision{Action: models.RawAction{Kind: "click", Locator: loc}}
}

func TestRunner_RejectsIncompleteRequest(t *testing.T) {
	_, _, f, store := newFixture(t)
	decider, _ := scripted()
	r := NewRunner(f, decider, testOptions(store))

	req := validRequest()
	req.Password = ""
	run, err := r.Run(context.Background(), req)

	require.ErrorIs(t, err, models.ErrInvalidRequest)
	assert.Nil(t, run)
	assert.Zero(t, f.calls.Load())
	assert.Zero(t, store.saves)
}

func TestRunner_DecidesUntilDone(t *testing.T) {
	page, sess, f, store := newFixture(t)
	button := page.Add(locator.Ref(1).Expr, true)
	decider, inputs := scripted(click("[0]"))
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Equal(t, "done", run.Summary)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, 1, run.Steps[0].Sequence)
	assert.True(t, run.Steps[0].Outcome.OK())
	assert.Equal(t, 1, button.Clicks)

	assert.Equal(t, []string{"https://app.example.com"}, sess.navigated)
	assert.Equal(t, 1, sess.closeCount())
	assert.Zero(t, r.Active())
	assert.NotEmpty(t, sess.statuses)

	require.Len(t, *inputs, 2)
	first := (*inputs)[0]
	assert.Equal(t, "<p>page</p>", first.PageHTML)
	assert.Equal(t, "https://app.example.com/prospects", first.PageURL)
	assert.Equal(t, 1, first.Snapshot.HighlightCount())
	assert.Len(t, (*inputs)[1].Steps, 1)

	assert.Equal(t, models.RunSucceeded, store.last.Status)
	assert.Equal(t, "******", store.last.Request.Password)
	assert.NotNil(t, store.last.FinishedAt)
}

func TestRunner_LoginMasksPassword(t *testing.T) {
	page, _, f, store := newFixture(t)
	email := page.Add(`input[type="email"]`, true)
	password := page.Add(`input[type="password"]`, true)
	submit := page.Add(`button[type="submit"]`, true)
	decider, _ := scripted()
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, run.Steps, 3)
	for _, s := range run.Steps {
		assert.Equal(t, LoginNote, s.Note)
		assert.True(t, s.Outcome.OK(), s.Outcome.String())
	}
	assert.Equal(t, "rep@example.com", email.Value)
	assert.Equal(t, "hunter2", password.Value)
	assert.Equal(t, 1, submit.Clicks)
	assert.Equal(t, "******", run.Steps[1].Action.Value)
	assert.Equal(t, "rep@example.com", run.Steps[0].Action.Value)
}

func TestRunner_LoginFailureFailsRun(t *testing.T) {
	page, sess, f, store := newFixture(t)
	page.Add(`input[type="password"]`, true)
	decider, inputs := scripted()
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrRunFailed)

	assert.Equal(t, models.RunFailed, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, models.FailureTimeout, run.Steps[0].Outcome.Kind)
	assert.Contains(t, run.Error, "login fill username")
	assert.Empty(t, *inputs)
	assert.Equal(t, 1, sess.closeCount())
}

func searchPage(page *executortest.Page) (input, save *executortest.Element) {
	profile := executor.DefaultSearchProfile()
	input = page.Add(profile.Input.Expr, true)
	save = page.Add(locator.TagText("button", profile.SaveButtonText).Expr, true)
	page.OnPress[profile.Input.Expr] = func(p *executortest.Page) {
		p.SetVisible(profile.Results.Expr, true)
	}
	return input, save
}

func TestRunner_FallbackAfterConsecutiveFailures(t *testing.T) {
	page, _, f, store := newFixture(t)
	input, save := searchPage(page)
	decider, inputs := scripted(click("#missing"), click("#missing"), click("#missing"), click("#missing"))
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.True(t, run.UsedFallback)
	require.Len(t, run.Steps, 6)
	for i, s := range run.Steps {
		assert.Equal(t, i+1, s.Sequence)
	}
	for _, s := range run.Steps[:3] {
		assert.Equal(t, models.FailureTimeout, s.Outcome.Kind)
	}
	for _, s := range run.Steps[3:] {
		assert.Equal(t, executor.FallbackNote, s.Note)
		assert.True(t, s.Outcome.OK(), s.Outcome.String())
	}
	assert.Equal(t, "pizza", input.Value)
	assert.Equal(t, []string{"Enter"}, input.Presses)
	assert.Equal(t, 1, save.Clicks)
	assert.Len(t, *inputs, 3)
	assert.Contains(t, run.Summary, `"pizza"`)
}

func TestRunner_FallbackFailureReportsSteps(t *testing.T) {
	_, sess, f, store := newFixture(t)
	decider, _ := scripted(click("#missing"), click("#missing"), click("#missing"))
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrRunFailed)

	assert.Equal(t, models.RunFailed, run.Status)
	assert.True(t, run.UsedFallback)
	require.Len(t, run.Steps, 4)
	assert.Equal(t, executor.FallbackNote, run.Steps[3].Note)
	assert.False(t, run.Steps[3].Outcome.OK())
	assert.Contains(t, run.Error, "scripted fallback")
	assert.Equal(t, 1, sess.closeCount())
	assert.Equal(t, models.RunFailed, store.last.Status)
	assert.Len(t, store.last.Steps, 4)
}

func TestRunner_SuccessResetsFailureCount(t *testing.T) {
	page, _, f, store := newFixture(t)
	page.Add(locator.Ref(1).Expr, true)
	decider, _ := scripted(click("#missing"), click("#missing"), click("[0]"), click("#missing"), click("#missing"))
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.NoError(t, err)

	assert.False(t, run.UsedFallback)
	assert.Len(t, run.Steps, 5)
}

func TestRunner_MalformedDecisionSubstitutesDefault(t *testing.T) {
	page, _, f, store := newFixture(t)
	profile := executor.DefaultSearchProfile()
	header := page.Add(profile.Header.Expr, true)

	calls := 0
	decider := agent.DeciderFunc(func(context.Context, agent.DecisionInput) (agent.Decision, error) {
		calls++
		if calls == 1 {
			return agent.Decision{Action: models.RawAction{Kind: "hover", Locator: "menu"}}, nil
		}
		return agent.Decision{Done: true}, nil
	})
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, run.Steps, 1)
	assert.Equal(t, SubstitutedNote, run.Steps[0].Note)
	assert.Equal(t, models.ActionClick, run.Steps[0].Action.Kind)
	assert.Equal(t, profile.Header.Expr, run.Steps[0].Action.Locator)
	assert.Equal(t, 1, header.Clicks)
}

func TestRunner_DecisionErrorIsUpstreamFailure(t *testing.T) {
	_, _, f, store := newFixture(t)
	calls := 0
	decider := agent.DeciderFunc(func(context.Context, agent.DecisionInput) (agent.Decision, error) {
		calls++
		if calls == 1 {
			return agent.Decision{}, errors.New("quota exhausted")
		}
		return agent.Decision{Done: true}, nil
	})
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, run.Steps, 1)
	assert.Equal(t, models.FailureUpstreamUnavailable, run.Steps[0].Outcome.Kind)
	assert.Contains(t, run.Steps[0].Outcome.Detail, "quota exhausted")
}

func TestRunner_StaleReferenceIsRecorded(t *testing.T) {
	page, _, f, store := newFixture(t)
	page.Add(locator.Ref(1).Expr, true)

	calls := 0
	var earlier string
	decider := agent.DeciderFunc(func(_ context.Context, in agent.DecisionInput) (agent.Decision, error) {
		calls++
		switch calls {
		case 1:
			h, _, ok := in.Snapshot.ByHighlight(0)
			require.True(t, ok)
			earlier = h.String()
			return click("[0]"), nil
		case 2:
			// handle 来自上一轮快照
			return click(earlier), nil
		}
		return agent.Decision{Done: true}, nil
	})
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, run.Steps, 2)
	assert.True(t, run.Steps[0].Outcome.OK())
	assert.Equal(t, models.FailureStaleHandle, run.Steps[1].Outcome.Kind)
}

func TestRunner_RetriesDegenerateSnapshot(t *testing.T) {
	page, _, f, store := newFixture(t)
	var collects atomic.Int32
	servePage(page, 2, &collects)

	var degenerate bool
	decider := agent.DeciderFunc(func(_ context.Context, in agent.DecisionInput) (agent.Decision, error) {
		degenerate = in.Snapshot.Degenerate()
		return agent.Decision{Done: true}, nil
	})
	r := NewRunner(f, decider, testOptions(store))

	_, err := r.Run(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(3), collects.Load())
	assert.False(t, degenerate)
}

func TestRunner_NavigationFailure(t *testing.T) {
	_, sess, f, store := newFixture(t)
	sess.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	decider, inputs := scripted()
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrRunFailed)

	assert.Equal(t, models.RunFailed, run.Status)
	assert.Contains(t, run.Error, "ERR_NAME_NOT_RESOLVED")
	assert.Empty(t, run.Steps)
	assert.Empty(t, *inputs)
	assert.Equal(t, 1, sess.closeCount())
}

func TestRunner_SessionUnavailable(t *testing.T) {
	_, _, f, store := newFixture(t)
	f.err = executor.ErrUpstreamUnavailable
	decider, _ := scripted()
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(context.Background(), validRequest())
	require.ErrorIs(t, err, executor.ErrUpstreamUnavailable)
	require.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, models.RunFailed, run.Status)
}

func TestRunner_CancelClosesSession(t *testing.T) {
	_, sess, f, store := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decider := agent.DeciderFunc(func(ctx context.Context, _ agent.DecisionInput) (agent.Decision, error) {
		cancel()
		return agent.Decision{}, ctx.Err()
	})
	r := NewRunner(f, decider, testOptions(store))

	run, err := r.Run(ctx, validRequest())
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, models.RunCancelled, run.Status)
	assert.Equal(t, 1, sess.closeCount())
	assert.Equal(t, models.RunCancelled, store.last.Status)
}

func TestRunner_ShutdownClosesActiveSessions(t *testing.T) {
	_, sess, f, store := newFixture(t)
	release := make(chan struct{})
	decider := agent.DeciderFunc(func(ctx context.Context, _ agent.DecisionInput) (agent.Decision, error) {
		select {
		case <-release:
			return agent.Decision{Done: true}, nil
		case <-ctx.Done():
			return agent.Decision{}, ctx.Err()
		}
	})
	r := NewRunner(f, decider, testOptions(store))

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), validRequest())
		done <- err
	}()

	require.Eventually(t, func() bool { return r.Active() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, 1, sess.closeCount())

	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, r.Active())
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestSearchQuery(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{`Find "pizza" restaurants`, "pizza"},
		{"Search for “coffee shops” in Austin", "coffee shops"},
		{"  dentists near me ", "dentists near me"},
		{`Save ""`, `Save ""`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, searchQuery(tt.prompt), tt.prompt)
	}
}
