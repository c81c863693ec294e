package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEvaluator 返回预先准备的页面状态,并记录高亮脚本调用
type fakeEvaluator struct {
	state      PageState
	err        error
	highlights []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, fn string, out any) error {
	if f.err != nil {
		return f.err
	}
	if strings.Contains(fn, "MAX_DEPTH") {
		data, err := json.Marshal(f.state)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
	f.highlights = append(f.highlights, fn)
	return json.Unmarshal([]byte("1"), out)
}

func liveBody() *RawNode {
	body := visibleEl("body", nil)
	body.Ref = 1
	btn := visibleEl("button", nil)
	btn.Ref = 2
	btn.Children = []*RawNode{{Type: RawText, Text: "Save to List"}}
	input := visibleEl("input", map[string]string{"placeholder": "Search"})
	input.Ref = 3
	body.Children = []*RawNode{btn, input}
	return body
}

func TestCaptureBuildsAndHighlights(t *testing.T) {
	ev := &fakeEvaluator{state: PageState{Ready: true, URL: "https://app.example.com", Body: liveBody()}}

	snap, state, err := Capture(context.Background(), ev, NewBuilder(&HandleAllocator{}), Options{IncludeHighlighting: true})
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", state.URL)
	assert.Equal(t, 2, snap.HighlightCount())
	_, el, ok := snap.ByHighlight(1)
	require.True(t, ok)
	assert.Equal(t, 3, el.Ref)

	require.Len(t, ev.highlights, 1)
	assert.Contains(t, ev.highlights[0], "const refs = [2,3];")
}

func TestCaptureFocusHighlight(t *testing.T) {
	ev := &fakeEvaluator{state: PageState{Ready: true, Body: liveBody()}}
	focus := uint(1)

	_, _, err := Capture(context.Background(), ev, NewBuilder(nil), Options{IncludeHighlighting: true, FocusHighlightIndex: &focus})
	require.NoError(t, err)
	require.Len(t, ev.highlights, 1)
	assert.Contains(t, ev.highlights[0], "const refs = [3];")
}

func TestCaptureNotReadyIsDegenerate(t *testing.T) {
	ev := &fakeEvaluator{state: PageState{Ready: false}}

	snap, _, err := Capture(context.Background(), ev, NewBuilder(nil), Options{IncludeHighlighting: true})
	require.NoError(t, err)
	assert.True(t, snap.Degenerate())
	assert.Empty(t, ev.highlights)
}

func TestCaptureEvaluateError(t *testing.T) {
	ev := &fakeEvaluator{err: errors.New("target closed")}
	_, _, err := Capture(context.Background(), ev, NewBuilder(nil), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target closed")
}

func TestTrackerRejectsStaleHandles(t *testing.T) {
	ev := &fakeEvaluator{state: PageState{Ready: true, Body: liveBody()}}
	tr := NewTracker(ev, Options{})

	first, err := tr.Capture(context.Background())
	require.NoError(t, err)
	h, _, ok := first.ByHighlight(0)
	require.True(t, ok)

	el, err := tr.Resolve(h)
	require.NoError(t, err)
	assert.Equal(t, "button", el.Tag)

	tr.Invalidate()
	_, err = tr.Resolve(h)
	require.ErrorIs(t, err, ErrStaleHandle)

	_, err = tr.Capture(context.Background())
	require.NoError(t, err)
	_, err = tr.Resolve(h)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.NotSame(t, first, tr.Current())
}

func TestCollectorScriptEmbedsConstants(t *testing.T) {
	js := CollectorScript(5)
	assert.Contains(t, js, "const MAX_DEPTH = 5;")
	assert.Contains(t, js, `const OVERLAY_ID = "resquared-automation-status";`)
	assert.Contains(t, js, `const REF = "data-wing-ref";`)
	assert.Contains(t, CollectorScript(0), "const MAX_DEPTH = 20;")
}
