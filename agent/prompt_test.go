package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

const prospectPage = `<html><body>
<h1>Prospects</h1>
<div class="search-tab-filters-list-item-header">Search</div>
<input placeholder="Search" style="display:none">
<button>Save to List</button>
</body></html>`

func TestPromptBuilder_Build(t *testing.T) {
	raw, err := snapshot.FromHTML(prospectPage)
	require.NoError(t, err)
	snap := snapshot.NewBuilder(&snapshot.HandleAllocator{}).Build(raw, snapshot.Options{})

	in := DecisionInput{
		Snapshot: snap,
		Prompt:   `Find "pizza" restaurants and save them to a list`,
		PageURL:  "https://app.example.com/prospects",
		PageHTML: `<h1>Prospects</h1><p>Find <b>leads</b></p>`,
		Steps: []models.AutomationStep{
			{Sequence: 1, Action: models.Action{Kind: models.ActionClick, Locator: "[0]"}, Outcome: models.Success()},
			{Sequence: 2, Action: models.Action{Kind: models.ActionFill, Locator: "search box", Value: "pizza"},
				Outcome: models.Failure(models.FailureTimeout, "input hidden")},
		},
	}

	out := NewPromptBuilder(0).Build(in)

	assert.Contains(t, out, `Find "pizza" restaurants`)
	assert.Contains(t, out, "https://app.example.com/prospects")
	assert.Contains(t, out, `1. click "[0]" -> success`)
	assert.Contains(t, out, `2. fill "search box" value="pizza" -> failure(timeout): input hidden`)
	assert.Contains(t, out, "Save to List")
	assert.Contains(t, out, "# Prospects")
	assert.Contains(t, out, "**leads**")
}

func TestPromptBuilder_TruncatesPageAndSteps(t *testing.T) {
	var steps []models.AutomationStep
	for i := 1; i <= 20; i++ {
		steps = append(steps, models.AutomationStep{Sequence: i, Action: models.Action{Kind: models.ActionWait}, Outcome: models.Success()})
	}
	in := DecisionInput{
		Prompt:   "goal",
		Steps:    steps,
		PageHTML: "<p>" + strings.Repeat("x", 500) + "</p>",
	}

	out := NewPromptBuilder(100).Build(in)

	assert.Contains(t, out, "(5 earlier steps omitted)")
	assert.NotContains(t, out, "\n5. wait")
	assert.Contains(t, out, "\n6. wait")
	assert.Contains(t, out, strings.Repeat("x", 100)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 101))
	assert.Contains(t, out, "Page is not ready")
}

func TestDeciderFunc(t *testing.T) {
	var d Decider = DeciderFunc(func(_ context.Context, in DecisionInput) (Decision, error) {
		return Decision{Done: true, Summary: fmt.Sprintf("%d steps", len(in.Steps))}, nil
	})
	got, err := d.Decide(context.Background(), DecisionInput{})
	require.NoError(t, err)
	assert.Equal(t, "0 steps", got.Summary)
}
