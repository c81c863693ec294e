package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

func exprs(locs []Locator) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.Expr
	}
	return out
}

func strategies(locs []Locator) []Strategy {
	out := make([]Strategy, len(locs))
	for i, l := range locs {
		out[i] = l.Strategy
	}
	return out
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, `input[placeholder="Search"]`, AttributeExact("input", "placeholder", "Search").Expr)
	assert.Equal(t, `[aria-label="Say \"hi\""]`, AttributeExact("", "aria-label", `Say "hi"`).Expr)
	assert.Equal(t, `//button[contains(normalize-space(.), "Save to List")]`, TagText("button", "Save to List").Expr)
	assert.Equal(t, `[class*="save-to-list"]`, ClassContains("save-to-list").Expr)
	assert.Equal(t, `[data-wing-ref="12"]`, Ref(12).Expr)
	assert.Equal(t, KindXPath, TextScan("Pizza").Kind)
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `"it's"`, xpathLiteral("it's"))
	assert.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "quoted", '"')`, xpathLiteral(`it's "quoted"`))
}

func TestResolveFreeTextOrder(t *testing.T) {
	r := &Resolver{}
	locs, err := r.Resolve("Save to List")
	require.NoError(t, err)

	assert.Equal(t, []Strategy{
		StrategyAttributeExact, StrategyAttributeExact, StrategyAttributeExact,
		StrategyTagText, StrategyTagText,
		StrategyClassContains,
		StrategyTextScan,
	}, strategies(locs))
	assert.Equal(t, `[placeholder="Save to List"]`, locs[0].Expr)
	assert.Equal(t, `//button[contains(normalize-space(.), "Save to List")]`, locs[3].Expr)
	assert.Equal(t, `//a[contains(normalize-space(.), "Save to List")]`, locs[4].Expr)
	assert.Equal(t, `[class*="save-to-list"]`, locs[5].Expr)
}

func TestResolveSingleWordAddsID(t *testing.T) {
	locs, err := (&Resolver{}).Resolve("Search")
	require.NoError(t, err)
	assert.Contains(t, exprs(locs), `[id="Search"]`)
	assert.Equal(t, `[placeholder="Search"]`, locs[0].Expr)
}

func TestResolveInfersTag(t *testing.T) {
	locs, err := (&Resolver{}).Resolve("the Save to List button")
	require.NoError(t, err)
	assert.Equal(t, `button[placeholder="Save to List"]`, locs[0].Expr)
	assert.Contains(t, exprs(locs), `//button[contains(normalize-space(.), "Save to List")]`)
	assert.NotContains(t, exprs(locs), `//a[contains(normalize-space(.), "Save to List")]`)

	locs, err = (&Resolver{}).Resolve(`link "Home"`)
	require.NoError(t, err)
	assert.Contains(t, exprs(locs), `//a[contains(normalize-space(.), "Home")]`)
}

func TestResolveConcreteSelectorsFirst(t *testing.T) {
	r := &Resolver{}

	locs, err := r.Resolve(`input[placeholder="Search"]`)
	require.NoError(t, err)
	require.NotEmpty(t, locs)
	assert.Equal(t, CSS(`input[placeholder="Search"]`), locs[0])
	assert.Contains(t, exprs(locs), `[placeholder="Search"]`)

	locs, err = r.Resolve(".search-tab-filters-list-item-header")
	require.NoError(t, err)
	assert.Equal(t, []Locator{CSS(".search-tab-filters-list-item-header")}, locs)

	locs, err = r.Resolve("//div[@id='x']")
	require.NoError(t, err)
	assert.Equal(t, []Locator{XPath("//div[@id='x']")}, locs)

	locs, err = r.Resolve("xpath=(//button)[2]")
	require.NoError(t, err)
	assert.Equal(t, []Locator{XPath("(//button)[2]")}, locs)
}

func TestResolveAttributePair(t *testing.T) {
	locs, err := (&Resolver{}).Resolve(`placeholder="Search companies"`)
	require.NoError(t, err)
	assert.Equal(t, `[placeholder="Search companies"]`, locs[0].Expr)
	assert.Equal(t, StrategyTextScan, locs[len(locs)-1].Strategy)
}

func TestResolveEmpty(t *testing.T) {
	locs, err := (&Resolver{}).Resolve("   ")
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestResolveDedupes(t *testing.T) {
	locs, err := (&Resolver{}).Resolve(`[placeholder="Search"]`)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, l := range locs {
		key := string(l.Kind) + l.Expr
		assert.False(t, seen[key], "duplicate %s", l)
		seen[key] = true
	}
}

func liveSnapshot(t *testing.T, b *snapshot.Builder) *snapshot.Snapshot {
	t.Helper()
	body := &snapshot.RawNode{Type: snapshot.RawElement, Tag: "body", Width: 100, Height: 100, Ref: 1}
	btn := &snapshot.RawNode{
		Type: snapshot.RawElement, Tag: "button", Width: 10, Height: 10, Ref: 2,
		Attributes: map[string]string{"aria-label": "Save"},
		Children:   []*snapshot.RawNode{{Type: snapshot.RawText, Text: "Save to List"}},
	}
	search := &snapshot.RawNode{
		Type: snapshot.RawElement, Tag: "input", Width: 10, Height: 10, Ref: 3,
		Attributes: map[string]string{"placeholder": "Search"},
	}
	box := &snapshot.RawNode{
		Type: snapshot.RawElement, Tag: "input", Width: 10, Height: 10, Ref: 4,
		Attributes: map[string]string{"type": "checkbox"},
	}
	body.Children = []*snapshot.RawNode{btn, search, box}
	return b.Build(body, snapshot.Options{})
}

func TestResolveHighlightIndex(t *testing.T) {
	snap := liveSnapshot(t, snapshot.NewBuilder(&snapshot.HandleAllocator{}))
	r := &Resolver{Snapshot: snap}

	for _, raw := range []string{"0", "#0", "[0]", "element #0", "Clickable Element [0]"} {
		locs, err := r.Resolve(raw)
		require.NoError(t, err, raw)
		require.NotEmpty(t, locs, raw)
		assert.Equal(t, Ref(2), locs[0], raw)
		assert.Contains(t, exprs(locs), `button[aria-label="Save"]`)
		assert.Contains(t, exprs(locs), `//button[contains(normalize-space(.), "Save to List")]`)
	}

	_, err := r.Resolve("#9")
	assert.Error(t, err)
}

func TestResolveNumericTextOutsideSnapshot(t *testing.T) {
	snap := liveSnapshot(t, snapshot.NewBuilder(&snapshot.HandleAllocator{}))

	for _, r := range []*Resolver{{Snapshot: snap}, {}} {
		locs, err := r.Resolve("2024")
		require.NoError(t, err)
		assert.Contains(t, locs, TextScan("2024"))
		assert.NotContains(t, locs, Ref(2))
	}

	_, err := (&Resolver{Snapshot: snap}).Resolve("[2024]")
	assert.Error(t, err, "bracketed references stay strict")

	locs, err := (&Resolver{Snapshot: snap}).Resolve("1")
	require.NoError(t, err)
	assert.Equal(t, Ref(3), locs[0], "in-range numbers still resolve to the element")
}

func TestResolveHandle(t *testing.T) {
	b := snapshot.NewBuilder(&snapshot.HandleAllocator{})
	old := liveSnapshot(t, b)
	h, _, ok := old.ByHighlight(1)
	require.True(t, ok)

	locs, err := (&Resolver{Snapshot: old}).Resolve(h.String())
	require.NoError(t, err)
	assert.Equal(t, Ref(3), locs[0])

	current := liveSnapshot(t, b)
	_, err = (&Resolver{Snapshot: current}).Resolve(h.String())
	assert.ErrorIs(t, err, snapshot.ErrStaleHandle)

	_, err = (&Resolver{}).Resolve(h.String())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestClassify(t *testing.T) {
	snap := liveSnapshot(t, snapshot.NewBuilder(nil))
	r := &Resolver{Snapshot: snap}

	assert.Equal(t, ClassSearchBox, r.Classify(`input[placeholder="Search"]`))
	assert.Equal(t, ClassSearchBox, r.Classify("Search"))
	assert.Equal(t, ClassSearchBox, r.Classify("search box"))
	assert.Equal(t, ClassSearchBox, r.Classify("#1"))
	assert.Equal(t, ClassCheckbox, r.Classify("#2"))
	assert.Equal(t, ClassCheckbox, r.Classify("first result checkbox"))
	assert.Equal(t, ClassGeneral, r.Classify("#0"))
	assert.Equal(t, ClassGeneral, r.Classify("Save to List"))
	assert.Equal(t, ClassGeneral, r.Classify("#42"))

	custom := &Resolver{SearchPlaceholder: "Find people"}
	assert.Equal(t, ClassSearchBox, custom.Classify(`[placeholder="Find people"]`))
	assert.Equal(t, ClassGeneral, custom.Classify("Search"))
}
