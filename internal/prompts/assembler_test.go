package prompts

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defaultChain holds one node per default-enabled built-in, in catalog order.
func defaultChain(reg *Registry) PromptChain {
	var nodes []ChainNode
	for _, t := range reg.List() {
		if t.DefaultEnabled {
			nodes = append(nodes, ChainNode{ID: t.Slug, Template: t.ID, Enabled: true, Order: t.DefaultOrder})
		}
	}
	return PromptChain{ID: "chain-1", Name: "default", Scope: ScopeGlobal, Nodes: nodes}
}

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	return NewAssembler(builtinRegistry(t), AssemblerConfig{}, zerolog.Nop())
}

func lateEvening() RuntimeContext {
	rc := runtimeAt(23, 30)
	rc.TurnCount = intPtr(4)
	return rc
}

func withNode(c PromptChain, n ChainNode) PromptChain {
	c = c.clone()
	c.Nodes = append(c.Nodes, n)
	return c
}

func TestAssemble_DefaultChain(t *testing.T) {
	a := newTestAssembler(t)
	out, err := a.Assemble(defaultChain(a.Registry()), lateEvening())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"identity", "compassion", "witness", "release", "continuance",
		"journal", "user-model", "datetime", "session",
	}, out.Sections)
	assert.Empty(t, out.Warnings)
	assert.True(t, out.Validation.IsValid)

	parts := strings.Split(out.FullText, sectionSeparator)
	require.Len(t, parts, len(out.Sections))
	assert.True(t, strings.HasPrefix(parts[0], "You are Cass,"))
	assert.True(t, strings.HasPrefix(parts[1], "VOW OF COMPASSION"))
	assert.Equal(t, "Current time: Saturday 2026-03-14 23:30", parts[7])
	assert.Equal(t, "This conversation is 4 turns long.", parts[8])
	assert.Positive(t, out.TokenEstimate)
}

func TestAssemble_LockedIncludedWhenDisabledOrConditioned(t *testing.T) {
	a := newTestAssembler(t)
	chain := defaultChain(a.Registry())
	for i, n := range chain.Nodes {
		switch n.Template {
		case "vow-compassion":
			chain.Nodes[i].Enabled = false
		case "vow-witness":
			chain.Nodes[i].Condition = "false"
		}
	}

	out, err := a.Assemble(chain, lateEvening())
	require.NoError(t, err)
	assert.Contains(t, out.Sections, "compassion")
	assert.Contains(t, out.Sections, "witness")
	assert.Contains(t, out.FullText, "VOW OF COMPASSION")
	assert.Contains(t, out.FullText, "VOW OF WITNESS")
}

func TestAssemble_LockedAbsentIsFatal(t *testing.T) {
	a := newTestAssembler(t)
	chain := defaultChain(a.Registry())
	var kept []ChainNode
	for _, n := range chain.Nodes {
		if n.Template != "vow-witness" {
			kept = append(kept, n)
		}
	}
	chain.Nodes = kept

	out, err := a.Assemble(chain, lateEvening())
	assert.Nil(t, out)
	var serr *SafetyInvariantError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"witness"}, serr.Templates)

	_, err = a.AssembleNodes(nil, lateEvening())
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"compassion", "witness"}, serr.Templates)
}

func TestAssemble_LockedRenderFailureIsFatal(t *testing.T) {
	reg, err := NewRegistry(NodeTemplate{
		ID:             "core-anchor",
		Name:           "Anchor",
		Slug:           "anchor",
		Category:       CategoryCore,
		Template:       "Anchor for {{VAR:who}}",
		Params:         map[string]ParamSpec{"who": {Type: ParamString, Required: true}},
		IsLocked:       true,
		DefaultEnabled: true,
	})
	require.NoError(t, err)
	a := NewAssembler(reg, AssemblerConfig{}, zerolog.Nop())

	_, err = a.AssembleNodes([]ChainNode{{ID: "n1", Template: "anchor", Enabled: true}}, RuntimeContext{})
	var serr *SafetyInvariantError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"anchor"}, serr.Templates)

	out, err := a.AssembleNodes([]ChainNode{{ID: "n1", Template: "anchor", Params: map[string]any{"who": "Ada"}}}, RuntimeContext{})
	require.NoError(t, err)
	assert.Equal(t, "Anchor for Ada", out.FullText)
}

func TestAssemble_MissingTemplateDegradesGracefully(t *testing.T) {
	a := newTestAssembler(t)
	base := defaultChain(a.Registry())
	want, err := a.Assemble(base, lateEvening())
	require.NoError(t, err)

	got, err := a.Assemble(withNode(base, ChainNode{ID: "g", Template: "ghost", Enabled: true, Order: 15}), lateEvening())
	require.NoError(t, err)
	assert.Equal(t, []string{"missing template: ghost"}, got.Warnings)
	assert.Equal(t, want.FullText, got.FullText)
	assert.Equal(t, want.Sections, got.Sections)
	assert.Equal(t, want.TokenEstimate, got.TokenEstimate)
	assert.Contains(t, got.Validation.Warnings, `unknown template "ghost"`)
}

func TestAssemble_Idempotent(t *testing.T) {
	a := newTestAssembler(t)
	chain := withNode(defaultChain(a.Registry()), ChainNode{
		ID: "late", Template: "late-night", Enabled: true, Order: 91,
		Condition: `time_between("22:00", "06:00")`,
	})
	rc := lateEvening()

	first, err := a.Assemble(chain, rc)
	require.NoError(t, err)
	second, err := a.Assemble(chain, rc)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("assembly is not deterministic (-first +second):\n%s", diff)
	}
}

func TestAssemble_TokenEstimateMonotonic(t *testing.T) {
	a := newTestAssembler(t)
	chain := defaultChain(a.Registry())
	rc := lateEvening()

	prev, err := a.Assemble(chain, rc)
	require.NoError(t, err)
	for _, slug := range []string{"web", "calendar", "dreaming", "gestures", "wiki"} {
		tmpl, err := a.Registry().Get(slug)
		require.NoError(t, err)
		chain = withNode(chain, ChainNode{ID: slug, Template: tmpl.ID, Enabled: true, Order: tmpl.DefaultOrder})

		next, err := a.Assemble(chain, rc)
		require.NoError(t, err)
		assert.Greater(t, next.TokenEstimate, prev.TokenEstimate, "adding %s", slug)
		assert.Len(t, next.Sections, len(prev.Sections)+1)
		prev = next
	}
}

func TestEstimateTokens(t *testing.T) {
	a := NewAssembler(nil, AssemblerConfig{}, zerolog.Nop())
	text := func(n int) string { return strings.Repeat("x", n) }

	assert.Equal(t, 10, a.estimateTokens(NodeTemplate{TokenEstimate: 10}, text(40)))
	assert.Equal(t, 10, a.estimateTokens(NodeTemplate{TokenEstimate: 10}, text(48)), "within threshold")
	assert.Equal(t, 25, a.estimateTokens(NodeTemplate{TokenEstimate: 10}, text(100)), "deviation over threshold")
	assert.Equal(t, 11, a.estimateTokens(NodeTemplate{}, text(41)), "no static estimate")
	assert.Equal(t, 2, a.estimateTokens(NodeTemplate{}, "héllo"), "counts runes")

	wide := NewAssembler(nil, AssemblerConfig{CharsPerToken: 2, DeviationThreshold: 5}, zerolog.Nop())
	assert.Equal(t, 10, wide.estimateTokens(NodeTemplate{TokenEstimate: 10}, text(100)))
	assert.Equal(t, 50, wide.estimateTokens(NodeTemplate{}, text(100)))
}

func TestAssemble_OrderFollowsOrderField(t *testing.T) {
	a := newTestAssembler(t)
	chain := defaultChain(a.Registry())
	for i := range chain.Nodes {
		chain.Nodes[i].Order = 100 - i
	}
	chain = withNode(chain, ChainNode{ID: "d", Template: "dreaming", Enabled: true, Order: 0})
	chain = withNode(chain, ChainNode{ID: "c", Template: "calendar", Enabled: true, Order: 0})

	out, err := a.Assemble(chain, lateEvening())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dreaming", "calendar",
		"session", "datetime", "user-model", "journal", "continuance", "release", "witness", "compassion", "identity",
	}, out.Sections)
}

func TestAssemble_Conditions(t *testing.T) {
	a := newTestAssembler(t)
	chain := withNode(defaultChain(a.Registry()), ChainNode{
		ID: "late", Template: "late-night", Enabled: true, Order: 91,
		Condition: `time_between("22:00", "06:00")`,
	})
	chain = withNode(chain, ChainNode{ID: "dream", Template: "dreaming", Enabled: false, Order: 72})
	chain = withNode(chain, ChainNode{ID: "web", Template: "web", Enabled: true, Order: 52, Condition: "turn_count >"})

	night, err := a.Assemble(chain, lateEvening())
	require.NoError(t, err)
	assert.Contains(t, night.Sections, "late-night")
	assert.NotContains(t, night.Sections, "dreaming", "disabled")
	assert.NotContains(t, night.Sections, "web", "malformed condition")
	require.Len(t, night.Warnings, 1)
	assert.Contains(t, night.Warnings[0], "condition on web ignored")

	noon := lateEvening()
	noon.Now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	day, err := a.Assemble(chain, noon)
	require.NoError(t, err)
	assert.NotContains(t, day.Sections, "late-night")
	assert.Less(t, day.TokenEstimate, night.TokenEstimate)
}

func TestAssemble_Duplicates(t *testing.T) {
	a := newTestAssembler(t)
	chain := defaultChain(a.Registry())
	chain = withNode(chain, ChainNode{ID: "d1", Template: "dreaming", Enabled: true, Order: 72})
	chain = withNode(chain, ChainNode{ID: "d2", Template: "feature-dreaming", Enabled: true, Order: 73})
	chain = withNode(chain, ChainNode{ID: "c2", Template: "compassion", Enabled: true, Order: 80, Params: map[string]any{"x": 1}})
	chain = withNode(chain, ChainNode{ID: "s1", Template: SupplementaryVowTemplate, Enabled: true, Order: 19,
		Params: map[string]any{"name": "PATIENCE", "text": "Take your time."}})
	chain = withNode(chain, ChainNode{ID: "s2", Template: SupplementaryVowTemplate, Enabled: true, Order: 19,
		Params: map[string]any{"name": "PLAY", "text": "Make room for fun."}})

	out, err := a.Assemble(chain, lateEvening())
	require.NoError(t, err)

	count := map[string]int{}
	for _, s := range out.Sections {
		count[s]++
	}
	assert.Equal(t, 1, count["dreaming"])
	assert.Equal(t, 1, count["compassion"])
	assert.Equal(t, 2, count[SupplementaryVowTemplate])
	assert.Equal(t, []string{
		"duplicate template dreaming skipped (node d2)",
		"duplicate template compassion skipped (node c2)",
	}, out.Warnings)
	assert.Contains(t, out.FullText, "VOW OF PATIENCE\nTake your time.")
	assert.Contains(t, out.FullText, "VOW OF PLAY\nMake room for fun.")
}

func TestAssemble_ExcludedNodesDoNotShadowVariants(t *testing.T) {
	a := newTestAssembler(t)

	t.Run("disabled first", func(t *testing.T) {
		chain := withNode(defaultChain(a.Registry()), ChainNode{ID: "g-off", Template: "gestures", Enabled: false, Order: 500})
		chain = withNode(chain, ChainNode{ID: "g-on", Template: "gestures", Enabled: true, Order: 510})

		out, err := a.Assemble(chain, lateEvening())
		require.NoError(t, err)
		assert.Contains(t, out.Sections, "gestures")
		assert.Empty(t, out.Warnings)
	})

	t.Run("conditional variants", func(t *testing.T) {
		chain := withNode(defaultChain(a.Registry()), ChainNode{ID: "g-am", Template: "gestures", Enabled: true, Order: 500,
			Condition: "hour < 12", Params: map[string]any{"style": "smile"}})
		chain = withNode(chain, ChainNode{ID: "g-pm", Template: "gestures", Enabled: true, Order: 510,
			Condition: "hour >= 18", Params: map[string]any{"style": "smile"}})

		out, err := a.Assemble(chain, lateEvening())
		require.NoError(t, err)
		assert.Empty(t, out.Warnings)
		assert.Contains(t, out.FullText, "<gesture:smile>")

		morning := runtimeAt(9, 0)
		morning.TurnCount = intPtr(4)
		out, err = a.Assemble(chain, morning)
		require.NoError(t, err)
		assert.Empty(t, out.Warnings)
		assert.Contains(t, out.Sections, "gestures")
	})

	t.Run("dropped render leaves key free", func(t *testing.T) {
		chain := withNode(defaultChain(a.Registry()), ChainNode{ID: "w-bad", Template: "web", Enabled: true, Order: 500,
			Params: map[string]any{"depth": "endless"}})
		chain = withNode(chain, ChainNode{ID: "w-ok", Template: "web", Enabled: true, Order: 510,
			Params: map[string]any{"depth": "endless"}})

		out, err := a.Assemble(chain, lateEvening())
		require.NoError(t, err)
		require.Len(t, out.Warnings, 2)
		assert.True(t, strings.HasPrefix(out.Warnings[0], "node web dropped:"))
		assert.True(t, strings.HasPrefix(out.Warnings[1], "node web dropped:"), "a failed render does not make the next node a duplicate")
	})

	t.Run("both included", func(t *testing.T) {
		chain := withNode(defaultChain(a.Registry()), ChainNode{ID: "g1", Template: "gestures", Enabled: true, Order: 500, Condition: "hour >= 18"})
		chain = withNode(chain, ChainNode{ID: "g2", Template: "gestures", Enabled: true, Order: 510, Condition: "turn_count > 1"})

		out, err := a.Assemble(chain, lateEvening())
		require.NoError(t, err)
		assert.Equal(t, []string{"duplicate template gestures skipped (node g2)"}, out.Warnings)
	})
}

func TestAssemble_UnlockedRenderFailureDropsNode(t *testing.T) {
	a := newTestAssembler(t)
	chain := withNode(defaultChain(a.Registry()), ChainNode{ID: "s", Template: SupplementaryVowTemplate, Enabled: true, Order: 19})
	chain = withNode(chain, ChainNode{ID: "w", Template: "web", Enabled: true, Order: 52, Params: map[string]any{"depth": "endless"}})

	out, err := a.Assemble(chain, lateEvening())
	require.NoError(t, err)
	assert.NotContains(t, out.Sections, SupplementaryVowTemplate)
	assert.NotContains(t, out.Sections, "web")
	require.Len(t, out.Warnings, 2)
	assert.True(t, strings.HasPrefix(out.Warnings[0], "node supplementary-vow dropped:"))
	assert.True(t, strings.HasPrefix(out.Warnings[1], "node web dropped:"))
}

func TestAssemble_RuntimeValuesAndOverrides(t *testing.T) {
	a := newTestAssembler(t)
	chain := defaultChain(a.Registry())
	for i, n := range chain.Nodes {
		if n.Template == "runtime-session" {
			chain.Nodes[i].Params = map[string]any{"turn_count": 99}
		}
	}

	out, err := a.Assemble(chain, lateEvening())
	require.NoError(t, err)
	assert.Contains(t, out.FullText, "This conversation is 99 turns long.")

	out, err = a.Assemble(defaultChain(a.Registry()), RuntimeContext{})
	require.NoError(t, err)
	assert.Contains(t, out.FullText, "Current time: unknown day unknown date\n")
	assert.Contains(t, out.FullText, "This conversation is 0 turns long.")
}

func TestContextParams(t *testing.T) {
	reg := builtinRegistry(t)
	get := func(ref string) NodeTemplate {
		tmpl, err := reg.Get(ref)
		require.NoError(t, err)
		return tmpl
	}
	rc := lateEvening()

	assert.Equal(t, map[string]any{
		"date":    "2026-03-14",
		"time":    "23:30",
		"weekday": "Saturday",
	}, contextParams(get("datetime"), rc))
	assert.Equal(t, map[string]any{"turn_count": 4}, contextParams(get("session"), rc))
	assert.Empty(t, contextParams(get("identity"), rc))
	assert.Nil(t, contextParams(get("dreaming"), rc))
	assert.Empty(t, contextParams(get("datetime"), RuntimeContext{}))
}

func TestNormalizeSection(t *testing.T) {
	assert.Equal(t, "a\n\nb", normalizeSection("  a\r\n\n\n\nb  \n"))
	assert.Equal(t, "", normalizeSection("\n \n"))
}
