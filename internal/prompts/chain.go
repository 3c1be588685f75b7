package prompts

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// ValidateChain checks a chain before it is saved. The returned error joins
// every ConditionSyntaxError and means the chain must not be saved; result
// errors block activation.
func ValidateChain(chain PromptChain, reg *Registry) (ValidationResult, error) {
	res, condErrs := validateNodes(chain.Nodes, reg)
	if strings.TrimSpace(chain.Name) == "" {
		res.addError("chain name is required")
	}
	return res, errors.Join(condErrs...)
}

func validateNodes(nodes []ChainNode, reg *Registry) (ValidationResult, []error) {
	res := ValidationResult{IsValid: true, Errors: []string{}, Warnings: []string{}}
	var condErrs []error
	seen := map[string]bool{}
	present := map[string]bool{}

	for i, node := range orderNodes(nodes) {
		if err := ValidateCondition(node.Condition); err != nil {
			condErrs = append(condErrs, err)
		}
		if strings.TrimSpace(node.Template) == "" {
			res.addError("node %d has no template reference", i+1)
			continue
		}
		t, err := reg.Get(node.Template)
		if err != nil {
			res.addWarning("unknown template %q", node.Template)
			continue
		}
		// Nodes gated by enabled or a condition are variants, not duplicates.
		if t.IsLocked || (node.Enabled && strings.TrimSpace(node.Condition) == "") {
			key := nodeKey(t, node)
			if seen[key] {
				res.addWarning("duplicate node for template %s will be skipped", t.Slug)
			}
			seen[key] = true
		}
		present[t.ID] = true

		if t.IsLocked && !node.Enabled {
			res.addWarning("locked template %s is disabled but will always be included", t.Slug)
		}
		if t.IsLocked && strings.TrimSpace(node.Condition) != "" {
			res.addWarning("condition on locked template %s is ignored", t.Slug)
		}
		for _, name := range sortedKeys(node.Params) {
			spec, ok := t.Params[name]
			if !ok {
				res.addWarning("node %s overrides undeclared parameter %q", t.Slug, name)
				continue
			}
			if _, err := formatValue(spec, node.Params[name]); err != nil {
				res.addWarning("node %s parameter %q: %v", t.Slug, name, err)
			}
		}
	}

	for _, t := range reg.Locked() {
		if !present[t.ID] {
			res.addError("locked template %s is missing from the chain", t.Slug)
		}
	}
	return res, condErrs
}

// nodeKey identifies a node for duplicate detection: the same template with
// the same parameter overrides. Locked templates may appear only once.
func nodeKey(t NodeTemplate, node ChainNode) string {
	if t.IsLocked || len(node.Params) == 0 {
		return t.ID
	}
	b, err := json.Marshal(node.Params)
	if err != nil {
		return t.ID
	}
	return t.ID + "\x00" + string(b)
}

// ChainFromComponents composes a chain from a components configuration.
// References that do not resolve to a template of the expected category are
// returned as warnings.
func ChainFromComponents(cfg ComponentsConfig, reg *Registry) (PromptChain, []string) {
	var warnings []string
	var nodes []ChainNode
	added := map[string]bool{}

	add := func(t NodeTemplate) {
		if added[t.ID] {
			return
		}
		added[t.ID] = true
		nodes = append(nodes, ChainNode{ID: t.Slug, Template: t.ID, Enabled: true, Order: t.DefaultOrder})
	}
	resolve := func(kind string, ref string, want Category) (NodeTemplate, bool) {
		t, err := reg.Get(ref)
		if err != nil {
			warnings = append(warnings, "unknown "+kind+" "+ref)
			return NodeTemplate{}, false
		}
		if t.Category != want {
			warnings = append(warnings, kind+" "+ref+" is a "+t.Category.String()+" template")
			return NodeTemplate{}, false
		}
		return t, true
	}

	for _, t := range reg.Locked() {
		add(t)
	}
	for _, t := range reg.List(CategoryCore, CategoryRuntime) {
		if t.DefaultEnabled {
			add(t)
		}
	}
	for _, v := range cfg.CoreVows {
		if !v.Enabled {
			continue
		}
		if t, ok := resolve("vow", v.ID, CategoryVow); ok {
			add(t)
		}
	}
	toggles := []struct {
		kind string
		m    map[string]bool
		cat  Category
	}{
		{"memory system", cfg.MemorySystems, CategoryContext},
		{"tool category", cfg.ToolCategories, CategoryTools},
		{"feature", cfg.Features, CategoryFeature},
	}
	for _, tg := range toggles {
		for _, id := range sortedKeys(tg.m) {
			if !tg.m[id] {
				continue
			}
			if t, ok := resolve(tg.kind, id, tg.cat); ok {
				add(t)
			}
		}
	}

	if sv, err := reg.Get(SupplementaryVowTemplate); err == nil {
		for _, v := range cfg.SupplementaryVows {
			if !v.Enabled {
				continue
			}
			nodes = append(nodes, ChainNode{
				ID:       "supplementary-" + v.ID,
				Template: sv.ID,
				Params:   map[string]any{"name": v.Name, "text": v.Text},
				Enabled:  true,
				Order:    sv.DefaultOrder,
			})
		}
	} else if len(cfg.SupplementaryVows) > 0 {
		warnings = append(warnings, "supplementary vows ignored: no "+SupplementaryVowTemplate+" template")
	}

	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Order < nodes[j].Order })
	for i := range nodes {
		nodes[i].Order = (i + 1) * 10
	}
	return PromptChain{
		ID:    cfg.ID,
		Name:  cfg.Name,
		Scope: ScopeGlobal,
		Nodes: nodes,
	}, warnings
}
