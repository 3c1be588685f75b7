// Package importer reads chain and components exports from older tooling.
// Exports may be JSON (repaired when malformed) or YAML, and may carry
// conditions in the legacy object form, which are rewritten into condition
// expressions.
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vessel/internal/prompts"
)

// Format names an export encoding.
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml, yml or empty (auto-detect).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown import format %q", s)
}

// Report summarizes what an import changed on the way in.
type Report struct {
	Format     Format      `json:"format"`
	Repaired   bool        `json:"repaired"`
	Repair     RepairStats `json:"repair"`
	Translated []string    `json:"translated,omitempty"` // rewritten conditions, "node: expr"
	Notes      []string    `json:"notes,omitempty"`
}

func (r *Report) note(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// DecodeChain decodes a chain export.
func DecodeChain(data []byte, format Format) (prompts.PromptChain, Report, error) {
	var chain prompts.PromptChain
	doc, report, err := decodeDocument(data, format)
	if err != nil {
		return chain, report, err
	}
	if err := normalizeChain(doc, &report); err != nil {
		return chain, report, err
	}
	if err := remarshal(doc, &chain); err != nil {
		return chain, report, fmt.Errorf("decode chain: %w", err)
	}
	return chain, report, nil
}

// DecodeComponents decodes a components configuration export.
func DecodeComponents(data []byte, format Format) (prompts.ComponentsConfig, Report, error) {
	var cfg prompts.ComponentsConfig
	doc, report, err := decodeDocument(data, format)
	if err != nil {
		return cfg, report, err
	}
	normalizeComponents(doc, &report)
	if err := remarshal(doc, &cfg); err != nil {
		return cfg, report, fmt.Errorf("decode components: %w", err)
	}
	return cfg, report, nil
}

func detectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

func decodeDocument(data []byte, format Format) (map[string]any, Report, error) {
	if format == FormatAuto {
		format = detectFormat(data)
	}
	report := Report{Format: format}
	var doc map[string]any

	switch format {
	case FormatJSON:
		repaired, stats, err := RepairJSON(string(data))
		report.Repair = stats
		report.Repaired = stats.WasRepaired
		if err != nil {
			return nil, report, fmt.Errorf("import: %w", err)
		}
		dec := json.NewDecoder(strings.NewReader(repaired))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, report, fmt.Errorf("import: expected a JSON object: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, report, fmt.Errorf("import: %w", err)
		}
	default:
		return nil, report, fmt.Errorf("import: unknown format %q", format)
	}
	if doc == nil {
		return nil, report, fmt.Errorf("import: empty document")
	}
	return doc, report, nil
}

// remarshal round-trips a generic document through JSON into the typed
// model, so YAML and JSON share the model's json tags.
func remarshal(doc map[string]any, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

var nodeAliases = map[string]string{
	"template_id":   "template",
	"template_slug": "template",
	"is_enabled":    "enabled",
	"position":      "order",
	"params_values": "params",
}

func normalizeChain(doc map[string]any, report *Report) error {
	rawNodes, ok := doc["nodes"].([]any)
	if !ok {
		if _, present := doc["nodes"]; present {
			return fmt.Errorf("import: nodes must be a list")
		}
		return nil
	}
	for i, raw := range rawNodes {
		node, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("import: node %d is not an object", i)
		}
		for _, from := range sortedAliasKeys() {
			to := nodeAliases[from]
			v, ok := node[from]
			if !ok {
				continue
			}
			delete(node, from)
			if _, exists := node[to]; !exists {
				node[to] = v
				report.note("node %d: %s renamed to %s", i, from, to)
			}
		}
		if _, ok := node["enabled"]; !ok {
			node["enabled"] = true
		}

		name := fmt.Sprint(node["template"])
		switch cond := node["condition"].(type) {
		case nil, string:
		case map[string]any:
			expr, err := TranslateCondition(cond)
			if err != nil {
				return fmt.Errorf("import: node %d (%s): %w", i, name, err)
			}
			node["condition"] = expr
			report.Translated = append(report.Translated, name+": "+expr)
		default:
			return fmt.Errorf("import: node %d (%s): unsupported condition %T", i, name, cond)
		}
	}
	return nil
}

func sortedAliasKeys() []string {
	keys := make([]string, 0, len(nodeAliases))
	for k := range nodeAliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeComponents accepts core_vows as a name->enabled map or a list of
// names, in addition to the current list of toggles.
func normalizeComponents(doc map[string]any, report *Report) {
	switch vows := doc["core_vows"].(type) {
	case map[string]any:
		names := make([]string, 0, len(vows))
		for name := range vows {
			names = append(names, name)
		}
		sort.Strings(names)
		toggles := make([]any, 0, len(names))
		for _, name := range names {
			enabled, _ := vows[name].(bool)
			toggles = append(toggles, map[string]any{"id": name, "enabled": enabled})
		}
		doc["core_vows"] = toggles
		report.note("core_vows converted from map")
	case []any:
		for i, v := range vows {
			if name, ok := v.(string); ok {
				vows[i] = map[string]any{"id": name, "enabled": true}
				report.note("core vow %q listed by name, treated as enabled", name)
			}
		}
	}

	if sup, ok := doc["supplementary_vows"].([]any); ok {
		for _, raw := range sup {
			vow, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if _, has := vow["text"]; !has {
				if desc, ok := vow["description"]; ok {
					vow["text"] = desc
					delete(vow, "description")
					report.note("supplementary vow %v: description used as text", vow["id"])
				}
			}
		}
	}
}
