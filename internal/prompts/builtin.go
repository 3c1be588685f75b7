package prompts

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/builtin.yaml
var builtinCatalog []byte

// SupplementaryVowTemplate is the built-in template instantiated for each
// enabled supplementary vow.
const SupplementaryVowTemplate = "supplementary-vow"

// BuiltinTemplates decodes the embedded catalog.
func BuiltinTemplates() ([]NodeTemplate, error) {
	return DecodeTemplates(builtinCatalog)
}

// DecodeTemplates parses a YAML list of node templates.
func DecodeTemplates(data []byte) ([]NodeTemplate, error) {
	var out []NodeTemplate
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("prompts: decode templates: %w", err)
	}
	return out, nil
}

// LoadBuiltinRegistry returns a fresh registry holding the built-in catalog.
func LoadBuiltinRegistry() (*Registry, error) {
	ts, err := BuiltinTemplates()
	if err != nil {
		return nil, err
	}
	return NewRegistry(ts...)
}
