package prompts

import (
	"fmt"
	"sort"
	"time"
)

// Core model types for node templates, chains and assembly results.

// ParamType is the value type a template parameter accepts.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
	ParamList   ParamType = "list"
	ParamEnum   ParamType = "enum"
)

func (p ParamType) valid() bool {
	switch p {
	case ParamString, ParamNumber, ParamBool, ParamList, ParamEnum:
		return true
	}
	return false
}

// ParamSpec describes one named parameter of a template.
type ParamSpec struct {
	Type        ParamType `json:"type" yaml:"type"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Join        string    `json:"join,omitempty" yaml:"join,omitempty"` // list separator
}

// VowRelations declares how a vow interacts with other vows.
type VowRelations struct {
	Requires      []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	ConflictsWith []string `json:"conflicts_with,omitempty" yaml:"conflicts_with,omitempty"`
	Contradicts   []string `json:"contradicts,omitempty" yaml:"contradicts,omitempty"`
}

func (r VowRelations) merge(o VowRelations) VowRelations {
	return VowRelations{
		Requires:      appendUnique(r.Requires, o.Requires...),
		ConflictsWith: appendUnique(r.ConflictsWith, o.ConflictsWith...),
		Contradicts:   appendUnique(r.Contradicts, o.Contradicts...),
	}
}

// NodeTemplate is an immutable definition of a reusable prompt fragment.
type NodeTemplate struct {
	ID             string               `json:"id" yaml:"id"`
	Name           string               `json:"name" yaml:"name"`
	Slug           string               `json:"slug" yaml:"slug"`
	Category       Category             `json:"category" yaml:"category"`
	Description    string               `json:"description,omitempty" yaml:"description,omitempty"`
	Template       string               `json:"template" yaml:"template"`
	Params         map[string]ParamSpec `json:"params,omitempty" yaml:"params,omitempty"`
	Defaults       map[string]any       `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	IsSystem       bool                 `json:"is_system" yaml:"is_system"`
	IsLocked       bool                 `json:"is_locked" yaml:"is_locked"`
	DefaultEnabled bool                 `json:"default_enabled" yaml:"default_enabled"`
	DefaultOrder   int                  `json:"default_order" yaml:"default_order"`
	TokenEstimate  int                  `json:"token_estimate" yaml:"token_estimate"`
	Relations      VowRelations         `json:"relations,omitempty" yaml:"relations,omitempty"`
	CreatedAt      time.Time            `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt      time.Time            `json:"updated_at,omitempty" yaml:"-"`
}

func (t NodeTemplate) clone() NodeTemplate {
	cp := t
	if t.Params != nil {
		cp.Params = make(map[string]ParamSpec, len(t.Params))
		for k, v := range t.Params {
			v.Enum = append([]string(nil), v.Enum...)
			cp.Params[k] = v
		}
	}
	cp.Defaults = cloneValues(t.Defaults)
	cp.Relations = VowRelations{
		Requires:      append([]string(nil), t.Relations.Requires...),
		ConflictsWith: append([]string(nil), t.Relations.ConflictsWith...),
		Contradicts:   append([]string(nil), t.Relations.Contradicts...),
	}
	return cp
}

// ChainNode is one instance of a template within a chain.
type ChainNode struct {
	ID        string         `json:"id" yaml:"id,omitempty"`
	Template  string         `json:"template" yaml:"template"` // template id or slug
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	Order     int            `json:"order" yaml:"order"`
	Condition string         `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Scopes for chain activation. A user scope is ScopeUserPrefix + user id.
const (
	ScopeGlobal     = "global"
	ScopeUserPrefix = "user:"
)

// UserScope returns the activation scope for a user.
func UserScope(userID string) string { return ScopeUserPrefix + userID }

// PromptChain is an ordered collection of nodes forming one reusable
// configuration.
type PromptChain struct {
	ID          string      `json:"id" yaml:"id,omitempty"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Scope       string      `json:"scope" yaml:"scope,omitempty"`
	IsActive    bool        `json:"is_active" yaml:"-"`
	Nodes       []ChainNode `json:"nodes" yaml:"nodes"`
	Version     int         `json:"version" yaml:"-"`
	CreatedAt   time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"-"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty" yaml:"-"`
}

// OrderedNodes returns the nodes sorted by Order, stable on slice position.
func (c PromptChain) OrderedNodes() []ChainNode {
	return orderNodes(c.Nodes)
}

func orderNodes(nodes []ChainNode) []ChainNode {
	out := append([]ChainNode(nil), nodes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (c PromptChain) clone() PromptChain {
	cp := c
	cp.Nodes = make([]ChainNode, len(c.Nodes))
	for i, n := range c.Nodes {
		n.Params = cloneValues(n.Params)
		cp.Nodes[i] = n
	}
	if c.DeletedAt != nil {
		d := *c.DeletedAt
		cp.DeletedAt = &d
	}
	return cp
}

// RuntimeContext is a read-only snapshot of request-time signals. Nil maps
// and zero values mean the signal is unknown.
type RuntimeContext struct {
	Now          time.Time          `json:"now"`
	TurnCount    *int               `json:"turn_count,omitempty"`
	Conversation map[string]string  `json:"conversation,omitempty"`
	User         map[string]string  `json:"user,omitempty"`
	Flags        map[string]bool    `json:"flags,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// VowToggle enables or disables one core vow.
type VowToggle struct {
	ID      string `json:"id" yaml:"id"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// SupplementaryVow is an optional, user-authored vow.
type SupplementaryVow struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Text          string   `json:"text" yaml:"text"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	Requires      []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	ConflictsWith []string `json:"conflicts_with,omitempty" yaml:"conflicts_with,omitempty"`
	Contradicts   []string `json:"contradicts,omitempty" yaml:"contradicts,omitempty"`
}

func (v SupplementaryVow) relations() VowRelations {
	return VowRelations{Requires: v.Requires, ConflictsWith: v.ConflictsWith, Contradicts: v.Contradicts}
}

// ComponentsConfig is the product-level grouping of vows, memory systems,
// tool categories and features.
type ComponentsConfig struct {
	ID                string             `json:"id" yaml:"id,omitempty"`
	Name              string             `json:"name" yaml:"name"`
	CoreVows          []VowToggle        `json:"core_vows" yaml:"core_vows"`
	MemorySystems     map[string]bool    `json:"memory_systems,omitempty" yaml:"memory_systems,omitempty"`
	ToolCategories    map[string]bool    `json:"tool_categories,omitempty" yaml:"tool_categories,omitempty"`
	Features          map[string]bool    `json:"features,omitempty" yaml:"features,omitempty"`
	SupplementaryVows []SupplementaryVow `json:"supplementary_vows,omitempty" yaml:"supplementary_vows,omitempty"`
	IsActive          bool               `json:"is_active" yaml:"-"`
	CreatedAt         time.Time          `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time          `json:"updated_at" yaml:"-"`
}

// ValidationResult is the outcome of a configuration or chain check.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// AssembledPrompt is the output of chain assembly.
type AssembledPrompt struct {
	FullText      string           `json:"full_text"`
	TokenEstimate int              `json:"token_estimate"`
	Sections      []string         `json:"sections"`
	Warnings      []string         `json:"warnings"`
	Validation    ValidationResult `json:"validation"`
}

func cloneValues(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch vv := v.(type) {
		case []any:
			out[k] = append([]any(nil), vv...)
		case []string:
			out[k] = append([]string(nil), vv...)
		default:
			out[k] = v
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst)+len(items))
	out := make([]string, 0, len(dst)+len(items))
	for _, s := range append(append([]string(nil), dst...), items...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
