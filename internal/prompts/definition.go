package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-_]*$`)

// ValidateTemplate checks a template against the parameter-schema contract.
// Every problem is reported in a single TemplateDefinitionError.
func ValidateTemplate(t NodeTemplate) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(t.ID) == "" {
		add("id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		add("name is required")
	}
	if t.Slug == "" {
		add("slug is required")
	} else if !slugPattern.MatchString(t.Slug) {
		add("slug %q must be lowercase letters, digits, '-' or '_'", t.Slug)
	}
	if !t.Category.Valid() {
		add("invalid category %d", int(t.Category))
	}
	if strings.TrimSpace(t.Template) == "" {
		add("template body is empty")
	}
	if n := malformedPlaceholders(t.Template); n > 0 {
		add("%d malformed placeholder(s)", n)
	}

	for _, name := range sortedKeys(t.Params) {
		spec := t.Params[name]
		if !spec.Type.valid() {
			add("param %q has invalid type %q", name, spec.Type)
		}
		if spec.Type == ParamEnum && len(spec.Enum) == 0 {
			add("enum param %q declares no values", name)
		}
	}
	for _, name := range PlaceholderNames(t.Template) {
		if _, ok := t.Params[name]; !ok {
			add("placeholder %q references an undeclared parameter", name)
		}
	}
	for _, name := range sortedKeys(t.Defaults) {
		spec, ok := t.Params[name]
		if !ok {
			add("default for undeclared parameter %q", name)
			continue
		}
		if _, err := formatValue(spec, t.Defaults[name]); err != nil {
			add("default for %q: %v", name, err)
		}
	}

	if t.IsLocked {
		if !t.DefaultEnabled {
			add("locked template must be default_enabled")
		}
		if !t.Category.Lockable() {
			add("category %s cannot be locked", t.Category)
		}
	}
	if t.TokenEstimate < 0 {
		add("token_estimate must not be negative")
	}

	if len(problems) > 0 {
		ref := t.Slug
		if ref == "" {
			ref = t.ID
		}
		return &TemplateDefinitionError{Template: ref, Problems: problems}
	}
	return nil
}
