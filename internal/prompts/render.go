package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const defaultListJoin = ", "

// Render substitutes every placeholder in the template body. Values resolve
// from overrides, then template defaults, then the placeholder's inline
// default. A required parameter with no value is a RenderError.
func Render(t NodeTemplate, overrides map[string]any) (string, error) {
	ref := t.Slug
	if ref == "" {
		ref = t.ID
	}
	if n := malformedPlaceholders(t.Template); n > 0 {
		return "", &RenderError{Template: ref, Msg: fmt.Sprintf("%d malformed placeholder(s)", n)}
	}

	body := t.Template
	matches := varPattern.FindAllStringSubmatchIndex(body, -1)
	var buf bytes.Buffer
	last := 0
	for _, m := range matches {
		fullStart, fullEnd := m[0], m[1]
		name := body[m[2]:m[3]]
		optsRaw := ""
		if m[4] != -1 {
			optsRaw = body[m[4]:m[5]]
		}
		opts := parseOptions(optsRaw)

		if fullStart > last {
			buf.WriteString(body[last:fullStart])
		}

		spec, declared := t.Params[name]
		if !declared {
			return "", &RenderError{Template: ref, Param: name, Msg: "undeclared parameter"}
		}
		if j, ok := opts["join"]; ok {
			spec.Join = j
		}

		val, ok := overrides[name]
		if !ok {
			val, ok = t.Defaults[name]
		}
		var text string
		switch {
		case ok:
			s, err := formatValue(spec, val)
			if err != nil {
				return "", &RenderError{Template: ref, Param: name, Msg: err.Error()}
			}
			text = s
		case opts["default"] != "":
			text = opts["default"]
		case spec.Required:
			return "", &RenderError{Template: ref, Param: name, Msg: "required value missing"}
		}
		buf.WriteString(text)
		last = fullEnd
	}
	if last < len(body) {
		buf.WriteString(body[last:])
	}
	return buf.String(), nil
}

// formatValue checks v against the parameter type and returns its text form.
func formatValue(spec ParamSpec, v any) (string, error) {
	switch spec.Type {
	case ParamString, "":
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		}
		return "", fmt.Errorf("expected string, got %T", v)

	case ParamNumber:
		f, err := toFloat(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil

	case ParamBool:
		switch b := v.(type) {
		case bool:
			return strconv.FormatBool(b), nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return "", fmt.Errorf("expected bool, got %q", b)
			}
			return strconv.FormatBool(parsed), nil
		}
		return "", fmt.Errorf("expected bool, got %T", v)

	case ParamEnum:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("expected enum string, got %T", v)
		}
		if !slices.Contains(spec.Enum, s) {
			return "", fmt.Errorf("%q is not one of %s", s, strings.Join(spec.Enum, ", "))
		}
		return s, nil

	case ParamList:
		sep := spec.Join
		if sep == "" {
			sep = defaultListJoin
		}
		switch l := v.(type) {
		case []string:
			return strings.Join(l, sep), nil
		case []any:
			parts := make([]string, 0, len(l))
			for _, item := range l {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, sep), nil
		case string:
			return l, nil
		}
		return "", fmt.Errorf("expected list, got %T", v)
	}
	return "", fmt.Errorf("unsupported parameter type %q", spec.Type)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
