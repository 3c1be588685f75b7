package importer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vessel/internal/prompts"
)

// TranslateCondition rewrites a legacy condition object into a condition
// expression. Supported types:
//
//	{"type": "time_window", "start": "22:00", "end": "06:00"}
//	{"type": "turn_count", "op": ">=", "value": 5} or {"min": 1, "max": 10}
//	{"type": "attribute", "source": "user", "key": "mood", "equals": "sad"}
//	{"type": "metric", "key": "load", "op": ">", "value": 0.5}
//	{"type": "weekday", "days": ["saturday", "sunday"]}
//	{"type": "flag", "name": "travel", "value": false}
//	{"type": "all"|"any", "conditions": [...]}, {"type": "not", "condition": {...}}
//
// The result is parsed and returned in canonical form.
func TranslateCondition(obj map[string]any) (string, error) {
	expr, err := translate(obj)
	if err != nil {
		return "", err
	}
	cond, err := prompts.ParseCondition(expr)
	if err != nil {
		return "", fmt.Errorf("translated condition %q: %w", expr, err)
	}
	return cond.String(), nil
}

func translate(obj map[string]any) (string, error) {
	kind, _ := obj["type"].(string)
	switch strings.ToLower(kind) {
	case "time_window":
		start, err := stringField(obj, "start")
		if err != nil {
			return "", err
		}
		end, err := stringField(obj, "end")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("time_between(%s, %s)", strconv.Quote(start), strconv.Quote(end)), nil

	case "turn_count":
		return comparison("turn_count", obj)

	case "metric":
		key, err := stringField(obj, "key")
		if err != nil {
			return "", err
		}
		return comparison("metric."+key, obj)

	case "attribute":
		source, _ := obj["source"].(string)
		if source == "" {
			source = "user"
		}
		if source != "user" && source != "conversation" {
			return "", fmt.Errorf("attribute source %q must be user or conversation", source)
		}
		key, err := stringField(obj, "key")
		if err != nil {
			return "", err
		}
		field := source + "." + key
		if v, ok := obj["equals"]; ok {
			return field + " == " + literal(v), nil
		}
		if v, ok := obj["not_equals"]; ok {
			return field + " != " + literal(v), nil
		}
		if _, ok := obj["op"]; ok {
			return comparison(field, obj)
		}
		return "has(" + field + ")", nil

	case "weekday":
		days, ok := obj["days"].([]any)
		if !ok || len(days) == 0 {
			return "", fmt.Errorf("weekday condition needs a non-empty days list")
		}
		terms := make([]string, 0, len(days))
		for _, d := range days {
			terms = append(terms, "weekday == "+strconv.Quote(fmt.Sprint(d)))
		}
		return group(terms, " || "), nil

	case "flag":
		name, err := stringField(obj, "name")
		if err != nil {
			return "", err
		}
		expr := "flag(" + strconv.Quote(name) + ")"
		if v, ok := obj["value"].(bool); ok && !v {
			expr = "!" + expr
		}
		return expr, nil

	case "all", "any":
		list, ok := obj["conditions"].([]any)
		if !ok || len(list) == 0 {
			return "", fmt.Errorf("%s condition needs a non-empty conditions list", kind)
		}
		terms := make([]string, 0, len(list))
		for i, raw := range list {
			sub, ok := raw.(map[string]any)
			if !ok {
				return "", fmt.Errorf("%s condition %d is not an object", kind, i)
			}
			expr, err := translate(sub)
			if err != nil {
				return "", err
			}
			terms = append(terms, "("+expr+")")
		}
		sep := " && "
		if strings.EqualFold(kind, "any") {
			sep = " || "
		}
		return strings.Join(terms, sep), nil

	case "not":
		sub, ok := obj["condition"].(map[string]any)
		if !ok {
			return "", fmt.Errorf("not condition needs a condition object")
		}
		expr, err := translate(sub)
		if err != nil {
			return "", err
		}
		return "!(" + expr + ")", nil

	case "always":
		return "true", nil
	case "never":
		return "false", nil
	case "":
		return "", fmt.Errorf("condition object has no type")
	}
	return "", fmt.Errorf("unknown condition type %q", kind)
}

var comparisonOps = map[string]string{
	"==": "==", "eq": "==",
	"!=": "!=", "ne": "!=",
	">": ">", "gt": ">",
	">=": ">=", "gte": ">=",
	"<": "<", "lt": "<",
	"<=": "<=", "lte": "<=",
}

// comparison handles {"op", "value"} and the {"min", "max"} range form.
func comparison(field string, obj map[string]any) (string, error) {
	if rawOp, ok := obj["op"]; ok {
		op, ok := comparisonOps[strings.ToLower(fmt.Sprint(rawOp))]
		if !ok {
			return "", fmt.Errorf("%s: unknown operator %v", field, rawOp)
		}
		n, err := number(obj["value"])
		if err != nil {
			return "", fmt.Errorf("%s: %w", field, err)
		}
		return field + " " + op + " " + n, nil
	}

	var terms []string
	if v, ok := obj["min"]; ok {
		n, err := number(v)
		if err != nil {
			return "", fmt.Errorf("%s min: %w", field, err)
		}
		terms = append(terms, field+" >= "+n)
	}
	if v, ok := obj["max"]; ok {
		n, err := number(v)
		if err != nil {
			return "", fmt.Errorf("%s max: %w", field, err)
		}
		terms = append(terms, field+" <= "+n)
	}
	if len(terms) == 0 {
		return "", fmt.Errorf("%s condition needs op/value or min/max", field)
	}
	return strings.Join(terms, " && "), nil
}

func group(terms []string, sep string) string {
	if len(terms) == 1 {
		return terms[0]
	}
	return "(" + strings.Join(terms, sep) + ")"
}

func stringField(obj map[string]any, key string) (string, error) {
	s, ok := obj[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("condition %v: %s is required", obj["type"], key)
	}
	return s, nil
}

func number(v any) (string, error) {
	switch n := v.(type) {
	case json.Number:
		return n.String(), nil
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case string:
		if _, err := strconv.ParseFloat(n, 64); err == nil {
			return n, nil
		}
	}
	return "", fmt.Errorf("expected a number, got %v", v)
}

func literal(v any) string {
	if n, err := number(v); err == nil {
		if _, isString := v.(string); !isString {
			return n
		}
	}
	return strconv.Quote(fmt.Sprint(v))
}
