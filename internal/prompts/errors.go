package prompts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("prompts: not found")

// NotFoundError reports a missing template, chain or configuration.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("prompts: %s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(kind, key string) error { return &NotFoundError{Kind: kind, Key: key} }

// TemplateDefinitionError rejects a template whose definition breaks the
// parameter-schema contract.
type TemplateDefinitionError struct {
	Template string
	Problems []string
}

func (e *TemplateDefinitionError) Error() string {
	return fmt.Sprintf("prompts: invalid template %q: %s", e.Template, strings.Join(e.Problems, "; "))
}

// ConditionSyntaxError reports a malformed condition expression.
type ConditionSyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ConditionSyntaxError) Error() string {
	return fmt.Sprintf("prompts: condition %q: %s at offset %d", e.Expr, e.Msg, e.Pos)
}

// RenderError reports a node that could not be rendered.
type RenderError struct {
	Template string
	Param    string
	Msg      string
}

func (e *RenderError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("prompts: render %s: %s", e.Template, e.Msg)
	}
	return fmt.Sprintf("prompts: render %s: parameter %q: %s", e.Template, e.Param, e.Msg)
}

// SafetyInvariantError is fatal: a safety-locked template or mandatory vow
// would be missing from the result.
type SafetyInvariantError struct {
	Templates []string
	Reason    string
}

func (e *SafetyInvariantError) Error() string {
	return fmt.Sprintf("prompts: safety invariant violated: %s: %s", e.Reason, strings.Join(e.Templates, ", "))
}

// InvalidConfigurationError blocks activation of a components configuration
// that failed validation for reasons other than mandatory vows.
type InvalidConfigurationError struct {
	Result ValidationResult
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("prompts: invalid configuration: %s", strings.Join(e.Result.Errors, "; "))
}
