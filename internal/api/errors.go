package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vessel/internal/prompts"
)

// errorStatus maps engine errors onto HTTP status codes.
func errorStatus(err error) int {
	var (
		defErr    *prompts.TemplateDefinitionError
		syntaxErr *prompts.ConditionSyntaxError
		renderErr *prompts.RenderError
		safetyErr *prompts.SafetyInvariantError
		configErr *prompts.InvalidConfigurationError
	)
	switch {
	case errors.Is(err, prompts.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &safetyErr):
		return http.StatusConflict
	case errors.As(err, &configErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &defErr), errors.As(err, &syntaxErr), errors.As(err, &renderErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": ...}, with the validation result
// or offending templates attached when the error carries them.
func respondError(c echo.Context, err error) error {
	status := errorStatus(err)
	body := map[string]any{"error": err.Error()}

	var configErr *prompts.InvalidConfigurationError
	if errors.As(err, &configErr) {
		body["validation"] = configErr.Result
	}
	var safetyErr *prompts.SafetyInvariantError
	if errors.As(err, &safetyErr) {
		body["templates"] = safetyErr.Templates
	}
	var defErr *prompts.TemplateDefinitionError
	if errors.As(err, &defErr) {
		body["problems"] = defErr.Problems
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
