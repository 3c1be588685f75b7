package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vessel/internal/prompts"
)

type conditionCheckRequest struct {
	Expression string                  `json:"expression" validate:"max=4096"`
	Context    *prompts.RuntimeContext `json:"context,omitempty"`
}

type conditionCheckResponse struct {
	Valid     bool   `json:"valid"`
	Canonical string `json:"canonical,omitempty"`
	Error     string `json:"error,omitempty"`
	Position  *int   `json:"position,omitempty"`
	Result    *bool  `json:"result,omitempty"`
}

// POST /api/v1/conditions/check
// Parses the expression and, when a context is given, evaluates it.
func (s *Server) checkCondition(c echo.Context) error {
	var req conditionCheckRequest
	if err := bindRequest(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	var resp conditionCheckResponse
	var cond prompts.Condition
	if req.Expression != "" {
		parsed, err := prompts.ParseCondition(req.Expression)
		if err != nil {
			resp.Error = err.Error()
			var syntaxErr *prompts.ConditionSyntaxError
			if errors.As(err, &syntaxErr) {
				pos := syntaxErr.Pos
				resp.Position = &pos
			}
			return c.JSON(http.StatusOK, resp)
		}
		cond = parsed
		resp.Canonical = parsed.String()
	}
	resp.Valid = true

	if req.Context != nil {
		rc := *req.Context
		s.fillNow(&rc)
		result := prompts.Evaluate(cond, rc)
		resp.Result = &result
	}
	return c.JSON(http.StatusOK, resp)
}
