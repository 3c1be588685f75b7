package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vessel/internal/prompts"
)

// GET /api/v1/categories
func (s *Server) listCategories(c echo.Context) error {
	type categoryDTO struct {
		Name      string `json:"name"`
		Lockable  bool   `json:"lockable"`
		Templates int    `json:"templates"`
	}
	out := []categoryDTO{}
	for _, cat := range s.manager.Categories() {
		out = append(out, categoryDTO{
			Name:      cat.String(),
			Lockable:  cat.Lockable(),
			Templates: len(s.manager.ListTemplates(cat)),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"categories": out})
}

// GET /api/v1/templates?category=vow,context
func (s *Server) listTemplates(c echo.Context) error {
	var cats []prompts.Category
	if raw := c.QueryParam("category"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			cat, err := prompts.ParseCategory(name)
			if err != nil {
				return badRequest(c, err.Error())
			}
			cats = append(cats, cat)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"templates": s.manager.ListTemplates(cats...)})
}

// GET /api/v1/templates/:ref
func (s *Server) getTemplate(c echo.Context) error {
	t, err := s.manager.GetTemplate(c.Param("ref"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

type templateRequest struct {
	ID             string                       `json:"id" validate:"max=64"`
	Name           string                       `json:"name" validate:"required,max=120"`
	Slug           string                       `json:"slug" validate:"max=64"`
	Category       string                       `json:"category"` // empty means custom
	Description    string                       `json:"description" validate:"max=1000"`
	Template       string                       `json:"template" validate:"required"`
	Params         map[string]prompts.ParamSpec `json:"params"`
	Defaults       map[string]any               `json:"defaults"`
	IsLocked       bool                         `json:"is_locked"`
	DefaultEnabled bool                         `json:"default_enabled"`
	DefaultOrder   int                          `json:"default_order" validate:"gte=0"`
	TokenEstimate  int                          `json:"token_estimate" validate:"gte=0"`
	Relations      prompts.VowRelations         `json:"relations"`
}

func (r templateRequest) toTemplate() (prompts.NodeTemplate, error) {
	cat := prompts.CategoryCustom
	if strings.TrimSpace(r.Category) != "" {
		parsed, err := prompts.ParseCategory(r.Category)
		if err != nil {
			return prompts.NodeTemplate{}, err
		}
		cat = parsed
	}
	return prompts.NodeTemplate{
		ID:             r.ID,
		Name:           r.Name,
		Slug:           r.Slug,
		Category:       cat,
		Description:    r.Description,
		Template:       r.Template,
		Params:         r.Params,
		Defaults:       r.Defaults,
		IsLocked:       r.IsLocked,
		DefaultEnabled: r.DefaultEnabled,
		DefaultOrder:   r.DefaultOrder,
		TokenEstimate:  r.TokenEstimate,
		Relations:      r.Relations,
	}, nil
}

// POST /api/v1/templates
// Creates or replaces a custom template.
func (s *Server) saveTemplate(c echo.Context) error {
	var req templateRequest
	if err := bindRequest(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	t, err := req.toTemplate()
	if err != nil {
		return badRequest(c, err.Error())
	}
	saved, err := s.manager.SaveTemplate(c.Request().Context(), t)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// DELETE /api/v1/templates/:ref
func (s *Server) deleteTemplate(c echo.Context) error {
	if err := s.manager.DeleteTemplate(c.Request().Context(), c.Param("ref")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
