package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vessel/internal/prompts"
)

// POST /api/v1/components/validate
func (s *Server) validateComponents(c echo.Context) error {
	var cfg prompts.ComponentsConfig
	if err := c.Bind(&cfg); err != nil {
		return badRequest(c, "invalid request body")
	}
	return c.JSON(http.StatusOK, s.manager.ValidateConfiguration(cfg))
}

// POST /api/v1/components
// PUT  /api/v1/components/:id
// Saves a configuration without activating it. Validation problems are
// returned alongside; the active configuration must stay valid.
func (s *Server) saveComponents(c echo.Context) error {
	var cfg prompts.ComponentsConfig
	if err := c.Bind(&cfg); err != nil {
		return badRequest(c, "invalid request body")
	}
	status := http.StatusCreated
	if id := c.Param("id"); id != "" {
		cfg.ID = id
		status = http.StatusOK
	}
	saved, res, err := s.manager.SaveConfiguration(c.Request().Context(), cfg)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status, map[string]any{"config": saved, "validation": res})
}

// POST /api/v1/components/activate
func (s *Server) activateComponents(c echo.Context) error {
	var cfg prompts.ComponentsConfig
	if err := c.Bind(&cfg); err != nil {
		return badRequest(c, "invalid request body")
	}
	saved, res, err := s.manager.ActivateConfiguration(c.Request().Context(), cfg)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"config": saved, "validation": res})
}

type componentsPreviewRequest struct {
	Config  prompts.ComponentsConfig `json:"config"`
	Context prompts.RuntimeContext   `json:"context"`
}

// POST /api/v1/components/preview
func (s *Server) previewComponents(c echo.Context) error {
	var req componentsPreviewRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	s.fillNow(&req.Context)
	out, err := s.manager.AssembleComponents(c.Request().Context(), req.Config, req.Context)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
