package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vessel/internal/prompts"
)

type chainResponse struct {
	Chain      *prompts.PromptChain     `json:"chain"`
	Validation prompts.ValidationResult `json:"validation"`
}

// GET /api/v1/chains?scope=global
func (s *Server) listChains(c echo.Context) error {
	chains, err := s.manager.ListChains(c.Request().Context(), c.QueryParam("scope"))
	if err != nil {
		return respondError(c, err)
	}
	if chains == nil {
		chains = []prompts.PromptChain{}
	}
	return c.JSON(http.StatusOK, map[string]any{"chains": chains})
}

// POST /api/v1/chains
func (s *Server) createChain(c echo.Context) error {
	var chain prompts.PromptChain
	if err := c.Bind(&chain); err != nil {
		return badRequest(c, "invalid request body")
	}
	created, res, err := s.manager.CreateChain(c.Request().Context(), chain)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, chainResponse{Chain: created, Validation: res})
}

// GET /api/v1/chains/:id
func (s *Server) getChain(c echo.Context) error {
	chain, err := s.manager.GetChain(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, chain)
}

// PUT /api/v1/chains/:id
func (s *Server) updateChain(c echo.Context) error {
	var chain prompts.PromptChain
	if err := c.Bind(&chain); err != nil {
		return badRequest(c, "invalid request body")
	}
	chain.ID = c.Param("id")
	updated, res, err := s.manager.UpdateChain(c.Request().Context(), chain)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, chainResponse{Chain: updated, Validation: res})
}

// DELETE /api/v1/chains/:id
func (s *Server) deleteChain(c echo.Context) error {
	if err := s.manager.DeleteChain(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /api/v1/chains/:id/reorder
// Body: {"node_ids": ["...", ...]}
func (s *Server) reorderChain(c echo.Context) error {
	var req struct {
		NodeIDs []string `json:"node_ids"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.NodeIDs) == 0 {
		return badRequest(c, "node_ids is required")
	}
	chain, err := s.manager.ReorderNodes(c.Request().Context(), c.Param("id"), req.NodeIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, chain)
}

// POST /api/v1/chains/:id/activate
func (s *Server) activateChain(c echo.Context) error {
	chain, err := s.manager.ActivateChain(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, chain)
}

// POST /api/v1/chains/:id/preview
// Body: a runtime context; an empty body previews at the current time.
func (s *Server) previewChain(c echo.Context) error {
	rc, err := s.bindContext(c)
	if err != nil {
		return badRequest(c, "invalid runtime context")
	}
	out, err := s.manager.Preview(c.Request().Context(), c.Param("id"), rc)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

type assembleRequest struct {
	Scope   string                 `json:"scope" validate:"omitempty,max=128"`
	Context prompts.RuntimeContext `json:"context"`
}

// POST /api/v1/assemble
// Assembles the active chain for scope (default global).
func (s *Server) assembleActive(c echo.Context) error {
	var req assembleRequest
	if err := bindRequest(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Scope == "" {
		req.Scope = prompts.ScopeGlobal
	}
	s.fillNow(&req.Context)
	out, err := s.manager.AssembleActive(c.Request().Context(), req.Scope, req.Context)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) bindContext(c echo.Context) (prompts.RuntimeContext, error) {
	var rc prompts.RuntimeContext
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&rc); err != nil {
			return rc, err
		}
	}
	s.fillNow(&rc)
	return rc, nil
}

func (s *Server) fillNow(rc *prompts.RuntimeContext) {
	if rc.Now.IsZero() {
		rc.Now = s.now()
	}
}
