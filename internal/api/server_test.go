package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vessel/internal/prompts"
)

var fixedNow = time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	reg, err := prompts.LoadBuiltinRegistry()
	require.NoError(t, err)
	mgr := prompts.NewManager(reg, prompts.NewInMemoryStore(),
		prompts.WithLogger(zerolog.Nop()),
		prompts.WithClock(func() time.Time { return fixedNow }),
	)
	s := NewServer(mgr, opts, zerolog.Nop())
	s.now = func() time.Time { return fixedNow }
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func safeChain(name string) map[string]any {
	return map[string]any{
		"name": name,
		"nodes": []map[string]any{
			{"template": "identity", "enabled": true, "order": 0},
			{"template": "compassion", "enabled": true, "order": 10},
			{"template": "witness", "enabled": true, "order": 11},
			{"template": "late-night", "enabled": true, "order": 20, "condition": `time_between("22:00", "05:00")`},
		},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "healthy"}`, rec.Body.String())
}

func TestTemplates(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"vow","lockable":true`)

	rec = do(t, s, http.MethodGet, "/api/v1/templates?category=vow", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Templates []prompts.NodeTemplate `json:"templates"`
	}](t, rec)
	require.NotEmpty(t, list.Templates)
	for _, tpl := range list.Templates {
		assert.Equal(t, prompts.CategoryVow, tpl.Category)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/templates?category=astrology", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/templates/compassion", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[prompts.NodeTemplate](t, rec).IsLocked)

	rec = do(t, s, http.MethodGet, "/api/v1/templates/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveAndDeleteCustomTemplate(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/v1/templates", map[string]any{
		"name":     "Gardening",
		"slug":     "gardening",
		"template": "The user keeps a {{VAR:plot}} garden.",
		"params":   map[string]any{"plot": map[string]any{"type": "string", "required": true}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[prompts.NodeTemplate](t, rec)
	assert.Equal(t, prompts.CategoryCustom, saved.Category)
	assert.False(t, saved.IsSystem)
	assert.NotEmpty(t, saved.ID)

	rec = do(t, s, http.MethodPost, "/api/v1/templates", map[string]any{
		"name": "Sneaky", "slug": "sneaky", "category": "vow", "template": "x",
		"is_locked": true, "default_enabled": true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "problems")

	rec = do(t, s, http.MethodDelete, "/api/v1/templates/compassion", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/v1/templates/gardening", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/v1/templates/gardening", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChainLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/v1/assemble", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing active yet")

	rec = do(t, s, http.MethodPost, "/api/v1/chains", safeChain("Evenings"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[chainResponse](t, rec)
	require.NotNil(t, created.Chain)
	assert.True(t, created.Validation.IsValid)
	id := created.Chain.ID

	rec = do(t, s, http.MethodGet, "/api/v1/chains?scope=global", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)

	rec = do(t, s, http.MethodPost, "/api/v1/chains/"+id+"/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[prompts.AssembledPrompt](t, rec)
	assert.Contains(t, preview.FullText, "VOW OF COMPASSION")
	assert.Contains(t, preview.FullText, "It is late.", "23:30 is inside the window")

	rec = do(t, s, http.MethodPost, "/api/v1/chains/"+id+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/v1/assemble", map[string]any{
		"scope":   "user:42",
		"context": map[string]any{"now": "2026-03-14T12:00:00Z"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	noon := decode[prompts.AssembledPrompt](t, rec)
	assert.Contains(t, noon.FullText, "VOW OF WITNESS")
	assert.NotContains(t, noon.FullText, "It is late.")

	nodes := created.Chain.Nodes
	rec = do(t, s, http.MethodPost, "/api/v1/chains/"+id+"/reorder", map[string]any{
		"node_ids": []string{nodes[3].ID, nodes[0].ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reordered := decode[prompts.PromptChain](t, rec)
	ordered := reordered.OrderedNodes()
	assert.Equal(t, nodes[3].ID, ordered[0].ID)
	assert.Equal(t, 10, ordered[0].Order)
	assert.Equal(t, nodes[0].ID, ordered[1].ID)

	rec = do(t, s, http.MethodPut, "/api/v1/chains/"+id, map[string]any{
		"name":  "Evenings",
		"nodes": []map[string]any{{"template": "identity", "enabled": true}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "active chain cannot drop locked templates")

	rec = do(t, s, http.MethodDelete, "/api/v1/chains/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/v1/chains/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivateChainWithoutLockedTemplate(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/v1/chains", map[string]any{
		"name":  "Unsafe",
		"nodes": []map[string]any{{"template": "identity", "enabled": true}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[chainResponse](t, rec)
	assert.False(t, created.Validation.IsValid)

	rec = do(t, s, http.MethodPost, "/api/v1/chains/"+created.Chain.ID+"/activate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "witness")
}

func TestCreateChainRejectsBadCondition(t *testing.T) {
	s := newTestServer(t, Options{})
	chain := safeChain("Broken")
	chain["nodes"] = append(chain["nodes"].([]map[string]any),
		map[string]any{"template": "dreaming", "enabled": true, "condition": "turn_count >"})

	rec := do(t, s, http.MethodPost, "/api/v1/chains", chain)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/chains", map[string]any{"name": "x", "scope": "team:1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestComponents(t *testing.T) {
	s := newTestServer(t, Options{})

	missingWitness := map[string]any{
		"name":      "Minimal",
		"core_vows": []map[string]any{{"id": "compassion", "enabled": true}},
	}
	rec := do(t, s, http.MethodPost, "/api/v1/components/validate", missingWitness)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[prompts.ValidationResult](t, rec).IsValid)

	rec = do(t, s, http.MethodPost, "/api/v1/components/activate", missingWitness)
	assert.Equal(t, http.StatusConflict, rec.Code)

	full := map[string]any{
		"name": "Full",
		"core_vows": []map[string]any{
			{"id": "compassion", "enabled": true},
			{"id": "witness", "enabled": true},
		},
		"features": map[string]bool{"dreaming": true},
	}
	rec = do(t, s, http.MethodPost, "/api/v1/components/activate", full)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/v1/assemble", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, "falls back to the active configuration")
	assert.Contains(t, decode[prompts.AssembledPrompt](t, rec).FullText, "Last night you dreamed.")

	rec = do(t, s, http.MethodPost, "/api/v1/components/preview", map[string]any{"config": full})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[prompts.AssembledPrompt](t, rec).Validation.IsValid)
}

func TestSaveComponents(t *testing.T) {
	s := newTestServer(t, Options{})

	draft := map[string]any{
		"name":      "Draft",
		"core_vows": []map[string]any{{"id": "compassion", "enabled": true}},
	}
	rec := do(t, s, http.MethodPost, "/api/v1/components", draft)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	type saveResponse struct {
		Config     prompts.ComponentsConfig `json:"config"`
		Validation prompts.ValidationResult `json:"validation"`
	}
	saved := decode[saveResponse](t, rec)
	assert.False(t, saved.Validation.IsValid, "inactive drafts may be invalid")
	assert.NotEmpty(t, saved.Config.ID)

	full := map[string]any{
		"name": "Full",
		"core_vows": []map[string]any{
			{"id": "compassion", "enabled": true},
			{"id": "witness", "enabled": true},
		},
	}
	rec = do(t, s, http.MethodPost, "/api/v1/components/activate", full)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	active := decode[saveResponse](t, rec).Config

	rec = do(t, s, http.MethodPut, "/api/v1/components/"+active.ID, draft)
	assert.Equal(t, http.StatusConflict, rec.Code, "the active configuration cannot lose a mandatory vow")

	full["name"] = "Full, renamed"
	rec = do(t, s, http.MethodPut, "/api/v1/components/"+active.ID, full)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[saveResponse](t, rec)
	assert.True(t, updated.Config.IsActive)
	assert.Equal(t, "Full, renamed", updated.Config.Name)
}

func TestCheckCondition(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/v1/conditions/check", map[string]any{
		"expression": `turn_count>=3 and flag("travel")`,
		"context":    map[string]any{"turn_count": 5, "flags": map[string]bool{"travel": true}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	ok := decode[conditionCheckResponse](t, rec)
	assert.True(t, ok.Valid)
	assert.Equal(t, `turn_count >= 3 && flag("travel")`, ok.Canonical)
	require.NotNil(t, ok.Result)
	assert.True(t, *ok.Result)

	rec = do(t, s, http.MethodPost, "/api/v1/conditions/check", map[string]any{"expression": "hour >"})
	require.Equal(t, http.StatusOK, rec.Code)
	bad := decode[conditionCheckResponse](t, rec)
	assert.False(t, bad.Valid)
	assert.NotEmpty(t, bad.Error)
	assert.NotNil(t, bad.Position)
	assert.Nil(t, bad.Result)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: 1, Burst: 1})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/categories", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodGet, "/api/v1/categories", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", nil).Code, "health is not limited")
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&prompts.NotFoundError{Kind: "chain", Key: "x"}, http.StatusNotFound},
		{&prompts.SafetyInvariantError{}, http.StatusConflict},
		{&prompts.InvalidConfigurationError{}, http.StatusUnprocessableEntity},
		{&prompts.TemplateDefinitionError{}, http.StatusBadRequest},
		{&prompts.ConditionSyntaxError{}, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, errorStatus(tc.err), tc.err.Error())
	}
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/v1/templates", map[string]any{
		"slug": "nameless", "template": "x", "default_order": -1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Contains(t, body["error"], "name: failed required")
	assert.Contains(t, body["error"], "default_order: failed gte=0")

	rec = do(t, s, http.MethodPost, "/api/v1/conditions/check", map[string]any{
		"expression": strings.Repeat("x", 5000),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "expression: failed max=4096")
}
