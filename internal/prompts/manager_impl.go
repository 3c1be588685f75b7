package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ManagerOption customizes NewManager.
type ManagerOption func(*manager)

func WithLogger(l zerolog.Logger) ManagerOption { return func(m *manager) { m.logger = l } }

func WithAssemblerConfig(cfg AssemblerConfig) ManagerOption {
	return func(m *manager) { m.assemblerCfg = cfg }
}

func WithScreener(s Screener) ManagerOption { return func(m *manager) { m.screener = s } }

func WithRecorder(r AssemblyRecorder) ManagerOption { return func(m *manager) { m.recorder = r } }

func WithClock(now func() time.Time) ManagerOption { return func(m *manager) { m.now = now } }

// manager implements Manager over a Registry and a Store.
type manager struct {
	registry     *Registry
	store        Store
	assembler    *Assembler
	validator    *Validator
	assemblerCfg AssemblerConfig
	screener     Screener
	recorder     AssemblyRecorder
	logger       zerolog.Logger
	now          func() time.Time
}

// NewManager creates a manager. The registry is shared with the assembler
// and validator it builds.
func NewManager(reg *Registry, store Store, opts ...ManagerOption) Manager {
	m := &manager{
		registry:     reg,
		store:        store,
		assemblerCfg: DefaultAssemblerConfig(),
		logger:       log.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.assembler = NewAssembler(reg, m.assemblerCfg, m.logger)
	m.validator = NewValidator(reg)
	return m
}

func (m *manager) ListTemplates(categories ...Category) []NodeTemplate {
	return m.registry.List(categories...)
}

func (m *manager) GetTemplate(ref string) (NodeTemplate, error) { return m.registry.Get(ref) }

func (m *manager) Categories() []Category { return m.registry.Categories() }

func (m *manager) SaveTemplate(ctx context.Context, t NodeTemplate) (NodeTemplate, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if m.screener != nil {
		if findings := m.screener.Screen(ctx, t.Name+"\n"+t.Description+"\n"+t.Template); len(findings) > 0 {
			m.logger.Warn().Str("template", t.Slug).Strs("findings", findings).Msg("custom template rejected by screening")
			return NodeTemplate{}, &TemplateDefinitionError{Template: t.Slug, Problems: findings}
		}
	}

	prev, prevErr := m.registry.Get(t.ID)
	t.UpdatedAt = m.now()
	saved, err := m.registry.Register(t)
	if err != nil {
		return NodeTemplate{}, err
	}
	if err := m.store.SaveTemplate(ctx, saved); err != nil {
		if prevErr == nil {
			_, _ = m.registry.Register(prev)
		} else {
			_, _ = m.registry.Unregister(saved.ID)
		}
		return NodeTemplate{}, fmt.Errorf("save template: %w", err)
	}
	m.logger.Info().Str("template", saved.Slug).Str("category", saved.Category.String()).Msg("custom template saved")
	return saved, nil
}

func (m *manager) DeleteTemplate(ctx context.Context, ref string) error {
	t, err := m.registry.Unregister(ref)
	if err != nil {
		return err
	}
	if err := m.store.DeleteTemplate(ctx, t.ID); err != nil && !errors.Is(err, ErrNotFound) {
		_, _ = m.registry.Register(t)
		return fmt.Errorf("delete template: %w", err)
	}
	m.logger.Info().Str("template", t.Slug).Msg("custom template deleted")
	return nil
}

// LoadCustomTemplates registers every template in the store. Templates
// that no longer pass validation are skipped with a warning.
func (m *manager) LoadCustomTemplates(ctx context.Context) (int, error) {
	ts, err := m.store.LoadAllTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("load templates: %w", err)
	}
	n := 0
	for _, t := range ts {
		if _, err := m.registry.Register(t); err != nil {
			m.logger.Warn().Err(err).Str("template", t.Slug).Msg("skipping stored template")
			continue
		}
		n++
	}
	m.logger.Debug().Int("loaded", n).Int("stored", len(ts)).Msg("custom templates loaded")
	return n, nil
}

func (m *manager) ValidateChain(c PromptChain) (ValidationResult, error) {
	return ValidateChain(c, m.registry)
}

// checkDraft validates a chain for saving. Condition syntax errors and
// structural errors reject the save; a missing locked template does not.
func (m *manager) checkDraft(c *PromptChain) (ValidationResult, error) {
	for i := range c.Nodes {
		if c.Nodes[i].ID == "" {
			c.Nodes[i].ID = uuid.NewString()
		}
	}
	res, err := ValidateChain(*c, m.registry)
	if err != nil {
		return res, err
	}
	blocking := ValidationResult{IsValid: true}
	if strings.TrimSpace(c.Name) == "" {
		blocking.addError("chain name is required")
	}
	seen := map[string]bool{}
	for _, n := range c.Nodes {
		if strings.TrimSpace(n.Template) == "" {
			blocking.addError("node %s has no template reference", n.ID)
		}
		if seen[n.ID] {
			blocking.addError("node id %s is used more than once", n.ID)
		}
		seen[n.ID] = true
	}
	if !blocking.IsValid {
		blocking.Warnings = res.Warnings
		return res, &InvalidConfigurationError{Result: blocking}
	}
	return res, nil
}

func (m *manager) CreateChain(ctx context.Context, c PromptChain) (*PromptChain, ValidationResult, error) {
	if c.Scope == "" {
		c.Scope = ScopeGlobal
	}
	if err := validScope(c.Scope); err != nil {
		return nil, ValidationResult{}, err
	}
	res, err := m.checkDraft(&c)
	if err != nil {
		return nil, res, err
	}
	if err := m.store.CreateChain(ctx, &c); err != nil {
		return nil, res, fmt.Errorf("create chain: %w", err)
	}
	m.logger.Info().Str("chain", c.ID).Str("scope", c.Scope).Int("nodes", len(c.Nodes)).Msg("chain created")
	return &c, res, nil
}

func (m *manager) UpdateChain(ctx context.Context, c PromptChain) (*PromptChain, ValidationResult, error) {
	existing, err := m.store.GetChain(ctx, c.ID)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	res, err := m.checkDraft(&c)
	if err != nil {
		return nil, res, err
	}
	if existing.IsActive {
		for _, e := range res.Errors {
			m.logger.Warn().Str("chain", c.ID).Str("problem", e).Msg("active chain updated with validation errors")
		}
		if len(res.Errors) > 0 {
			return nil, res, &SafetyInvariantError{Templates: m.absentLocked(c), Reason: "active chain must keep every locked template"}
		}
	}
	if err := m.store.UpdateChain(ctx, &c); err != nil {
		return nil, res, fmt.Errorf("update chain: %w", err)
	}
	return &c, res, nil
}

func (m *manager) GetChain(ctx context.Context, id string) (*PromptChain, error) {
	return m.store.GetChain(ctx, id)
}

func (m *manager) ListChains(ctx context.Context, scope string) ([]PromptChain, error) {
	return m.store.ListChains(ctx, scope)
}

func (m *manager) DeleteChain(ctx context.Context, id string) error {
	if err := m.store.SoftDeleteChain(ctx, id); err != nil {
		return err
	}
	m.logger.Info().Str("chain", id).Msg("chain deleted")
	return nil
}

// ReorderNodes renumbers the listed nodes first, in the given order, spaced
// by 10. Unlisted nodes keep their relative order after them.
func (m *manager) ReorderNodes(ctx context.Context, id string, nodeIDs []string) (*PromptChain, error) {
	c, err := m.store.GetChain(ctx, id)
	if err != nil {
		return nil, err
	}
	index := map[string]int{}
	for i, n := range c.Nodes {
		index[n.ID] = i
	}
	placed := map[string]bool{}
	var ordered []ChainNode
	for _, nid := range nodeIDs {
		i, ok := index[nid]
		if !ok {
			return nil, notFound("node", nid)
		}
		if placed[nid] {
			continue
		}
		placed[nid] = true
		ordered = append(ordered, c.Nodes[i])
	}
	for _, n := range c.OrderedNodes() {
		if !placed[n.ID] {
			ordered = append(ordered, n)
		}
	}
	for i := range ordered {
		ordered[i].Order = (i + 1) * 10
	}
	c.Nodes = ordered
	if err := m.store.UpdateChain(ctx, c); err != nil {
		return nil, fmt.Errorf("reorder chain: %w", err)
	}
	return c, nil
}

// ActivateChain makes the chain active in its scope. A chain that lacks a
// locked template, has a malformed condition or cannot assemble is refused.
func (m *manager) ActivateChain(ctx context.Context, id string) (*PromptChain, error) {
	c, err := m.store.GetChain(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := ValidateChain(*c, m.registry)
	if err != nil {
		return nil, err
	}
	if absent := m.absentLocked(*c); len(absent) > 0 {
		return nil, &SafetyInvariantError{Templates: absent, Reason: "locked template absent from chain"}
	}
	if !res.IsValid {
		return nil, &InvalidConfigurationError{Result: res}
	}
	if _, err := m.assembler.Assemble(*c, RuntimeContext{Now: m.now()}); err != nil {
		return nil, err
	}
	if err := m.store.SetActiveChain(ctx, id); err != nil {
		return nil, fmt.Errorf("activate chain: %w", err)
	}
	c.IsActive = true
	m.logger.Info().Str("chain", id).Str("scope", c.Scope).Msg("chain activated")
	return c, nil
}

func (m *manager) absentLocked(c PromptChain) []string {
	present := map[string]bool{}
	for _, n := range c.Nodes {
		if t, err := m.registry.Get(n.Template); err == nil {
			present[t.ID] = true
		}
	}
	var absent []string
	for _, t := range m.registry.Locked() {
		if !present[t.ID] {
			absent = append(absent, t.Slug)
		}
	}
	return absent
}

func (m *manager) Preview(ctx context.Context, id string, rc RuntimeContext) (*AssembledPrompt, error) {
	c, err := m.store.GetChain(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.PreviewChain(ctx, *c, rc)
}

func (m *manager) PreviewChain(ctx context.Context, c PromptChain, rc RuntimeContext) (*AssembledPrompt, error) {
	p, err := m.assembler.Assemble(c, rc)
	if err != nil {
		return nil, err
	}
	m.record("chain:"+c.ID, rc, p)
	return p, nil
}

// AssembleActive assembles the active chain for scope. A user scope falls
// back to the global chain, and the global scope to the active components
// configuration.
func (m *manager) AssembleActive(ctx context.Context, scope string, rc RuntimeContext) (*AssembledPrompt, error) {
	if scope == "" {
		scope = ScopeGlobal
	}
	if err := validScope(scope); err != nil {
		return nil, err
	}
	c, err := m.store.GetActiveChain(ctx, scope)
	if errors.Is(err, ErrNotFound) && scope != ScopeGlobal {
		m.logger.Debug().Str("scope", scope).Msg("no active chain for scope, using global")
		c, err = m.store.GetActiveChain(ctx, ScopeGlobal)
	}
	if errors.Is(err, ErrNotFound) {
		cfg, cfgErr := m.store.GetActiveComponentsConfig(ctx)
		if cfgErr != nil {
			return nil, err
		}
		return m.AssembleComponents(ctx, *cfg, rc)
	}
	if err != nil {
		return nil, err
	}
	p, err := m.assembler.Assemble(*c, rc)
	if err != nil {
		return nil, err
	}
	m.record("active:"+scope, rc, p)
	return p, nil
}

func (m *manager) ValidateConfiguration(cfg ComponentsConfig) ValidationResult {
	return m.validator.ValidateConfiguration(cfg)
}

// SaveConfiguration stores cfg whether or not it is valid, unless it would
// replace the active configuration with an invalid one.
func (m *manager) SaveConfiguration(ctx context.Context, cfg ComponentsConfig) (*ComponentsConfig, ValidationResult, error) {
	res := m.validator.ValidateConfiguration(cfg)
	if cfg.ID != "" {
		existing, err := m.store.GetComponentsConfig(ctx, cfg.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, res, err
		case existing.IsActive:
			if err := m.activationError(cfg, res); err != nil {
				m.logger.Warn().Str("config", cfg.ID).Err(err).Msg("active configuration update refused")
				return nil, res, err
			}
		}
	}
	if err := m.store.SaveComponentsConfig(ctx, &cfg); err != nil {
		return nil, res, fmt.Errorf("save configuration: %w", err)
	}
	return &cfg, res, nil
}

// activationError reports why cfg cannot be the active configuration.
// Missing or disabled mandatory vows are a SafetyInvariantError; other
// validation errors are an InvalidConfigurationError.
func (m *manager) activationError(cfg ComponentsConfig, res ValidationResult) error {
	if missing := m.validator.MissingMandatoryVows(cfg); len(missing) > 0 {
		return &SafetyInvariantError{Templates: missing, Reason: "mandatory vow missing or disabled"}
	}
	if !res.IsValid {
		return &InvalidConfigurationError{Result: res}
	}
	return nil
}

// ActivateConfiguration validates, saves and activates cfg.
func (m *manager) ActivateConfiguration(ctx context.Context, cfg ComponentsConfig) (*ComponentsConfig, ValidationResult, error) {
	res := m.validator.ValidateConfiguration(cfg)
	if err := m.activationError(cfg, res); err != nil {
		m.logger.Warn().Err(err).Msg("configuration activation refused")
		return nil, res, err
	}
	if err := m.store.SaveComponentsConfig(ctx, &cfg); err != nil {
		return nil, res, fmt.Errorf("save configuration: %w", err)
	}
	if err := m.store.SetActiveComponentsConfig(ctx, cfg.ID); err != nil {
		return nil, res, fmt.Errorf("activate configuration: %w", err)
	}
	cfg.IsActive = true
	m.logger.Info().Str("config", cfg.ID).Msg("components configuration activated")
	return &cfg, res, nil
}

// AssembleComponents composes a chain from cfg and assembles it. The
// configuration's validation result is attached to the prompt.
func (m *manager) AssembleComponents(ctx context.Context, cfg ComponentsConfig, rc RuntimeContext) (*AssembledPrompt, error) {
	res := m.validator.ValidateConfiguration(cfg)
	if err := m.activationError(cfg, res); err != nil {
		return nil, err
	}
	chain, warnings := ChainFromComponents(cfg, m.registry)
	p, err := m.assembler.Assemble(chain, rc)
	if err != nil {
		return nil, err
	}
	p.Warnings = append(warnings, p.Warnings...)
	if p.Warnings == nil {
		p.Warnings = []string{}
	}
	p.Validation = res
	m.record("components:"+cfg.ID, rc, p)
	return p, nil
}

func (m *manager) record(source string, rc RuntimeContext, p *AssembledPrompt) {
	if m.recorder != nil {
		m.recorder.Record(source, rc, p)
	}
}

func validScope(scope string) error {
	if scope == ScopeGlobal {
		return nil
	}
	if id, ok := strings.CutPrefix(scope, ScopeUserPrefix); ok && strings.TrimSpace(id) != "" {
		return nil
	}
	return &InvalidConfigurationError{Result: ValidationResult{
		Errors: []string{fmt.Sprintf("invalid scope %q: want %q or %q<id>", scope, ScopeGlobal, ScopeUserPrefix)},
	}}
}
