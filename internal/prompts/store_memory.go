package prompts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a threadsafe in-memory Store for tests and local runs.
type InMemoryStore struct {
	mu        sync.RWMutex
	templates map[string]NodeTemplate
	chains    map[string]PromptChain
	configs   map[string]ComponentsConfig
	now       func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		templates: make(map[string]NodeTemplate),
		chains:    make(map[string]PromptChain),
		configs:   make(map[string]ComponentsConfig),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryStore) LoadAllTemplates(ctx context.Context) ([]NodeTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NodeTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.clone())
	}
	sortTemplates(out)
	return out, nil
}

func (s *InMemoryStore) SaveTemplate(ctx context.Context, t NodeTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t.clone()
	return nil
}

func (s *InMemoryStore) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return notFound("template", id)
	}
	delete(s.templates, id)
	return nil
}

func (s *InMemoryStore) CreateChain(ctx context.Context, c *PromptChain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Scope == "" {
		c.Scope = ScopeGlobal
	}
	c.Version = 1
	c.IsActive = false
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	c.DeletedAt = nil
	s.chains[c.ID] = c.clone()
	return nil
}

func (s *InMemoryStore) UpdateChain(ctx context.Context, c *PromptChain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.chains[c.ID]
	if !ok || old.DeletedAt != nil {
		return notFound("chain", c.ID)
	}
	c.Scope = old.Scope
	c.IsActive = old.IsActive
	c.CreatedAt = old.CreatedAt
	c.Version = old.Version + 1
	c.UpdatedAt = s.now()
	c.DeletedAt = nil
	s.chains[c.ID] = c.clone()
	return nil
}

func (s *InMemoryStore) GetChain(ctx context.Context, id string) (*PromptChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chains[id]
	if !ok || c.DeletedAt != nil {
		return nil, notFound("chain", id)
	}
	cp := c.clone()
	return &cp, nil
}

func (s *InMemoryStore) ListChains(ctx context.Context, scope string) ([]PromptChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []PromptChain{}
	for _, c := range s.chains {
		if c.DeletedAt != nil || (scope != "" && c.Scope != scope) {
			continue
		}
		out = append(out, c.clone())
	}
	sortChains(out)
	return out, nil
}

func sortChains(cs []PromptChain) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Name != cs[j].Name {
			return cs[i].Name < cs[j].Name
		}
		return cs[i].ID < cs[j].ID
	})
}

func (s *InMemoryStore) SoftDeleteChain(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[id]
	if !ok || c.DeletedAt != nil {
		return notFound("chain", id)
	}
	now := s.now()
	c.DeletedAt = &now
	c.IsActive = false
	c.UpdatedAt = now
	s.chains[id] = c
	return nil
}

func (s *InMemoryStore) SetActiveChain(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.chains[id]
	if !ok || target.DeletedAt != nil {
		return notFound("chain", id)
	}
	for cid, c := range s.chains {
		if c.Scope == target.Scope && c.IsActive {
			c.IsActive = false
			s.chains[cid] = c
		}
	}
	target = s.chains[id]
	target.IsActive = true
	target.UpdatedAt = s.now()
	s.chains[id] = target
	return nil
}

func (s *InMemoryStore) GetActiveChain(ctx context.Context, scope string) (*PromptChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chains {
		if c.Scope == scope && c.IsActive && c.DeletedAt == nil {
			cp := c.clone()
			return &cp, nil
		}
	}
	return nil, notFound("active chain", scope)
}

func (s *InMemoryStore) SaveComponentsConfig(ctx context.Context, c *ComponentsConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	if old, ok := s.configs[c.ID]; ok {
		c.CreatedAt = old.CreatedAt
		c.IsActive = old.IsActive
	} else {
		c.CreatedAt = now
		c.IsActive = false
	}
	c.UpdatedAt = now
	s.configs[c.ID] = cloneComponents(*c)
	return nil
}

func (s *InMemoryStore) GetComponentsConfig(ctx context.Context, id string) (*ComponentsConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	if !ok {
		return nil, notFound("components config", id)
	}
	cp := cloneComponents(c)
	return &cp, nil
}

func (s *InMemoryStore) SetActiveComponentsConfig(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[id]; !ok {
		return notFound("components config", id)
	}
	for cid, c := range s.configs {
		c.IsActive = cid == id
		s.configs[cid] = c
	}
	return nil
}

func (s *InMemoryStore) GetActiveComponentsConfig(ctx context.Context) (*ComponentsConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.configs {
		if c.IsActive {
			cp := cloneComponents(c)
			return &cp, nil
		}
	}
	return nil, notFound("active components config", "")
}

func cloneComponents(c ComponentsConfig) ComponentsConfig {
	cp := c
	cp.CoreVows = append([]VowToggle(nil), c.CoreVows...)
	cp.MemorySystems = cloneToggles(c.MemorySystems)
	cp.ToolCategories = cloneToggles(c.ToolCategories)
	cp.Features = cloneToggles(c.Features)
	cp.SupplementaryVows = nil
	for _, v := range c.SupplementaryVows {
		v.Requires = append([]string(nil), v.Requires...)
		v.ConflictsWith = append([]string(nil), v.ConflictsWith...)
		v.Contradicts = append([]string(nil), v.Contradicts...)
		cp.SupplementaryVows = append(cp.SupplementaryVows, v)
	}
	return cp
}

func cloneToggles(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
