package prompts

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the catalog of node templates, addressable by id or slug.
// Built-in templates are fixed once the registry is constructed; custom
// templates may be registered and removed at runtime.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]NodeTemplate
	bySlug map[string]string // slug -> id
}

// NewRegistry builds a registry from built-in templates. Each template is
// validated and marked as a system template.
func NewRegistry(builtins ...NodeTemplate) (*Registry, error) {
	r := &Registry{
		byID:   make(map[string]NodeTemplate, len(builtins)),
		bySlug: make(map[string]string, len(builtins)),
	}
	for _, t := range builtins {
		t.IsSystem = true
		if err := ValidateTemplate(t); err != nil {
			return nil, err
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("prompts: duplicate template id %q", t.ID)
		}
		if _, dup := r.bySlug[t.Slug]; dup {
			return nil, fmt.Errorf("prompts: duplicate template slug %q", t.Slug)
		}
		r.byID[t.ID] = t.clone()
		r.bySlug[t.Slug] = t.ID
	}
	return r, nil
}

// Get returns a copy of the template with the given id or slug.
func (r *Registry) Get(ref string) (NodeTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lookupLocked(ref)
	if !ok {
		return NodeTemplate{}, notFound("template", ref)
	}
	return t.clone(), nil
}

func (r *Registry) lookupLocked(ref string) (NodeTemplate, bool) {
	if t, ok := r.byID[ref]; ok {
		return t, true
	}
	if id, ok := r.bySlug[ref]; ok {
		t, ok := r.byID[id]
		return t, ok
	}
	return NodeTemplate{}, false
}

// List returns templates ordered by default_order then name, optionally
// restricted to the given categories.
func (r *Registry) List(categories ...Category) []NodeTemplate {
	want := map[Category]bool{}
	for _, c := range categories {
		want[c] = true
	}
	r.mu.RLock()
	out := make([]NodeTemplate, 0, len(r.byID))
	for _, t := range r.byID {
		if len(want) > 0 && !want[t.Category] {
			continue
		}
		out = append(out, t.clone())
	}
	r.mu.RUnlock()
	sortTemplates(out)
	return out
}

func sortTemplates(ts []NodeTemplate) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].DefaultOrder != ts[j].DefaultOrder {
			return ts[i].DefaultOrder < ts[j].DefaultOrder
		}
		if ts[i].Name != ts[j].Name {
			return ts[i].Name < ts[j].Name
		}
		return ts[i].Slug < ts[j].Slug
	})
}

// Categories returns the categories present in the registry in enum order.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	present := map[Category]bool{}
	for _, t := range r.byID {
		present[t.Category] = true
	}
	r.mu.RUnlock()
	var out []Category
	for _, c := range AllCategories() {
		if present[c] {
			out = append(out, c)
		}
	}
	return out
}

// Locked returns every safety-locked template.
func (r *Registry) Locked() []NodeTemplate {
	r.mu.RLock()
	var out []NodeTemplate
	for _, t := range r.byID {
		if t.IsLocked {
			out = append(out, t.clone())
		}
	}
	r.mu.RUnlock()
	sortTemplates(out)
	return out
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Register adds or replaces a custom template. Custom templates are never
// system or locked templates and cannot shadow a system template.
func (r *Registry) Register(t NodeTemplate) (NodeTemplate, error) {
	t.IsSystem = false
	if t.IsLocked {
		return NodeTemplate{}, &TemplateDefinitionError{Template: t.Slug, Problems: []string{"custom templates cannot be locked"}}
	}
	if err := ValidateTemplate(t); err != nil {
		return NodeTemplate{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[t.ID]; ok && existing.IsSystem {
		return NodeTemplate{}, &TemplateDefinitionError{Template: t.Slug, Problems: []string{fmt.Sprintf("id %q belongs to a system template", t.ID)}}
	}
	if id, ok := r.bySlug[t.Slug]; ok && id != t.ID {
		return NodeTemplate{}, &TemplateDefinitionError{Template: t.Slug, Problems: []string{fmt.Sprintf("slug %q is already used by template %q", t.Slug, id)}}
	}
	now := time.Now().UTC()
	if existing, ok := r.byID[t.ID]; ok {
		t.CreatedAt = existing.CreatedAt
		if existing.Slug != t.Slug {
			delete(r.bySlug, existing.Slug)
		}
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() || t.UpdatedAt.Before(t.CreatedAt) {
		t.UpdatedAt = now
	}
	r.byID[t.ID] = t.clone()
	r.bySlug[t.Slug] = t.ID
	return t.clone(), nil
}

// Unregister removes a custom template by id or slug.
func (r *Registry) Unregister(ref string) (NodeTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.lookupLocked(ref)
	if !ok {
		return NodeTemplate{}, notFound("template", ref)
	}
	if t.IsSystem {
		return NodeTemplate{}, &TemplateDefinitionError{Template: t.Slug, Problems: []string{"system templates cannot be removed"}}
	}
	delete(r.byID, t.ID)
	delete(r.bySlug, t.Slug)
	return t, nil
}
