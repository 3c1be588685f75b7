package prompts

import (
	"context"
)

// Store persists custom templates, chains and components configurations.
// Implementations return errors matching ErrNotFound for missing or
// soft-deleted records.
type Store interface {
	// Custom templates
	LoadAllTemplates(ctx context.Context) ([]NodeTemplate, error)
	SaveTemplate(ctx context.Context, t NodeTemplate) error
	DeleteTemplate(ctx context.Context, id string) error

	// Chains. UpdateChain replaces name, description and nodes and bumps the
	// version; scope and activation are unchanged.
	CreateChain(ctx context.Context, c *PromptChain) error
	UpdateChain(ctx context.Context, c *PromptChain) error
	GetChain(ctx context.Context, id string) (*PromptChain, error)
	ListChains(ctx context.Context, scope string) ([]PromptChain, error)
	SoftDeleteChain(ctx context.Context, id string) error
	// SetActiveChain marks the chain active and deactivates every other
	// chain in its scope.
	SetActiveChain(ctx context.Context, id string) error
	GetActiveChain(ctx context.Context, scope string) (*PromptChain, error)

	// Components configurations. At most one is active.
	SaveComponentsConfig(ctx context.Context, c *ComponentsConfig) error
	GetComponentsConfig(ctx context.Context, id string) (*ComponentsConfig, error)
	SetActiveComponentsConfig(ctx context.Context, id string) error
	GetActiveComponentsConfig(ctx context.Context) (*ComponentsConfig, error)
}
