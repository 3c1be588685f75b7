package prompts

import "context"

// Manager coordinates the registry, persistence, validation and assembly.
// The admin API and CLI go through this interface.
type Manager interface {
	// Templates
	ListTemplates(categories ...Category) []NodeTemplate
	GetTemplate(ref string) (NodeTemplate, error)
	Categories() []Category
	SaveTemplate(ctx context.Context, t NodeTemplate) (NodeTemplate, error)
	DeleteTemplate(ctx context.Context, ref string) error
	LoadCustomTemplates(ctx context.Context) (int, error)

	// Chains
	ValidateChain(c PromptChain) (ValidationResult, error)
	CreateChain(ctx context.Context, c PromptChain) (*PromptChain, ValidationResult, error)
	UpdateChain(ctx context.Context, c PromptChain) (*PromptChain, ValidationResult, error)
	GetChain(ctx context.Context, id string) (*PromptChain, error)
	ListChains(ctx context.Context, scope string) ([]PromptChain, error)
	DeleteChain(ctx context.Context, id string) error
	ReorderNodes(ctx context.Context, id string, nodeIDs []string) (*PromptChain, error)
	ActivateChain(ctx context.Context, id string) (*PromptChain, error)

	// Assembly
	Preview(ctx context.Context, id string, rc RuntimeContext) (*AssembledPrompt, error)
	PreviewChain(ctx context.Context, c PromptChain, rc RuntimeContext) (*AssembledPrompt, error)
	AssembleActive(ctx context.Context, scope string, rc RuntimeContext) (*AssembledPrompt, error)

	// Components configurations
	ValidateConfiguration(cfg ComponentsConfig) ValidationResult
	SaveConfiguration(ctx context.Context, cfg ComponentsConfig) (*ComponentsConfig, ValidationResult, error)
	ActivateConfiguration(ctx context.Context, cfg ComponentsConfig) (*ComponentsConfig, ValidationResult, error)
	AssembleComponents(ctx context.Context, cfg ComponentsConfig, rc RuntimeContext) (*AssembledPrompt, error)
}

// Screener inspects custom template text and returns findings. Any finding
// rejects the template.
type Screener interface {
	Screen(ctx context.Context, text string) []string
}

// AssemblyRecorder receives every assembled prompt, for debugging.
type AssemblyRecorder interface {
	Record(source string, rc RuntimeContext, p *AssembledPrompt)
}
