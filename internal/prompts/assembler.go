package prompts

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	// DefaultCharsPerToken converts rendered length into an estimated token count.
	DefaultCharsPerToken = 4.0
	// DefaultDeviationThreshold is the relative difference between a template's
	// static estimate and its rendered-length estimate above which the
	// rendered-length estimate is used instead.
	DefaultDeviationThreshold = 0.25

	sectionSeparator = "\n\n"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// AssemblerConfig tunes token estimation.
type AssemblerConfig struct {
	CharsPerToken      float64
	DeviationThreshold float64
}

// DefaultAssemblerConfig returns the built-in estimation constants.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{CharsPerToken: DefaultCharsPerToken, DeviationThreshold: DefaultDeviationThreshold}
}

// Assembler renders chains into system prompts. It keeps no state between
// calls and is safe for concurrent use.
type Assembler struct {
	registry *Registry
	cfg      AssemblerConfig
	logger   zerolog.Logger
}

// NewAssembler creates an assembler over reg. Zero config fields take the
// defaults.
func NewAssembler(reg *Registry, cfg AssemblerConfig, logger zerolog.Logger) *Assembler {
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = DefaultCharsPerToken
	}
	if cfg.DeviationThreshold <= 0 {
		cfg.DeviationThreshold = DefaultDeviationThreshold
	}
	return &Assembler{registry: reg, cfg: cfg, logger: logger}
}

// Registry returns the registry the assembler resolves templates from.
func (a *Assembler) Registry() *Registry { return a.registry }

// Assemble renders the chain against rc.
func (a *Assembler) Assemble(chain PromptChain, rc RuntimeContext) (*AssembledPrompt, error) {
	return a.assemble(chain.ID, chain.Nodes, rc)
}

// AssembleNodes renders a bare node list against rc.
func (a *Assembler) AssembleNodes(nodes []ChainNode, rc RuntimeContext) (*AssembledPrompt, error) {
	return a.assemble("", nodes, rc)
}

func (a *Assembler) assemble(chainID string, nodes []ChainNode, rc RuntimeContext) (*AssembledPrompt, error) {
	locked := a.registry.Locked()
	validation, _ := validateNodes(nodes, a.registry)

	out := &AssembledPrompt{Sections: []string{}, Warnings: []string{}}
	var texts []string
	visited := map[string]bool{}
	included := map[string]bool{}

	for _, node := range orderNodes(nodes) {
		t, err := a.registry.Get(node.Template)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("missing template: %s", node.Template))
			continue
		}

		// Locked templates are included unconditionally.
		include := t.IsLocked || (node.Enabled && a.conditionHolds(node, rc, out))
		if !include {
			continue
		}
		// Only a rendered node claims its key.
		key := nodeKey(t, node)
		if visited[key] {
			out.Warnings = append(out.Warnings, fmt.Sprintf("duplicate template %s skipped (node %s)", t.Slug, node.ID))
			continue
		}

		text, err := Render(t, mergeParams(contextParams(t, rc), node.Params))
		if err == nil {
			text = normalizeSection(text)
			if text == "" {
				err = &RenderError{Template: t.Slug, Msg: "rendered text is empty"}
			}
		}
		if err != nil {
			if t.IsLocked {
				return nil, &SafetyInvariantError{Templates: []string{t.Slug}, Reason: "locked template excluded: " + err.Error()}
			}
			out.Warnings = append(out.Warnings, fmt.Sprintf("node %s dropped: %v", t.Slug, err))
			continue
		}

		visited[key] = true
		texts = append(texts, text)
		out.Sections = append(out.Sections, t.Slug)
		out.TokenEstimate += a.estimateTokens(t, text)
		included[t.ID] = true
	}

	var absent []string
	for _, t := range locked {
		if !included[t.ID] {
			absent = append(absent, t.Slug)
		}
	}
	if len(absent) > 0 {
		a.logger.Error().Str("chain", chainID).Strs("templates", absent).Msg("assembly refused: locked templates absent")
		return nil, &SafetyInvariantError{Templates: absent, Reason: "locked template absent from chain"}
	}

	out.FullText = strings.Join(texts, sectionSeparator)
	out.Validation = validation
	a.logger.Debug().
		Str("chain", chainID).
		Int("nodes", len(nodes)).
		Int("sections", len(out.Sections)).
		Int("tokens", out.TokenEstimate).
		Int("warnings", len(out.Warnings)).
		Msg("assembled prompt")
	return out, nil
}

// conditionHolds evaluates the node condition. A condition that fails to
// parse is recorded as a warning and treated as false.
func (a *Assembler) conditionHolds(node ChainNode, rc RuntimeContext, out *AssembledPrompt) bool {
	if strings.TrimSpace(node.Condition) == "" {
		return true
	}
	ok, err := EvaluateExpr(node.Condition, rc)
	if err != nil {
		a.logger.Warn().Err(err).Str("node", node.ID).Str("template", node.Template).Msg("condition rejected, node excluded")
		out.Warnings = append(out.Warnings, fmt.Sprintf("condition on %s ignored: %v", node.Template, err))
		return false
	}
	return ok
}

func (a *Assembler) estimateTokens(t NodeTemplate, text string) int {
	rendered := int(math.Ceil(float64(utf8.RuneCountInString(text)) / a.cfg.CharsPerToken))
	if t.TokenEstimate <= 0 {
		return rendered
	}
	deviation := math.Abs(float64(rendered-t.TokenEstimate)) / float64(t.TokenEstimate)
	if deviation > a.cfg.DeviationThreshold {
		return rendered
	}
	return t.TokenEstimate
}

func normalizeSection(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// contextParams supplies runtime values for the parameters a template
// declares under these names: date, time, weekday, turn_count.
func contextParams(t NodeTemplate, rc RuntimeContext) map[string]any {
	if len(t.Params) == 0 {
		return nil
	}
	vals := map[string]any{}
	if !rc.Now.IsZero() {
		vals["date"] = rc.Now.Format("2006-01-02")
		vals["time"] = rc.Now.Format("15:04")
		vals["weekday"] = rc.Now.Weekday().String()
	}
	if rc.TurnCount != nil {
		vals["turn_count"] = *rc.TurnCount
	}
	out := map[string]any{}
	for k, v := range vals {
		if _, ok := t.Params[k]; ok {
			out[k] = v
		}
	}
	return out
}

func mergeParams(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
