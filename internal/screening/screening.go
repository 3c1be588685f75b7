package screening

import (
	"context"
	"fmt"

	"github.com/mdombrov-33/go-promptguard/detector"
	"github.com/rs/zerolog"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Check inspects text and returns human-readable findings.
type Check func(ctx context.Context, text string) []string

// Options configures the default checks.
type Options struct {
	InjectionThreshold float64
	Secrets            bool
}

// Screener runs every configured check over custom template text. It
// implements prompts.Screener.
type Screener struct {
	checks []Check
	logger zerolog.Logger
}

// New builds a screener with prompt-injection detection and, when enabled,
// secret detection.
func New(opts Options, logger zerolog.Logger) (*Screener, error) {
	checks := []Check{InjectionCheck(opts.InjectionThreshold)}
	if opts.Secrets {
		secrets, err := SecretCheck()
		if err != nil {
			return nil, err
		}
		checks = append(checks, secrets)
	}
	return NewWithChecks(logger, checks...), nil
}

// NewWithChecks builds a screener from explicit checks.
func NewWithChecks(logger zerolog.Logger, checks ...Check) *Screener {
	return &Screener{checks: checks, logger: logger}
}

// Screen returns the findings of every check, in check order.
func (s *Screener) Screen(ctx context.Context, text string) []string {
	var findings []string
	for _, check := range s.checks {
		findings = append(findings, check(ctx, text)...)
	}
	if len(findings) > 0 {
		s.logger.Debug().Int("findings", len(findings)).Msg("screening flagged text")
	}
	return findings
}

// InjectionCheck flags text the prompt-injection detector scores at or
// above threshold.
func InjectionCheck(threshold float64) Check {
	guard := detector.New()
	return func(ctx context.Context, text string) []string {
		res := guard.Detect(ctx, text)
		if res.Safe || res.RiskScore < threshold {
			return nil
		}
		return []string{fmt.Sprintf("possible prompt injection (risk %.2f)", res.RiskScore)}
	}
}

// SecretCheck flags credentials using the default gitleaks rule set.
func SecretCheck() (Check, error) {
	rules, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("screening: load secret rules: %w", err)
	}
	return func(_ context.Context, text string) []string {
		var out []string
		seen := map[string]bool{}
		for _, f := range rules.DetectString(text) {
			if seen[f.RuleID] {
				continue
			}
			seen[f.RuleID] = true
			out = append(out, fmt.Sprintf("possible secret: %s", f.Description))
		}
		return out
	}, nil
}
