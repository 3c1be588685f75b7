package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vessel/internal/prompts"
)

// runtimeFlags describe the conversation a prompt is assembled for.
func runtimeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.TimestampFlag{
			Name:   "now",
			Usage:  "Assemble as if the time were `TIME` (RFC 3339)",
			Layout: time.RFC3339,
		},
		&cli.IntFlag{
			Name:  "turn",
			Usage: "Conversation turn count",
			Value: -1,
		},
		&cli.StringSliceFlag{
			Name:  "user",
			Usage: "User attribute `KEY=VALUE` (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "conversation",
			Usage: "Conversation attribute `KEY=VALUE` (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "flag",
			Usage: "Set a feature flag; prefix with ! to clear it (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "metric",
			Usage: "Metric `NAME=NUMBER` (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the full assembly result as JSON",
		},
	}
}

func runtimeContext(c *cli.Context) (prompts.RuntimeContext, error) {
	rc := prompts.RuntimeContext{Now: time.Now()}
	if ts := c.Timestamp("now"); ts != nil {
		rc.Now = *ts
	}
	if turn := c.Int("turn"); turn >= 0 {
		rc.TurnCount = &turn
	}

	var err error
	if rc.User, err = parsePairs(c.StringSlice("user")); err != nil {
		return rc, fmt.Errorf("--user: %w", err)
	}
	if rc.Conversation, err = parsePairs(c.StringSlice("conversation")); err != nil {
		return rc, fmt.Errorf("--conversation: %w", err)
	}

	for _, f := range c.StringSlice("flag") {
		if rc.Flags == nil {
			rc.Flags = map[string]bool{}
		}
		if name, off := strings.CutPrefix(f, "!"); off {
			rc.Flags[name] = false
		} else {
			rc.Flags[f] = true
		}
	}

	metrics, err := parsePairs(c.StringSlice("metric"))
	if err != nil {
		return rc, fmt.Errorf("--metric: %w", err)
	}
	for k, v := range metrics {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rc, fmt.Errorf("--metric %s: %q is not a number", k, v)
		}
		if rc.Metrics == nil {
			rc.Metrics = map[string]float64{}
		}
		rc.Metrics[k] = n
	}
	return rc, nil
}

func parsePairs(items []string) (map[string]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", item)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// printAssembly writes the prompt text to w and warnings to stderr, or the
// whole result as JSON.
func printAssembly(c *cli.Context, w io.Writer, p *prompts.AssembledPrompt) error {
	if c.Bool("json") {
		return printJSON(w, p)
	}
	fmt.Fprintln(w, p.FullText)
	fmt.Fprintf(os.Stderr, "\n%d sections, ~%d tokens\n", len(p.Sections), p.TokenEstimate)
	for _, warning := range p.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printValidation(w io.Writer, res prompts.ValidationResult) {
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if res.IsValid {
		fmt.Fprintln(w, "valid")
	} else {
		fmt.Fprintln(w, "invalid")
	}
}

var errInvalid = errors.New("validation failed")
