package prompts

import (
	"regexp"
	"strings"
)

// Placeholder represents a single {{VAR:...}} occurrence with parsed options.
type Placeholder struct {
	Raw     string
	Name    string
	Options map[string]string // default, join
}

const placeholderOpen = "{{VAR:"

var (
	// Matches {{VAR:name|key=value|key2="quoted value"}}
	// Capture 1 = name, Capture 2 = options (may be empty)
	varPattern = regexp.MustCompile(`\{\{VAR:([a-zA-Z0-9_\-]+)((?:\|[^}]+)?)}}`)
	optPattern = regexp.MustCompile(`\|([^=|]+)=([^|]+)`) // key=value segments
)

// ParsePlaceholders returns all placeholder occurrences in order of appearance.
func ParsePlaceholders(body string) []Placeholder {
	matches := varPattern.FindAllStringSubmatchIndex(body, -1)
	out := make([]Placeholder, 0, len(matches))
	for _, idx := range matches {
		raw := body[idx[0]:idx[1]]
		name := body[idx[2]:idx[3]]
		optsRaw := ""
		if len(idx) >= 6 && idx[4] != -1 {
			optsRaw = body[idx[4]:idx[5]]
		}
		out = append(out, Placeholder{Raw: raw, Name: name, Options: parseOptions(optsRaw)})
	}
	return out
}

// PlaceholderNames returns the distinct placeholder names in order of first use.
func PlaceholderNames(body string) []string {
	seen := map[string]bool{}
	var names []string
	for _, ph := range ParsePlaceholders(body) {
		if !seen[ph.Name] {
			seen[ph.Name] = true
			names = append(names, ph.Name)
		}
	}
	return names
}

// malformedPlaceholders counts {{VAR: openers that the pattern does not accept.
func malformedPlaceholders(body string) int {
	return strings.Count(body, placeholderOpen) - len(varPattern.FindAllStringIndex(body, -1))
}

func parseOptions(optsRaw string) map[string]string {
	opts := map[string]string{}
	for _, seg := range optPattern.FindAllStringSubmatch(optsRaw, -1) {
		key := strings.ToLower(strings.TrimSpace(seg[1]))
		opts[key] = decodeEscapes(unquote(strings.TrimSpace(seg[2])))
	}
	return opts
}

// unquote strips one pair of matching single or double quotes.
func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	if q := val[0]; (q == '"' || q == '\'') && val[len(val)-1] == q {
		return val[1 : len(val)-1]
	}
	return val
}

// escapes decodes \n, \t, \r and \\; any other backslash is kept.
var escapes = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\t`, "\t", `\r`, "\r")

func decodeEscapes(s string) string { return escapes.Replace(s) }
