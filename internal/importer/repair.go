package importer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats describes what RepairJSON had to do to an export.
type RepairStats struct {
	OriginalBytes int           `json:"original_bytes"`
	RepairedBytes int           `json:"repaired_bytes"`
	ErrorsFixed   int           `json:"errors_fixed"`
	RepairTime    time.Duration `json:"repair_time"`
	Strategies    []string      `json:"strategies"`
	WasRepaired   bool          `json:"was_repaired"`
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// RepairJSON returns valid JSON for raw, applying in order:
//  1. trailing comma removal
//  2. completion of unclosed objects and arrays
//  3. the jsonrepair library, which also handles single quotes, comments
//     and Python constants
func RepairJSON(raw string) (repaired string, stats RepairStats, err error) {
	start := time.Now()
	stats.OriginalBytes = len(raw)
	defer func() {
		stats.RepairedBytes = len(repaired)
		stats.RepairTime = time.Since(start)
	}()

	if json.Valid([]byte(raw)) {
		return raw, stats, nil
	}
	stats.WasRepaired = true
	repaired = strings.TrimSpace(raw)

	if trailingComma.MatchString(repaired) {
		repaired = trailingComma.ReplaceAllString(repaired, "$1")
		stats.Strategies = append(stats.Strategies, "trailing_commas")
		stats.ErrorsFixed++
	}

	if completed := completeJSON(repaired); completed != repaired {
		repaired = completed
		stats.Strategies = append(stats.Strategies, "completion")
		stats.ErrorsFixed++
	}

	if json.Valid([]byte(repaired)) {
		return repaired, stats, nil
	}

	fixed, libErr := jsonrepair.JSONRepair(repaired)
	if libErr == nil && fixed != repaired {
		repaired = fixed
		stats.Strategies = append(stats.Strategies, "jsonrepair_library")
		stats.ErrorsFixed++
	}
	if !json.Valid([]byte(repaired)) {
		return repaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.Strategies))
	}
	return repaired, stats, nil
}

// completeJSON closes unbalanced braces and brackets outside string
// literals, last opened first.
func completeJSON(s string) string {
	var stack []byte
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if quote != 0 {
		return s
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
