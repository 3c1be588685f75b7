package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vessel/internal/prompts"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := writeFile(t, "vessel.toml", "[general]\nlog_level = \"error\"\n\n[screening]\nenabled = false\n")
	app := NewApp("test")
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"vessel", "--config", cfg, "--db", memoryDB}, args...))
	return out.String(), err
}

const eveningChain = `
name: Evenings
nodes:
  - template: identity
    order: 0
    params: {name: Cass, user_name: Robin}
  - template: compassion
    order: 10
  - template: witness
    order: 11
  - template: late-night
    order: 20
    condition: 'time_between("22:00", "05:00") && !flag("focus")'
  - template: session
    order: 30
`

func TestChainAssemble(t *testing.T) {
	path := writeFile(t, "chain.yaml", eveningChain)

	out, err := run(t, "chain", "assemble", "--now", "2026-03-14T23:10:00Z", "--turn", "4", "--json", path)
	require.NoError(t, err)

	var p prompts.AssembledPrompt
	require.NoError(t, json.Unmarshal([]byte(out), &p), out)
	assert.Contains(t, p.FullText, "You are Cass, a companion who lives alongside Robin.")
	assert.Contains(t, p.FullText, "It is late.")
	assert.Contains(t, p.FullText, "This conversation is 4 turns long.")
	assert.Positive(t, p.TokenEstimate)

	out, err = run(t, "chain", "assemble", "--now", "2026-03-14T23:10:00Z", "--flag", "focus", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "It is late.")
	assert.Contains(t, out, "VOW OF WITNESS")
}

func TestChainValidate(t *testing.T) {
	out, err := run(t, "chain", "validate", writeFile(t, "ok.yaml", eveningChain))
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	out, err = run(t, "chain", "validate", writeFile(t, "bad.yaml", "name: Bad\nnodes:\n  - template: identity\n"))
	assert.ErrorIs(t, err, errInvalid)
	assert.Contains(t, out, "invalid")
}

func TestChainImport_LegacyJSON(t *testing.T) {
	path := writeFile(t, "legacy.json", `{
		'name': 'Legacy',
		'nodes': [
			{'template_slug': 'compassion', 'position': 1},
			{'template_slug': 'witness', 'position': 2},
			{'template_slug': 'dreaming', 'position': 3,
			 'condition': {'type': 'weekday', 'days': ['saturday']}},
		]
	}`)
	out, err := run(t, "chain", "import", "--activate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "repaired malformed JSON")
	assert.Contains(t, out, `translated condition dreaming: weekday == "saturday"`)
	assert.Contains(t, out, "activated chain")
}

func TestComponentsCommands(t *testing.T) {
	good := writeFile(t, "components.yaml", `
name: Default
core_vows:
  - {id: compassion, enabled: true}
  - {id: witness, enabled: true}
tool_categories:
  web: true
`)
	out, err := run(t, "components", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	out, err = run(t, "components", "assemble", "--now", "2026-03-16T09:00:00Z", good)
	require.NoError(t, err)
	assert.Contains(t, out, "You can search the web.")

	bad := writeFile(t, "bad.json", `{"name": "NoWitness", "core_vows": {"compassion": true, "witness": false}}`)
	_, err = run(t, "components", "validate", bad)
	assert.ErrorIs(t, err, errInvalid)

	_, err = run(t, "components", "activate", bad)
	var safety *prompts.SafetyInvariantError
	assert.ErrorAs(t, err, &safety)
}

func TestTemplatesCommands(t *testing.T) {
	out, err := run(t, "templates", "list", "--category", "vow")
	require.NoError(t, err)
	assert.Contains(t, out, "compassion")
	assert.Contains(t, out, "locked,default")
	assert.NotContains(t, out, "journal")

	out, err = run(t, "templates", "show", "witness")
	require.NoError(t, err)
	assert.Contains(t, out, `"slug": "witness"`)

	_, err = run(t, "templates", "show", "missing")
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func TestRuntimeFlagErrors(t *testing.T) {
	path := writeFile(t, "chain.yaml", eveningChain)
	_, err := run(t, "chain", "assemble", "--user", "no-equals", path)
	assert.Error(t, err)
	_, err = run(t, "chain", "assemble", "--metric", "load=high", path)
	assert.Error(t, err)
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"mood=tired", "tz = Europe/Oslo", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mood": "tired", "tz": " Europe/Oslo", "empty": ""}, got)

	got, err = parsePairs(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConfigCommands(t *testing.T) {
	out, err := run(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	path := filepath.Join(t.TempDir(), "new.toml")
	out, err = run(t, "config", "init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	out, err = run(t, "--log-level", "warn", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "chars_per_token")
	assert.Contains(t, out, `"warn"`)
}
