package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseComponents() ComponentsConfig {
	return ComponentsConfig{
		Name: "base",
		CoreVows: []VowToggle{
			{ID: "compassion", Enabled: true},
			{ID: "witness", Enabled: true},
			{ID: "release", Enabled: true},
		},
		MemorySystems:  map[string]bool{"journal": true},
		ToolCategories: map[string]bool{"calendar": true},
		Features:       map[string]bool{"gestures": false},
	}
}

func TestValidateConfiguration_Valid(t *testing.T) {
	v := NewValidator(builtinRegistry(t))
	res := v.ValidateConfiguration(baseComponents())
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, v.MissingMandatoryVows(baseComponents()))
}

func TestValidateConfiguration_MandatoryVows(t *testing.T) {
	v := NewValidator(builtinRegistry(t))

	cfg := baseComponents()
	cfg.CoreVows = []VowToggle{{ID: "compassion", Enabled: false}}
	res := v.ValidateConfiguration(cfg)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{
		`mandatory vow "compassion" is disabled`,
		`mandatory vow "witness" is missing`,
	}, res.Errors)
	assert.Equal(t, []string{"compassion", "witness"}, v.MissingMandatoryVows(cfg))

	// template ids count as the vow they name
	cfg.CoreVows = []VowToggle{{ID: "vow-compassion", Enabled: true}, {ID: "vow-witness", Enabled: true}}
	res = v.ValidateConfiguration(cfg)
	assert.True(t, res.IsValid, res.Errors)
	assert.Empty(t, v.MissingMandatoryVows(cfg))
}

func TestValidateConfiguration_CoreVowWarnings(t *testing.T) {
	v := NewValidator(builtinRegistry(t))
	cfg := baseComponents()
	cfg.CoreVows = append(cfg.CoreVows,
		VowToggle{ID: "vow-witness", Enabled: false},
		VowToggle{ID: "bogus", Enabled: true},
	)
	res := v.ValidateConfiguration(cfg)
	assert.True(t, res.IsValid, "an enabled duplicate still satisfies the mandatory vow")
	assert.Equal(t, []string{
		`core vow "vow-witness" listed more than once`,
		`core vow "bogus" is not a known vow`,
	}, res.Warnings)
}

func TestValidateConfiguration_SupplementaryRelations(t *testing.T) {
	v := NewValidator(builtinRegistry(t))
	cfg := baseComponents()
	cfg.SupplementaryVows = []SupplementaryVow{
		{ID: "candor", Name: "Candor", Text: "Say it straight.", Enabled: true,
			Contradicts: []string{"release"}, ConflictsWith: []string{"tact"}, Requires: []string{"continuance"}},
		{ID: "tact", Name: "Tact", Text: "Be gentle.", Enabled: true},
		{ID: "ruthless", Name: "Ruthless", Text: "No mercy.", Enabled: true, Contradicts: []string{"vow-compassion"}},
		{ID: "dormant", Name: "Dormant", Text: "Unused.", Enabled: false, Contradicts: []string{"witness"}},
	}

	res := v.ValidateConfiguration(cfg)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{`supplementary vow "ruthless" contradicts mandatory vow "compassion"`}, res.Errors)
	assert.Equal(t, []string{
		`supplementary vow "candor" contradicts enabled vow "release"`,
		`supplementary vow "candor" conflicts with enabled vow "tact"`,
		`supplementary vow "candor" requires vow "continuance", which is not enabled`,
	}, res.Warnings)
}

func TestValidateConfiguration_SupplementaryIDs(t *testing.T) {
	v := NewValidator(builtinRegistry(t))
	cfg := baseComponents()
	cfg.SupplementaryVows = []SupplementaryVow{
		{Name: "nameless", Enabled: true},
		{ID: "a", Enabled: true},
		{ID: "a", Enabled: true},
		{ID: "witness", Enabled: true},
	}
	res := v.ValidateConfiguration(cfg)
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{
		`supplementary vow "nameless" has no id`,
		`supplementary vow "a" listed more than once`,
		`supplementary vow "witness" reuses a mandatory vow id`,
	}, res.Warnings)
}

func TestValidateConfiguration_UnknownReferencesOnlyWarn(t *testing.T) {
	v := NewValidator(builtinRegistry(t))
	cfg := baseComponents()
	cfg.MemorySystems = map[string]bool{"journal": true, "diary": true}
	cfg.ToolCategories = map[string]bool{"web": true, "journal": false}
	cfg.Features = map[string]bool{"telepathy": true}

	res := v.ValidateConfiguration(cfg)
	require.True(t, res.IsValid)
	assert.Equal(t, []string{
		`unknown memory system "diary"`,
		`unknown tool category "journal"`,
		`unknown feature "telepathy"`,
	}, res.Warnings)
}
