package prompts

import (
	"slices"
	"strings"
)

// Identifiers of the core vows every configuration must enable.
const (
	VowCompassion = "compassion"
	VowWitness    = "witness"
)

// MandatoryVows lists the vows a configuration cannot disable.
var MandatoryVows = []string{VowCompassion, VowWitness}

func isMandatoryVow(id string) bool { return slices.Contains(MandatoryVows, id) }

// Validator checks components configurations against the registry.
type Validator struct {
	registry *Registry
}

func NewValidator(reg *Registry) *Validator {
	return &Validator{registry: reg}
}

// ValidateConfiguration collects every violation in cfg. It has no side
// effects.
func (v *Validator) ValidateConfiguration(cfg ComponentsConfig) ValidationResult {
	res := ValidationResult{IsValid: true, Errors: []string{}, Warnings: []string{}}

	// enabled maps canonical vow slug -> enabled, over core and supplementary vows.
	enabled := map[string]bool{}
	coreSeen := map[string]bool{}
	for _, cv := range cfg.CoreVows {
		id := v.canonicalVow(cv.ID)
		if coreSeen[id] {
			res.addWarning("core vow %q listed more than once", cv.ID)
		}
		coreSeen[id] = true
		if !v.isVowTemplate(cv.ID) {
			res.addWarning("core vow %q is not a known vow", cv.ID)
		}
		enabled[id] = enabled[id] || cv.Enabled
	}
	for _, id := range MandatoryVows {
		switch {
		case !coreSeen[id]:
			res.addError("mandatory vow %q is missing", id)
		case !enabled[id]:
			res.addError("mandatory vow %q is disabled", id)
		}
	}

	supSeen := map[string]bool{}
	for _, sv := range cfg.SupplementaryVows {
		id := strings.TrimSpace(sv.ID)
		switch {
		case id == "":
			res.addWarning("supplementary vow %q has no id", sv.Name)
			continue
		case supSeen[id]:
			res.addWarning("supplementary vow %q listed more than once", id)
		case isMandatoryVow(id):
			res.addWarning("supplementary vow %q reuses a mandatory vow id", id)
		}
		supSeen[id] = true
		if sv.Enabled && !isMandatoryVow(id) {
			enabled[id] = true
		}
	}

	for _, sv := range cfg.SupplementaryVows {
		if !sv.Enabled || strings.TrimSpace(sv.ID) == "" {
			continue
		}
		rel := sv.relations().merge(v.templateRelations(sv.ID))
		for _, other := range rel.Contradicts {
			o := v.canonicalVow(other)
			switch {
			case isMandatoryVow(o):
				res.addError("supplementary vow %q contradicts mandatory vow %q", sv.ID, o)
			case enabled[o]:
				res.addWarning("supplementary vow %q contradicts enabled vow %q", sv.ID, o)
			}
		}
		for _, other := range rel.ConflictsWith {
			if enabled[v.canonicalVow(other)] {
				res.addWarning("supplementary vow %q conflicts with enabled vow %q", sv.ID, other)
			}
		}
		for _, other := range rel.Requires {
			if !enabled[v.canonicalVow(other)] {
				res.addWarning("supplementary vow %q requires vow %q, which is not enabled", sv.ID, other)
			}
		}
	}

	v.checkRefs(&res, "memory system", cfg.MemorySystems, CategoryContext)
	v.checkRefs(&res, "tool category", cfg.ToolCategories, CategoryTools)
	v.checkRefs(&res, "feature", cfg.Features, CategoryFeature)

	res.IsValid = len(res.Errors) == 0
	return res
}

// MissingMandatoryVows returns the mandatory vows cfg does not enable.
func (v *Validator) MissingMandatoryVows(cfg ComponentsConfig) []string {
	var missing []string
	for _, id := range MandatoryVows {
		ok := false
		for _, cv := range cfg.CoreVows {
			if v.canonicalVow(cv.ID) == id && cv.Enabled {
				ok = true
				break
			}
		}
		if !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func (v *Validator) checkRefs(res *ValidationResult, kind string, refs map[string]bool, want Category) {
	for _, id := range sortedKeys(refs) {
		t, err := v.registry.Get(id)
		if err != nil || t.Category != want {
			res.addWarning("unknown %s %q", kind, id)
		}
	}
}

// canonicalVow maps a vow id or template id to the vow's slug.
func (v *Validator) canonicalVow(ref string) string {
	if t, err := v.registry.Get(ref); err == nil && t.Category == CategoryVow {
		return t.Slug
	}
	return ref
}

func (v *Validator) isVowTemplate(ref string) bool {
	t, err := v.registry.Get(ref)
	return err == nil && t.Category == CategoryVow
}

func (v *Validator) templateRelations(ref string) VowRelations {
	t, err := v.registry.Get(ref)
	if err != nil || t.Category != CategoryVow {
		return VowRelations{}
	}
	return t.Relations
}
