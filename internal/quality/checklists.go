package quality

import (
	"github.com/tributary-ai/diag-router/internal/types"
)

// Checklist names the fields a complete answer for a category must cover,
// plus the critical subset whose absence is flagged first. Checklists are
// configuration with compiled-in defaults, loaded at startup.
type Checklist struct {
	Required []string `yaml:"required"`
	Critical []string `yaml:"critical"`
}

// GenericChecklist is the minimal fallback for unknown categories
func GenericChecklist() Checklist {
	return Checklist{
		Required: []string{"diagnosis", "recommendations"},
		Critical: []string{"diagnosis"},
	}
}

// DefaultChecklists returns the built-in per-category checklist tables
func DefaultChecklists() map[types.Category]Checklist {
	return map[types.Category]Checklist{
		"radiology": {
			Required: []string{"findings", "impression", "diagnosis", "recommendations", "comparison"},
			Critical: []string{"impression", "diagnosis"},
		},
		"pathology": {
			Required: []string{"specimen", "microscopic description", "diagnosis", "recommendations"},
			Critical: []string{"diagnosis"},
		},
		"lab_report": {
			Required: []string{"values", "reference range", "abnormal", "interpretation", "recommendations"},
			Critical: []string{"abnormal", "interpretation"},
		},
		"medication_list": {
			Required: []string{"medications", "dosage", "interactions", "recommendations"},
			Critical: []string{"interactions"},
		},
		"cardiology": {
			Required: []string{"rhythm", "rate", "intervals", "interpretation", "recommendations"},
			Critical: []string{"rhythm", "interpretation"},
		},
		"dermatology": {
			Required: []string{"description", "diagnosis", "differential", "recommendations"},
			Critical: []string{"diagnosis"},
		},
	}
}

// ChecklistFor returns the checklist for a category, falling back to the
// generic one for categories the table does not know.
func ChecklistFor(checklists map[types.Category]Checklist, category types.Category) Checklist {
	if cl, ok := checklists[category]; ok {
		return cl
	}
	return GenericChecklist()
}
