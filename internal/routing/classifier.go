package routing

import (
	"strings"
	"sync/atomic"

	"github.com/tributary-ai/diag-router/internal/types"
)

// ComplexityLevel is a coarse classification of request difficulty used to
// pick a backend tier and invocation parameters.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityRoutine  ComplexityLevel = "routine"
	ComplexityComplex  ComplexityLevel = "complex"
	ComplexityCritical ComplexityLevel = "critical"
)

// Vocabulary holds the three disjoint complexity marker lists. The lists
// are configuration, loaded at startup and immutable afterwards.
type Vocabulary struct {
	Critical []string `yaml:"critical"`
	Complex  []string `yaml:"complex"`
	Simple   []string `yaml:"simple"`
}

// CategoryKeywords maps one request category to its keyword set.
// Extraction marks categories whose requests are structured-document
// pulls (lab panels, medication lists), which route to the fast
// specialised tier even when complex.
type CategoryKeywords struct {
	Name       types.Category `yaml:"name"`
	Keywords   []string       `yaml:"keywords"`
	Extraction bool           `yaml:"extraction"`
}

// Classifier maps request text to a category and a complexity level by
// keyword matching. Classification is pure: identical input always yields
// identical output. The call counter exists only for observability.
type Classifier struct {
	vocab      Vocabulary
	categories []CategoryKeywords
	calls      atomic.Int64
}

// NewClassifier builds a classifier over the given marker vocabulary and
// category table. Callers pass DefaultVocabulary/DefaultCategories unless
// the configuration overrides them.
func NewClassifier(vocab Vocabulary, categories []CategoryKeywords) *Classifier {
	return &Classifier{vocab: vocab, categories: categories}
}

// Classify returns the most-matched category and the complexity level for
// the request text. Complexity priority is critical > complex > simple;
// routine is the default when no markers match. Category ties break by
// declared table order.
func (c *Classifier) Classify(text string) (types.Category, ComplexityLevel) {
	c.calls.Add(1)
	lower := strings.ToLower(text)

	category := types.CategoryGeneral
	best := 0
	for _, ck := range c.categories {
		hits := 0
		for _, kw := range ck.Keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > best {
			best = hits
			category = ck.Name
		}
	}

	complexity := ComplexityRoutine
	switch {
	case containsAny(lower, c.vocab.Critical):
		complexity = ComplexityCritical
	case containsAny(lower, c.vocab.Complex):
		complexity = ComplexityComplex
	case containsAny(lower, c.vocab.Simple):
		complexity = ComplexitySimple
	}

	return category, complexity
}

// IsExtraction reports whether a category is a structured-document
// extraction category per the configured table.
func (c *Classifier) IsExtraction(category types.Category) bool {
	for _, ck := range c.categories {
		if ck.Name == category {
			return ck.Extraction
		}
	}
	return false
}

// Calls returns how many times Classify has run. Used to verify that
// explicit overrides bypass classification entirely.
func (c *Classifier) Calls() int64 {
	return c.calls.Load()
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// DefaultVocabulary returns the built-in complexity marker lists. The
// three lists are disjoint by construction.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Critical: []string{
			"critical", "emergency", "emergent", "life-threatening",
			"unresponsive", "cardiac arrest", "stat", "acute distress",
			"hemorrhage", "stroke",
		},
		Complex: []string{
			"differential", "multi-system", "comorbid", "ambiguous",
			"conflicting", "second opinion", "rare", "atypical",
			"full workup", "detailed analysis",
		},
		Simple: []string{
			"screening", "simple", "quick check", "routine check",
			"follow-up", "refill", "normal range", "yes or no",
		},
	}
}

// DefaultCategories returns the built-in category keyword table
func DefaultCategories() []CategoryKeywords {
	return []CategoryKeywords{
		{
			Name:     "radiology",
			Keywords: []string{"x-ray", "xray", "radiograph", "ct scan", "mri", "ultrasound", "imaging", "scan", "chest film"},
		},
		{
			Name:     "pathology",
			Keywords: []string{"biopsy", "histology", "specimen", "cytology", "tissue sample", "smear"},
		},
		{
			Name:       "lab_report",
			Keywords:   []string{"lab report", "lab results", "blood panel", "cbc", "metabolic panel", "lipid panel", "urinalysis", "extract values"},
			Extraction: true,
		},
		{
			Name:       "medication_list",
			Keywords:   []string{"medication list", "prescription", "drug interaction", "dosage", "pharmacy record"},
			Extraction: true,
		},
		{
			Name:     "cardiology",
			Keywords: []string{"ecg", "ekg", "echocardiogram", "heart rhythm", "arrhythmia", "cardiac"},
		},
		{
			Name:     "dermatology",
			Keywords: []string{"skin lesion", "rash", "mole", "dermat", "eczema"},
		},
	}
}
