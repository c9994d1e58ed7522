package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/diag-router/internal/types"
)

// MinCompleteness is the validity threshold for the completeness score
const MinCompleteness = 0.7

// safetyContextRadius is how many characters of surrounding context each
// safety issue captures on either side of the match.
const safetyContextRadius = 50

// Default safety vocabulary: contraindication and danger-class terms
// whose presence always invalidates the answer for automatic delivery.
var defaultSafetyTerms = []string{
	"contraindicated",
	"do not administer",
	"do not combine",
	"black box warning",
	"fatal if",
	"overdose risk",
	"toxic dose",
	"anaphylaxis",
	"severe allergic reaction",
}

// Antonym pairs whose co-occurrence inside one sentence suggests the
// answer contradicts itself.
var defaultAntonymPairs = [][2]string{
	{"normal", "pathological"},
	{"absent", "present"},
	{"benign", "malignant"},
	{"unremarkable", "abnormal"},
	{"ruled out", "confirmed"},
}

var validatorSentenceSplit = regexp.MustCompile(`[.!?]\s+|\n`)

// Validator checks a candidate answer against structural completeness
// rules and a safety-keyword scan. Validation failure is data, never an
// error.
type Validator struct {
	safetyTerms  []string
	antonymPairs [][2]string
	logger       *logrus.Logger
}

// NewValidator creates a validator with the built-in safety vocabulary
func NewValidator(logger *logrus.Logger) *Validator {
	return &Validator{
		safetyTerms:  defaultSafetyTerms,
		antonymPairs: defaultAntonymPairs,
		logger:       logger,
	}
}

// Validate scores rawText against the required section labels. Presence
// is a case-insensitive substring check per label; the answer is valid
// when at least 70% of sections are present and no safety term matched.
func (v *Validator) Validate(rawText string, requiredSections []string) *types.ValidationResult {
	result := &types.ValidationResult{
		MissingSections: []string{},
		SafetyIssues:    []string{},
		Warnings:        []string{},
	}

	lower := strings.ToLower(rawText)

	if len(requiredSections) == 0 {
		result.CompletenessScore = 1.0
	} else {
		present := 0
		for _, section := range requiredSections {
			if strings.Contains(lower, strings.ToLower(section)) {
				present++
			} else {
				result.MissingSections = append(result.MissingSections, section)
			}
		}
		result.CompletenessScore = float64(present) / float64(len(requiredSections))
	}

	result.SafetyIssues = v.scanSafety(rawText, lower)
	result.Warnings = v.scanContradictions(rawText)

	result.IsValid = result.CompletenessScore >= MinCompleteness && len(result.SafetyIssues) == 0

	if !result.IsValid {
		v.logger.WithFields(logrus.Fields{
			"completeness":  result.CompletenessScore,
			"missing":       len(result.MissingSections),
			"safety_issues": len(result.SafetyIssues),
		}).Debug("Answer failed validation")
	}

	return result
}

// scanSafety captures each safety-term match with surrounding context
func (v *Validator) scanSafety(rawText, lower string) []string {
	issues := []string{}
	for _, term := range v.safetyTerms {
		idx := strings.Index(lower, term)
		for idx >= 0 {
			start := idx - safetyContextRadius
			if start < 0 {
				start = 0
			}
			end := idx + len(term) + safetyContextRadius
			if end > len(rawText) {
				end = len(rawText)
			}
			issues = append(issues, fmt.Sprintf("%s: ...%s...", term, strings.TrimSpace(rawText[start:end])))

			next := strings.Index(lower[idx+len(term):], term)
			if next < 0 {
				break
			}
			idx = idx + len(term) + next
		}
	}
	return issues
}

// scanContradictions flags sentences that contain both halves of an
// antonym pair.
func (v *Validator) scanContradictions(rawText string) []string {
	warnings := []string{}
	for _, sentence := range validatorSentenceSplit.Split(rawText, -1) {
		lower := strings.ToLower(sentence)
		for _, pair := range v.antonymPairs {
			if strings.Contains(lower, pair[0]) && strings.Contains(lower, pair[1]) {
				warnings = append(warnings,
					fmt.Sprintf("possible self-contradiction (%q vs %q): %s", pair[0], pair[1], strings.TrimSpace(sentence)))
			}
		}
	}
	return warnings
}
