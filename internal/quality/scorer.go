package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tributary-ai/diag-router/internal/types"
)

// Score weighting: completeness carries the most, structure and detail
// split the rest evenly.
const (
	weightCompleteness = 0.4
	weightStructure    = 0.3
	weightDetail       = 0.3
)

var (
	headingPattern    = regexp.MustCompile(`(?m)^(?:#+\s+\S|[A-Za-z][A-Za-z /-]{2,40}:\s*$)`)
	listPattern       = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+\S`)
	scorerSentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)

	// Capitalized multi-character tokens as a proxy for terminology density
	termPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]{3,}\b`)
)

// Scorer grades an answer's structural completeness and level of detail
// against the checklist for its request category.
type Scorer struct {
	checklists map[types.Category]Checklist
}

// NewScorer creates a scorer over the given checklist tables; nil means
// the built-in defaults.
func NewScorer(checklists map[types.Category]Checklist) *Scorer {
	if checklists == nil {
		checklists = DefaultChecklists()
	}
	return &Scorer{checklists: checklists}
}

// Score grades rawText for the category. Unknown categories fall back to
// the minimal generic checklist.
func (s *Scorer) Score(rawText string, category types.Category) *types.Scorecard {
	checklist := ChecklistFor(s.checklists, category)
	lower := strings.ToLower(rawText)

	card := &types.Scorecard{
		MissingCritical: []string{},
		Recommendations: []string{},
	}

	found := 0
	var missing []string
	for _, field := range checklist.Required {
		if strings.Contains(lower, strings.ToLower(field)) {
			found++
		} else {
			missing = append(missing, field)
		}
	}
	if len(checklist.Required) > 0 {
		card.Completeness = float64(found) / float64(len(checklist.Required))
	} else {
		card.Completeness = 1.0
	}

	for _, field := range checklist.Critical {
		if !strings.Contains(lower, strings.ToLower(field)) {
			card.MissingCritical = append(card.MissingCritical, field)
		}
	}

	structure := structureScore(rawText)
	detail := detailScore(rawText)

	card.OverallScore = weightCompleteness*card.Completeness +
		weightStructure*structure +
		weightDetail*detail
	card.Grade = gradeFor(card.OverallScore)

	// Missing critical fields lead the recommendations
	for _, field := range card.MissingCritical {
		card.Recommendations = append(card.Recommendations,
			fmt.Sprintf("add the missing critical %q section", field))
	}
	for _, field := range missing {
		if contains(card.MissingCritical, field) {
			continue
		}
		card.Recommendations = append(card.Recommendations,
			fmt.Sprintf("cover %q to complete the report", field))
	}
	if structure < 0.5 {
		card.Recommendations = append(card.Recommendations,
			"structure the answer with headings or enumerated findings")
	}

	return card
}

// structureScore rewards headings and enumerated lists
func structureScore(text string) float64 {
	score := 0.0
	if headingPattern.MatchString(text) {
		score += 0.5
	}
	if listPattern.MatchString(text) {
		score += 0.5
	}
	return score
}

// detailScore rewards sentence count and terminology density, each capped
func detailScore(text string) float64 {
	sentences := len(scorerSentenceEnd.FindAllString(text, -1))
	terms := len(termPattern.FindAllString(text, -1))

	sentenceScore := float64(sentences) / 10.0
	if sentenceScore > 1 {
		sentenceScore = 1
	}
	termScore := float64(terms) / 15.0
	if termScore > 1 {
		termScore = 1
	}
	return 0.5*sentenceScore + 0.5*termScore
}

func gradeFor(score float64) types.Grade {
	switch {
	case score >= 0.9:
		return types.GradeA
	case score >= 0.75:
		return types.GradeB
	case score >= 0.6:
		return types.GradeC
	default:
		return types.GradeD
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
