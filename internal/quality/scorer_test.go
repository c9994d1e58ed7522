package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tributary-ai/diag-router/internal/types"
)

func TestScoreCompleteAnswer(t *testing.T) {
	s := NewScorer(nil)

	text := `Findings:
- Clear lung fields bilaterally. Cardiac silhouette within Normal limits.
- No Pleural effusion identified. Osseous structures Intact.

Impression:
1. No acute cardiopulmonary Disease. Stable Appearance compared to prior.

Diagnosis: No acute findings. Comparison: prior study from January Reviewed.

Recommendations:
- Routine follow-up imaging. Clinical Correlation advised. Repeat study if Symptoms progress.
Additional sentences provide further Detail. The study Quality was adequate. Technique was Standard.`

	card := s.Score(text, "radiology")

	assert.Equal(t, 1.0, card.Completeness)
	assert.Empty(t, card.MissingCritical)
	assert.GreaterOrEqual(t, card.OverallScore, 0.75)
	assert.NotEqual(t, types.GradeD, card.Grade)
}

func TestScoreMissingCriticalLeadsRecommendations(t *testing.T) {
	s := NewScorer(nil)

	// No impression, no diagnosis: both are critical for radiology
	text := "Findings: clear. Comparison: none. Recommendations: none."
	card := s.Score(text, "radiology")

	assert.Contains(t, card.MissingCritical, "impression")
	assert.Contains(t, card.MissingCritical, "diagnosis")
	assert.NotEmpty(t, card.Recommendations)
	assert.Contains(t, card.Recommendations[0], "critical")
}

func TestScoreUnknownCategoryUsesGenericChecklist(t *testing.T) {
	s := NewScorer(nil)

	text := "Diagnosis: all good. Recommendations: none."
	card := s.Score(text, "astrology")

	assert.Equal(t, 1.0, card.Completeness)
}

func TestScoreStructureComponents(t *testing.T) {
	assert.Equal(t, 0.0, structureScore("flat prose with no structure at all"))
	assert.Equal(t, 0.5, structureScore("# Heading\nflat prose"))
	assert.Equal(t, 0.5, structureScore("- item one\n- item two"))
	assert.Equal(t, 1.0, structureScore("# Heading\n- item one"))
}

func TestScoreDetailCaps(t *testing.T) {
	long := strings.Repeat("The Patient presented with Symptoms of Fatigue and Malaise today. ", 20)
	assert.Equal(t, 1.0, detailScore(long))

	assert.Less(t, detailScore("Short."), 0.3)
}

func TestGradeBuckets(t *testing.T) {
	tests := []struct {
		score float64
		want  types.Grade
	}{
		{0.95, types.GradeA},
		{0.9, types.GradeA},
		{0.89, types.GradeB},
		{0.75, types.GradeB},
		{0.74, types.GradeC},
		{0.6, types.GradeC},
		{0.59, types.GradeD},
		{0.0, types.GradeD},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, gradeFor(tt.score), "score %v", tt.score)
	}
}

func TestScoreWeights(t *testing.T) {
	// The three weights must partition the unit interval
	assert.InDelta(t, 1.0, weightCompleteness+weightStructure+weightDetail, 1e-9)
}
