package types

// ValidationResult is the structural and safety check over one raw answer.
// A failed validation is data, never an error: callers decide how to
// present it.
type ValidationResult struct {
	IsValid           bool     `json:"is_valid"`
	CompletenessScore float64  `json:"completeness_score"`
	MissingSections   []string `json:"missing_sections"`
	SafetyIssues      []string `json:"safety_issues"`
	Warnings          []string `json:"warnings"`
}

// Grade buckets an overall quality score
type Grade string

const (
	GradeA Grade = "A" // >= 0.90
	GradeB Grade = "B" // >= 0.75
	GradeC Grade = "C" // >= 0.60
	GradeD Grade = "D"
)

// Scorecard grades an answer's completeness and level of detail against
// the checklist for its request category.
type Scorecard struct {
	OverallScore    float64  `json:"overall_score"`
	Completeness    float64  `json:"completeness"`
	Grade           Grade    `json:"grade"`
	MissingCritical []string `json:"missing_critical"`
	Recommendations []string `json:"recommendations"`
}
