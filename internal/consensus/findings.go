package consensus

import (
	"regexp"
	"strings"

	"github.com/tributary-ai/diag-router/internal/types"
)

// Extraction is pattern matching over free text, nothing more: a Finding
// is a projection of the raw answer used to compare opinions, never an
// authoritative reading of it.

var (
	// Diagnosis-like statements following a known label
	diagnosisLabel = regexp.MustCompile(`(?im)^\s*(?:primary\s+)?(?:diagnosis|impression|conclusion|assessment)\s*:\s*(.+)$`)

	// ICD-10 style classification codes
	codePattern = regexp.MustCompile(`\b[A-Z][0-9]{2}(?:\.[0-9]{1,2})?\b`)

	sentenceSplit = regexp.MustCompile(`[.!?]\s+|\n`)
)

// Urgency vocabularies in priority order: the first matching level wins,
// critical before urgent before routine.
var urgencyVocab = []struct {
	level   types.Urgency
	markers []string
}{
	{types.UrgencyCritical, []string{"critical", "emergent", "immediate attention", "emergency", "call 911", "stat"}},
	{types.UrgencyUrgent, []string{"urgent", "prompt attention", "within 24 hours", "as soon as possible"}},
	{types.UrgencyRoutine, []string{"routine", "non-urgent", "no acute", "at your convenience"}},
}

// Keywords whose surrounding sentence is worth surfacing verbatim
var criticalKeywords = []string{
	"hemorrhage", "malignan", "mass effect", "fracture", "pneumothorax",
	"embolism", "rupture", "sepsis", "infarct", "aneurysm", "ischemi",
}

// ExtractFinding builds the structured projection of one raw answer
func ExtractFinding(rawText string) types.Finding {
	finding := types.Finding{
		Diagnoses: extractDiagnoses(rawText),
		Urgency:   extractUrgency(rawText),
		Codes:     extractCodes(rawText),
	}
	finding.CriticalExcerpts = extractCriticalExcerpts(rawText)
	return finding
}

func extractDiagnoses(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range diagnosisLabel.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ";") {
			d := strings.TrimSpace(part)
			d = strings.TrimSuffix(d, ".")
			if d == "" || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func extractUrgency(text string) types.Urgency {
	lower := strings.ToLower(text)
	for _, uv := range urgencyVocab {
		for _, marker := range uv.markers {
			if strings.Contains(lower, marker) {
				return uv.level
			}
		}
	}
	return ""
}

func extractCodes(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, code := range codePattern.FindAllString(text, -1) {
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

func extractCriticalExcerpts(text string) []string {
	var out []string
	for _, sentence := range sentenceSplit.Split(text, -1) {
		s := strings.TrimSpace(sentence)
		if s == "" {
			continue
		}
		lower := strings.ToLower(s)
		for _, kw := range criticalKeywords {
			if strings.Contains(lower, kw) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
