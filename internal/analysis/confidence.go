package analysis

import "math"

// Confidence scores how much of the requested schema a parse recovered.
// Structured output ranges over [0.5, 1]; heuristic output is capped at 0.5.
func Confidence(p Parsed) float64 {
	filled := 0
	for _, ok := range []bool{
		p.ImplementationOverview != "",
		p.TechnicalDetails != "",
		len(p.TechStack) > 0,
		len(p.ArchitecturePatterns) > 0,
		len(p.BestPractices) > 0,
	} {
		if ok {
			filled++
		}
	}
	coverage := float64(filled) / 5

	var score float64
	switch p.Outcome {
	case OutcomeStructured:
		score = 0.5 + 0.5*coverage
	case OutcomeHeuristic:
		score = 0.1 + 0.4*coverage
	default:
		score = 0
	}
	return math.Round(score*100) / 100
}
