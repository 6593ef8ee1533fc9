package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Outcome tags how a model response was turned into analysis fields.
type Outcome string

const (
	// OutcomeStructured means the response was the requested JSON object.
	OutcomeStructured Outcome = "structured"
	// OutcomeHeuristic means the fields were recovered from free text.
	OutcomeHeuristic Outcome = "heuristic"
	// OutcomeParseFailure means neither path found anything usable. The
	// analysis still completes, with empty fields.
	OutcomeParseFailure Outcome = "parse_failure"
)

// Parsed is the result of interpreting one model response.
type Parsed struct {
	Outcome                Outcome
	ImplementationOverview string
	TechnicalDetails       string
	TechStack              []string
	ArchitecturePatterns   []string
	BestPractices          []string
}

type structuredResponse struct {
	ImplementationOverview string `json:"implementationOverview"`
	TechnicalDetails       string `json:"technicalDetails"`
	TechStack              []any  `json:"techStack"`
	ArchitecturePatterns   []any  `json:"architecturePatterns"`
	BestPractices          []any  `json:"bestPractices"`
}

// ParseResponse interprets raw model text. It never fails: text that is not
// the requested JSON object goes through the heuristic extractors.
func ParseResponse(raw string) Parsed {
	text := StripCodeFence(raw)

	if parsed, ok := parseStructured(text); ok {
		return parsed
	}

	parsed := ParseHeuristic(text)
	if len(parsed.TechStack) == 0 && len(parsed.ArchitecturePatterns) == 0 && len(parsed.BestPractices) == 0 {
		// Prose without any cued list is kept whole for the reader.
		return Parsed{
			Outcome:                OutcomeParseFailure,
			ImplementationOverview: text,
			TechStack:              []string{},
			ArchitecturePatterns:   []string{},
			BestPractices:          []string{},
		}
	}
	return parsed
}

func parseStructured(text string) (Parsed, bool) {
	if !strings.HasPrefix(text, "{") {
		return Parsed{}, false
	}
	var resp structuredResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return Parsed{}, false
	}
	return Parsed{
		Outcome:                OutcomeStructured,
		ImplementationOverview: strings.TrimSpace(resp.ImplementationOverview),
		TechnicalDetails:       strings.TrimSpace(resp.TechnicalDetails),
		TechStack:              CleanArrayItems(resp.TechStack),
		ArchitecturePatterns:   CleanArrayItems(resp.ArchitecturePatterns),
		BestPractices:          CleanArrayItems(resp.BestPractices),
	}, true
}

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")

// StripCodeFence removes a markdown code fence wrapping the whole text.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

var (
	techStackCues = []string{"tech stack", "built with", "using"}
	patternCues   = []string{"architecture", "pattern"}
	practiceCues  = []string{"best practices"}

	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
)

// ParseHeuristic recovers analysis fields from free text. The first
// paragraph becomes the overview and the rest the technical details; each
// list comes from the first line carrying one of its cue phrases.
func ParseHeuristic(text string) Parsed {
	sections := SplitSections(text)

	parsed := Parsed{
		Outcome:              OutcomeHeuristic,
		TechStack:            ExtractCued(sections, techStackCues),
		ArchitecturePatterns: ExtractCued(sections, patternCues),
		BestPractices:        ExtractCued(sections, practiceCues),
	}
	if len(sections) > 0 {
		parsed.ImplementationOverview = sections[0]
		parsed.TechnicalDetails = strings.Join(sections[1:], "\n\n")
	}
	return parsed
}

// SplitSections splits text into trimmed, non-empty paragraphs.
func SplitSections(text string) []string {
	var sections []string
	for _, part := range paragraphBreak.Split(text, -1) {
		if part = strings.TrimSpace(part); part != "" {
			sections = append(sections, part)
		}
	}
	return sections
}

var cuePatterns sync.Map // cue -> *regexp.Regexp

// cuePattern matches the cue as whole words, ignoring case.
func cuePattern(cue string) *regexp.Regexp {
	if re, ok := cuePatterns.Load(cue); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(cue) + `\b`)
	cuePatterns.Store(cue, re)
	return re
}

// ExtractCued finds the first cue, in cue order, present as whole words in
// any line of the sections and splits the text after it on commas. When the remainder of the
// line holds a colon, the list starts after the colon. A missing cue yields
// an empty list.
func ExtractCued(sections []string, cues []string) []string {
	for _, cue := range cues {
		for _, section := range sections {
			for _, line := range strings.Split(section, "\n") {
				loc := cuePattern(cue).FindStringIndex(line)
				if loc == nil {
					continue
				}
				tail := line[loc[1]:]
				if colon := strings.Index(tail, ":"); colon >= 0 {
					tail = tail[colon+1:]
				}
				tail = strings.TrimRight(strings.TrimSpace(tail), ".")

				parts := strings.Split(tail, ",")
				items := make([]any, len(parts))
				for i, p := range parts {
					items[i] = p
				}
				return CleanArrayItems(items)
			}
		}
	}
	return []string{}
}

var (
	headerPhrases = []string{"including:", "such as:"}
	bulletPattern = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)
)

// CleanArrayItems normalizes a list from model output. Non-strings, empty
// entries and header-like entries are dropped; bullets and surrounding
// whitespace are stripped.
func CleanArrayItems(items []any) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(norm.NFC.String(s))
		if s == "" || isHeader(s) {
			continue
		}
		s = strings.TrimSpace(bulletPattern.ReplaceAllString(s, ""))
		if s == "" {
			continue
		}
		cleaned = append(cleaned, s)
	}
	return cleaned
}

func isHeader(s string) bool {
	lower := strings.ToLower(s)
	for _, phrase := range headerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
