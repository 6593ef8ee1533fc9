package analysis

import (
	"reflect"
	"testing"
)

func TestCleanArrayItems(t *testing.T) {
	tests := []struct {
		name string
		in   []any
		want []string
	}{
		{
			name: "bullets headers and blanks",
			in:   []any{"- Flutter", "", "including: stuff", "  Firebase  "},
			want: []string{"Flutter", "Firebase"},
		},
		{
			name: "non strings dropped",
			in:   []any{"Go", 42, nil, true, "Postgres"},
			want: []string{"Go", "Postgres"},
		},
		{
			name: "numbered and starred bullets",
			in:   []any{"1. Redis", "2) Kafka", "* gRPC", "• Docker", "-"},
			want: []string{"Redis", "Kafka", "gRPC", "Docker"},
		},
		{
			name: "such as header",
			in:   []any{"Frameworks such as:", "React"},
			want: []string{"React"},
		},
		{
			name: "empty input",
			in:   nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanArrayItems(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CleanArrayItems() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"Here is the JSON: ```{}```", "Here is the JSON: ```{}```"},
	}
	for _, tt := range tests {
		if got := StripCodeFence(tt.in); got != tt.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseResponseStructured(t *testing.T) {
	raw := "```json\n" + `{
  "implementationOverview": "A chat app.",
  "technicalDetails": "Realtime sync over websockets.",
  "techStack": ["- Flutter", "Firebase", ""],
  "architecturePatterns": ["BLoC"],
  "bestPractices": ["Practices including:", "Widget tests"]
}` + "\n```"

	got := ParseResponse(raw)
	want := Parsed{
		Outcome:                OutcomeStructured,
		ImplementationOverview: "A chat app.",
		TechnicalDetails:       "Realtime sync over websockets.",
		TechStack:              []string{"Flutter", "Firebase"},
		ArchitecturePatterns:   []string{"BLoC"},
		BestPractices:          []string{"Widget tests"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseResponse() = %+v, want %+v", got, want)
	}
}

func TestParseResponseWrongShapeFallsBack(t *testing.T) {
	got := ParseResponse(`{"techStack": "Go, Postgres"}`)
	if got.Outcome == OutcomeStructured {
		t.Fatalf("string where an array belongs should not parse as structured")
	}
}

const malformedResponse = `This video walks through a todo app built end to end.

Tech stack: React, Node.js, PostgreSQL.
The server is deployed on Fly.io.

Architecture patterns: REST API, repository pattern

Best practices: code review, CI pipelines, - feature flags`

func TestParseHeuristic(t *testing.T) {
	got := ParseResponse(malformedResponse)

	if got.Outcome != OutcomeHeuristic {
		t.Fatalf("Outcome = %s, want heuristic", got.Outcome)
	}
	if got.ImplementationOverview != "This video walks through a todo app built end to end." {
		t.Errorf("overview = %q", got.ImplementationOverview)
	}
	if want := []string{"React", "Node.js", "PostgreSQL"}; !reflect.DeepEqual(got.TechStack, want) {
		t.Errorf("TechStack = %q, want %q", got.TechStack, want)
	}
	if want := []string{"REST API", "repository pattern"}; !reflect.DeepEqual(got.ArchitecturePatterns, want) {
		t.Errorf("ArchitecturePatterns = %q, want %q", got.ArchitecturePatterns, want)
	}
	if want := []string{"code review", "CI pipelines", "feature flags"}; !reflect.DeepEqual(got.BestPractices, want) {
		t.Errorf("BestPractices = %q, want %q", got.BestPractices, want)
	}
}

func TestParseHeuristicIsDeterministic(t *testing.T) {
	first := ParseResponse(malformedResponse)
	for i := 0; i < 5; i++ {
		if again := ParseResponse(malformedResponse); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestParseHeuristicMissingCues(t *testing.T) {
	got := ParseHeuristic("Just a short note about the talk.")
	if len(got.TechStack) != 0 || len(got.ArchitecturePatterns) != 0 || len(got.BestPractices) != 0 {
		t.Errorf("expected empty lists, got %+v", got)
	}
	if got.TechStack == nil {
		t.Error("missing cue should yield an empty list, not nil")
	}
}

func TestParseResponseEmptyIsParseFailure(t *testing.T) {
	got := ParseResponse("   ")
	if got.Outcome != OutcomeParseFailure {
		t.Errorf("Outcome = %s, want parse_failure", got.Outcome)
	}
}

func TestParseResponseProseWithoutListsIsParseFailure(t *testing.T) {
	got := ParseResponse("I could not watch this video.")
	if got.Outcome != OutcomeParseFailure {
		t.Fatalf("Outcome = %s, want parse_failure", got.Outcome)
	}
	if got.ImplementationOverview != "I could not watch this video." {
		t.Errorf("overview = %q, want the raw text", got.ImplementationOverview)
	}
	if Confidence(got) != 0 {
		t.Errorf("Confidence = %v, want 0", Confidence(got))
	}
}

func TestExtractCuedMatchesWholeWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"cue inside focusing", "The talk is focusing on latency, throughput and caching.", []string{}},
		{"cue inside causing", "Causing issues, mostly in tests.", []string{}},
		{"standalone cue", "Mostly using: Go, Redis.", []string{"Go", "Redis"}},
		{"capitalized cue", "Built With: Rust, Tokio", []string{"Rust", "Tokio"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHeuristic(tt.text).TechStack
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TechStack = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractCuedUsesCueOrder(t *testing.T) {
	sections := []string{"We are using Vim.", "Built with: Go, SQLite"}
	got := ExtractCued(sections, techStackCues)
	if want := []string{"Go", "SQLite"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractCued() = %q, want %q", got, want)
	}
}

func TestConfidence(t *testing.T) {
	full := Parsed{
		Outcome:                OutcomeStructured,
		ImplementationOverview: "x",
		TechnicalDetails:       "y",
		TechStack:              []string{"Go"},
		ArchitecturePatterns:   []string{"CQRS"},
		BestPractices:          []string{"tests"},
	}
	if got := Confidence(full); got != 1 {
		t.Errorf("full structured = %v, want 1", got)
	}
	if got := Confidence(Parsed{Outcome: OutcomeStructured}); got != 0.5 {
		t.Errorf("empty structured = %v, want 0.5", got)
	}
	full.Outcome = OutcomeHeuristic
	if got := Confidence(full); got != 0.5 {
		t.Errorf("full heuristic = %v, want 0.5", got)
	}
	if got := Confidence(Parsed{Outcome: OutcomeParseFailure}); got != 0 {
		t.Errorf("parse failure = %v, want 0", got)
	}
}
