package engine

import (
	"github.com/termveil/termveil/internal/rules"
)

// Direction selects which side of the mapping is rewritten.
type Direction int

const (
	// Encode rewrites original terms into their aliases.
	Encode Direction = iota
	// Decode rewrites aliases back into their original terms.
	Decode
)

func (d Direction) String() string {
	if d == Decode {
		return "decode"
	}
	return "encode"
}

// ParseDirection maps the wire/CLI spelling of a direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "encode":
		return Encode, true
	case "decode":
		return Decode, true
	}
	return Encode, false
}

// Match is a located whole-word occurrence of a mapped term in one input.
// Start and End are rune offsets; matches produced by the matcher are
// ordered by Start and never overlap.
type Match struct {
	Rule rules.Rule
	// Start is inclusive, End exclusive.
	Start int
	End   int
	// Text is the substring as it appeared in the input.
	Text string
	Case CasePattern
}

// Substitution records one applied rewrite, for stats and audit.
type Substitution struct {
	Rule     rules.Rule `json:"rule"`
	Position int        `json:"position"`
	Before   string     `json:"before"`
	After    string     `json:"after"`
}

// Finding describes a mapped term present in a text, as reported by the
// check and find-terms operations.
type Finding struct {
	Term     string `json:"term"`
	Alias    string `json:"alias"`
	Category string `json:"category"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// CheckResult is the structured output of the check operation. Finding
// sensitive terms is check's normal result, not a failure.
type CheckResult struct {
	Clean    bool      `json:"clean"`
	Findings []Finding `json:"findings"`
}

// Completion is an alias suggestion for a typed prefix.
type Completion struct {
	Label  string `json:"label"`
	Detail string `json:"detail"`
}

// Summary aggregates a substitution list.
type Summary struct {
	PerRule     map[string]int `json:"per_rule"`
	PerCategory map[string]int `json:"per_category"`
	Total       int            `json:"total"`
}

// WorkspaceStats describes the current state of a text against the loaded
// rules, plus the history bookkeeping around it.
type WorkspaceStats struct {
	Characters     int      `json:"characters"`
	Lines          int      `json:"lines"`
	Words          int      `json:"words"`
	RulesLoaded    int      `json:"rules_loaded"`
	TermsPresent   []string `json:"terms_present,omitempty"`
	AliasesPresent []string `json:"aliases_present,omitempty"`
	HistoryEntries int      `json:"history_entries"`
	Backups        int      `json:"backups"`
}
