package engine

import (
	"sort"
	"strings"

	"github.com/termveil/termveil/internal/rules"
)

// Matcher finds whole-word occurrences of mapped terms. Both direction
// tries are built once per rule set, so matching a text costs one pass over
// its runes regardless of how many rules are loaded.
type Matcher struct {
	forward *matchTrie
	reverse *matchTrie
}

// NewMatcher indexes every rule of the set for both directions.
func NewMatcher(rs *rules.RuleSet) *Matcher {
	m := &Matcher{
		forward: newMatchTrie(),
		reverse: newMatchTrie(),
	}

	for _, r := range rs.All() {
		m.forward.insert(r.Original, r)
		m.reverse.insert(r.Alias, r)
	}

	return m
}

// candidate is one possible match span before overlap resolution.
type candidate struct {
	rule  rules.Rule
	start int
	end   int
}

// FindMatches returns every non-overlapping whole-word match of the
// direction's candidate terms, in start-position order. Overlaps resolve by
// descending term length across the whole text, earlier position breaking
// ties, so a long phrase beats a shorter term even when the shorter one
// starts first.
func (m *Matcher) FindMatches(text string, dir Direction) []Match {
	trie := m.forward
	if dir == Decode {
		trie = m.reverse
	}

	runes := []rune(text)

	// Collect every candidate occurrence. A term can only begin where a
	// word begins, so the left boundary holds at each probe.
	var candidates []candidate
	i := 0
	for i < len(runes) {
		if !isWordRune(runes[i]) {
			i++
			continue
		}

		for _, tm := range trie.matchesAt(runes, i) {
			candidates = append(candidates, candidate{rule: tm.rule, start: i, end: i + tm.length})
		}

		// A phrase cannot begin mid-word; skip to the end of this word.
		for i < len(runes) && isWordRune(runes[i]) {
			i++
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// Longest term first, then leftmost. Accepting in this order keeps a
	// long phrase intact even when a shorter term overlaps its start.
	sort.SliceStable(candidates, func(a, b int) bool {
		la, lb := candidates[a].end-candidates[a].start, candidates[b].end-candidates[b].start
		if la != lb {
			return la > lb
		}
		return candidates[a].start < candidates[b].start
	})

	covered := make([]bool, len(runes))
	accepted := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		overlaps := false
		for j := c.start; j < c.end; j++ {
			if covered[j] {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		for j := c.start; j < c.end; j++ {
			covered[j] = true
		}
		accepted = append(accepted, c)
	}

	sort.Slice(accepted, func(a, b int) bool {
		return accepted[a].start < accepted[b].start
	})

	matches := make([]Match, 0, len(accepted))
	for _, c := range accepted {
		matched := string(runes[c.start:c.end])
		matches = append(matches, Match{
			Rule:  c.rule,
			Start: c.start,
			End:   c.end,
			Text:  matched,
			Case:  ClassifyCase(matched),
		})
	}

	return matches
}

// Findings converts forward-direction matches into the report rows used by
// check and find-terms, with line and column resolved against the text.
func (m *Matcher) Findings(text string) []Finding {
	matches := m.FindMatches(text, Encode)
	if len(matches) == 0 {
		return nil
	}

	findings := make([]Finding, 0, len(matches))
	line, lineStart := 1, 0
	runes := []rune(text)
	next := 0

	for _, match := range matches {
		// Advance the line counter up to the match start.
		for next < match.Start && next < len(runes) {
			if runes[next] == '\n' {
				line++
				lineStart = next + 1
			}
			next++
		}

		findings = append(findings, Finding{
			Term:     match.Rule.Original,
			Alias:    match.Rule.Alias,
			Category: match.Rule.Category,
			Start:    match.Start,
			End:      match.End,
			Line:     line,
			Column:   match.Start - lineStart + 1,
		})
	}

	return findings
}

// AliasesPresent lists the distinct alias terms already occurring in text.
// A non-empty result before an encode means the round-trip guarantee does
// not hold for this input.
func (m *Matcher) AliasesPresent(text string) []string {
	matches := m.FindMatches(text, Decode)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var aliases []string
	for _, match := range matches {
		key := strings.ToLower(match.Rule.Alias)
		if !seen[key] {
			seen[key] = true
			aliases = append(aliases, match.Rule.Alias)
		}
	}
	return aliases
}
