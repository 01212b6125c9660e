package engine

import (
	"unicode"

	"github.com/termveil/termveil/internal/rules"
)

// matchTrie indexes every candidate term of one direction so a single pass
// over the text finds all terms starting at any position, without trying
// each rule individually. Terms are stored lowercased; lookups fold case
// rune by rune.
type trieNode struct {
	children map[rune]*trieNode
	terminal bool
	rule     rules.Rule
}

type matchTrie struct {
	root *trieNode
	size int
}

func newMatchTrie() *matchTrie {
	return &matchTrie{
		root: &trieNode{children: make(map[rune]*trieNode)},
	}
}

// insert adds a term and the rule it resolves to. Multi-word phrases are
// inserted verbatim with their single internal spaces. The first rule to
// claim a term wins; duplicates are the validator's business.
func (t *matchTrie) insert(term string, rule rules.Rule) {
	if term == "" {
		return
	}

	current := t.root
	for _, r := range term {
		folded := unicode.ToLower(r)
		child, exists := current.children[folded]
		if !exists {
			child = &trieNode{children: make(map[rune]*trieNode)}
			current.children[folded] = child
		}
		current = child
	}

	if !current.terminal {
		current.terminal = true
		current.rule = rule
		t.size++
	}
}

// termMatch is one stored term found at a text position; length is in runes.
type termMatch struct {
	rule   rules.Rule
	length int
}

// matchesAt walks the trie from start and returns every stored term that
// ends on a word boundary there, shortest first. The caller guarantees a
// boundary before start.
func (t *matchTrie) matchesAt(text []rune, start int) []termMatch {
	current := t.root
	var found []termMatch

	for i := start; i < len(text); i++ {
		child, exists := current.children[unicode.ToLower(text[i])]
		if !exists {
			break
		}
		current = child

		if current.terminal && boundaryAfter(text, i+1) {
			found = append(found, termMatch{rule: current.rule, length: i - start + 1})
		}
	}

	return found
}

// Len returns the number of distinct terms indexed.
func (t *matchTrie) Len() int {
	return t.size
}

// isWordRune reports whether r belongs to a word for boundary purposes.
// Underscore counts: terms like sql_injection are single words.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// boundaryAfter reports whether position i sits on a word boundary,
// i.e. the text ends there or continues with a non-word rune.
func boundaryAfter(text []rune, i int) bool {
	return i >= len(text) || !isWordRune(text[i])
}
