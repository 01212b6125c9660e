package engine

import (
	"strings"
	"unicode"
)

// CaseKind classifies the letter case of matched text.
type CaseKind int

const (
	// CaseLower covers all-lowercase matches and matches with no letters.
	CaseLower CaseKind = iota
	// CaseUpper covers all-uppercase matches.
	CaseUpper
	// CaseTitle covers a leading capital with the rest lowercase.
	CaseTitle
	// CaseMixed covers anything else; the per-rune mask is kept so the
	// exact pattern can be reproduced when lengths allow.
	CaseMixed
)

func (k CaseKind) String() string {
	switch k {
	case CaseUpper:
		return "upper"
	case CaseTitle:
		return "titlecase"
	case CaseMixed:
		return "mixed-exact"
	default:
		return "lower"
	}
}

// CasePattern is the case classification of one match, computed once per
// match and applied as a pure function during replacement.
type CasePattern struct {
	Kind CaseKind
	// mask holds the per-rune uppercase flags of the matched text,
	// used only for CaseMixed when source and replacement lengths match.
	mask []bool
}

// ClassifyCase computes the case pattern of matched text.
func ClassifyCase(matched string) CasePattern {
	runes := []rune(matched)

	letters := 0
	uppers := 0
	mask := make([]bool, len(runes))
	for i, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
				mask[i] = true
			}
		}
	}

	switch {
	case letters == 0 || uppers == 0:
		return CasePattern{Kind: CaseLower}
	case uppers == letters:
		return CasePattern{Kind: CaseUpper}
	case len(runes) > 0 && unicode.IsUpper(runes[0]) && uppers == 1:
		return CasePattern{Kind: CaseTitle}
	default:
		return CasePattern{Kind: CaseMixed, mask: mask}
	}
}

// Apply shapes replacement to this pattern. A lowercase match keeps the
// replacement exactly as configured. For mixed-exact the literal mask is
// reproduced only when lengths are equal; otherwise the heuristic falls
// back to titlecase or lowercase depending on the leading rune.
func (p CasePattern) Apply(replacement string) string {
	switch p.Kind {
	case CaseUpper:
		return strings.ToUpper(replacement)
	case CaseTitle:
		return titlecase(replacement)
	case CaseMixed:
		runes := []rune(replacement)
		if len(runes) != len(p.mask) {
			if len(p.mask) > 0 && p.mask[0] {
				return titlecase(replacement)
			}
			return strings.ToLower(replacement)
		}
		for i, upper := range p.mask {
			if upper {
				runes[i] = unicode.ToUpper(runes[i])
			} else {
				runes[i] = unicode.ToLower(runes[i])
			}
		}
		return string(runes)
	default:
		// Lowercase matches take the replacement verbatim; a configured
		// alias like Pressure_Point keeps its capitals.
		return replacement
	}
}

// titlecase uppercases the first rune and lowercases the rest.
func titlecase(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
