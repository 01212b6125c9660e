package engine

import "strings"

// ApplyMatches rebuilds the text from the ordered, non-overlapping match
// list, case-adjusting each replacement. The input is never edited in
// place: untouched spans are copied between matches, so positions cannot
// drift. Pure function — same text, matches and direction always produce
// the same output and substitution list.
func ApplyMatches(text string, matches []Match, dir Direction) (string, []Substitution) {
	if len(matches) == 0 {
		return text, nil
	}

	runes := []rune(text)
	var builder strings.Builder
	builder.Grow(len(text))

	subs := make([]Substitution, 0, len(matches))
	prev := 0

	for _, match := range matches {
		builder.WriteString(string(runes[prev:match.Start]))

		replacement := match.Rule.Alias
		if dir == Decode {
			replacement = match.Rule.Original
		}
		shaped := match.Case.Apply(replacement)

		builder.WriteString(shaped)
		subs = append(subs, Substitution{
			Rule:     match.Rule,
			Position: match.Start,
			Before:   match.Text,
			After:    shaped,
		})

		prev = match.End
	}

	builder.WriteString(string(runes[prev:]))

	return builder.String(), subs
}
