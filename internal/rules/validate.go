package rules

import "strings"

// Validate inspects a rule set for mapping ambiguity. It never mutates the
// set and an empty result means the mapping is unambiguous. Conflicts make
// reverse lookup (and therefore decode) unreliable but do not prevent load.
func Validate(rs *RuleSet) []Conflict {
	var conflicts []Conflict

	seenOriginal := make(map[string]Rule)
	seenAlias := make(map[string]Rule)

	for _, r := range rs.rules {
		lowerOriginal := strings.ToLower(r.Original)
		lowerAlias := strings.ToLower(r.Alias)

		if first, ok := seenOriginal[lowerOriginal]; ok {
			conflicts = append(conflicts, Conflict{
				Kind:  ConflictDuplicateOriginal,
				Rule:  r,
				Other: first,
			})
		} else {
			seenOriginal[lowerOriginal] = r
		}

		if first, ok := seenAlias[lowerAlias]; ok {
			conflicts = append(conflicts, Conflict{
				Kind:  ConflictDuplicateAlias,
				Rule:  r,
				Other: first,
			})
		} else {
			seenAlias[lowerAlias] = r
		}
	}

	// An alias equal to another rule's original breaks forward-then-reverse
	// identity: the decode pass would rewrite the freshly encoded alias again.
	for _, r := range rs.rules {
		lowerAlias := strings.ToLower(r.Alias)
		if other, ok := seenOriginal[lowerAlias]; ok {
			if strings.ToLower(other.Original) == strings.ToLower(r.Original) && other.Alias == r.Alias {
				// A rule mapping a term to itself is its own kind of odd but
				// not a transitive collision between two rules.
				continue
			}
			conflicts = append(conflicts, Conflict{
				Kind:  ConflictAliasCollidesOriginal,
				Rule:  r,
				Other: other,
			})
		}
	}

	return conflicts
}
