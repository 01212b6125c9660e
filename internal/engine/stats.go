package engine

// Summarize aggregates a substitution list into per-rule and per-category
// counts. Pure aggregation, no side effects. Rules are keyed by their
// original term.
func Summarize(subs []Substitution) Summary {
	summary := Summary{
		PerRule:     make(map[string]int),
		PerCategory: make(map[string]int),
	}

	for _, sub := range subs {
		summary.PerRule[sub.Rule.Original]++
		summary.PerCategory[sub.Rule.Category]++
		summary.Total++
	}

	return summary
}
