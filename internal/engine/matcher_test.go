package engine

import (
	"testing"

	"github.com/termveil/termveil/internal/rules"
)

func testRuleSet() *rules.RuleSet {
	return rules.NewRuleSet([]rules.Rule{
		{Original: "sql injection", Alias: "pattern_b", Category: "security"},
		{Original: "injection", Alias: "pattern_a", Category: "security"},
		{Original: "exploit", Alias: "pressure_point", Category: "security"},
		{Original: "database", Alias: "vault", Category: "infrastructure"},
	})
}

func TestFindMatches(t *testing.T) {
	m := NewMatcher(testRuleSet())

	t.Run("WholeWordOnly", func(t *testing.T) {
		// "injections" and "injection_test" contain the term but are not
		// whole-word occurrences.
		matches := m.FindMatches("injections injection_test reinjection", Encode)
		if len(matches) != 0 {
			t.Errorf("Expected no matches inside longer words, got %d", len(matches))
		}
	})

	t.Run("LongestMatchWins", func(t *testing.T) {
		matches := m.FindMatches("a sql injection here", Encode)
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(matches))
		}
		if matches[0].Rule.Original != "sql injection" {
			t.Errorf("Expected sql injection to win over injection, got %q", matches[0].Rule.Original)
		}
	})

	t.Run("OverlappingPhrasesLongerTermWins", func(t *testing.T) {
		// "alpha beta" starts first, but "beta gamma delta" is longer and
		// overlaps it, so the longer phrase must be kept whole.
		m := NewMatcher(rules.NewRuleSet([]rules.Rule{
			{Original: "alpha beta", Alias: "xx", Category: "general"},
			{Original: "beta gamma delta", Alias: "yy", Category: "general"},
		}))

		matches := m.FindMatches("alpha beta gamma delta", Encode)
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(matches))
		}
		if matches[0].Rule.Original != "beta gamma delta" {
			t.Errorf("Expected beta gamma delta to win, got %q", matches[0].Rule.Original)
		}
		if matches[0].Start != 6 || matches[0].End != 22 {
			t.Errorf("Unexpected span: [%d,%d)", matches[0].Start, matches[0].End)
		}

		out, _ := ApplyMatches("alpha beta gamma delta", matches, Encode)
		if out != "alpha yy" {
			t.Errorf("Unexpected output: %q", out)
		}
	})

	t.Run("EqualLengthOverlapEarlierWins", func(t *testing.T) {
		m := NewMatcher(rules.NewRuleSet([]rules.Rule{
			{Original: "alpha beta", Alias: "xx", Category: "general"},
			{Original: "beta gamma", Alias: "yy", Category: "general"},
		}))

		matches := m.FindMatches("alpha beta gamma", Encode)
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(matches))
		}
		if matches[0].Rule.Original != "alpha beta" {
			t.Errorf("Equal lengths should resolve to the earlier occurrence, got %q", matches[0].Rule.Original)
		}
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		matches := m.FindMatches("EXPLOIT and Exploit and exploit", Encode)
		if len(matches) != 3 {
			t.Fatalf("Expected 3 matches, got %d", len(matches))
		}
	})

	t.Run("OrderedAndNonOverlapping", func(t *testing.T) {
		matches := m.FindMatches("exploit the database via injection", Encode)
		if len(matches) != 3 {
			t.Fatalf("Expected 3 matches, got %d", len(matches))
		}
		prev := -1
		for _, match := range matches {
			if match.Start <= prev {
				t.Errorf("Matches overlap or are unordered: start %d after %d", match.Start, prev)
			}
			prev = match.End - 1
		}
	})

	t.Run("DecodeDirection", func(t *testing.T) {
		matches := m.FindMatches("open the vault with pattern_b", Decode)
		if len(matches) != 2 {
			t.Fatalf("Expected 2 matches, got %d", len(matches))
		}
		if matches[0].Rule.Alias != "vault" || matches[1].Rule.Alias != "pattern_b" {
			t.Errorf("Unexpected decode matches: %v", matches)
		}
	})

	t.Run("PunctuationBoundary", func(t *testing.T) {
		matches := m.FindMatches("exploit, exploit. (exploit)", Encode)
		if len(matches) != 3 {
			t.Errorf("Punctuation should delimit words, got %d matches", len(matches))
		}
	})

	t.Run("UnderscoreIsWordRune", func(t *testing.T) {
		matches := m.FindMatches("exploit_kit", Encode)
		if len(matches) != 0 {
			t.Errorf("Underscore continues a word, got %d matches", len(matches))
		}
	})
}

func TestFindings(t *testing.T) {
	m := NewMatcher(testRuleSet())

	findings := m.Findings("first line\nthe exploit is here\ndatabase")
	if len(findings) != 2 {
		t.Fatalf("Expected 2 findings, got %d", len(findings))
	}

	if findings[0].Term != "exploit" || findings[0].Line != 2 || findings[0].Column != 5 {
		t.Errorf("Unexpected first finding: %+v", findings[0])
	}
	if findings[1].Term != "database" || findings[1].Line != 3 || findings[1].Column != 1 {
		t.Errorf("Unexpected second finding: %+v", findings[1])
	}
	if findings[0].Alias != "pressure_point" || findings[0].Category != "security" {
		t.Errorf("Finding should carry alias and category: %+v", findings[0])
	}
}

func TestAliasesPresent(t *testing.T) {
	m := NewMatcher(testRuleSet())

	aliases := m.AliasesPresent("the vault and the Vault and pattern_a")
	if len(aliases) != 2 {
		t.Fatalf("Expected 2 distinct aliases, got %v", aliases)
	}

	if aliases := m.AliasesPresent("nothing suspicious here"); aliases != nil {
		t.Errorf("Expected nil for clean text, got %v", aliases)
	}
}
