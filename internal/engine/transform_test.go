package engine

import "testing"

func transformText(m *Matcher, text string, dir Direction) (string, []Substitution) {
	return ApplyMatches(text, m.FindMatches(text, dir), dir)
}

func TestApplyMatches(t *testing.T) {
	m := NewMatcher(testRuleSet())

	t.Run("Encode", func(t *testing.T) {
		out, subs := transformText(m, "the exploit hit the database", Encode)
		if out != "the pressure_point hit the vault" {
			t.Errorf("Unexpected output: %q", out)
		}
		if len(subs) != 2 {
			t.Fatalf("Expected 2 substitutions, got %d", len(subs))
		}
		if subs[0].Before != "exploit" || subs[0].After != "pressure_point" {
			t.Errorf("Unexpected substitution: %+v", subs[0])
		}
	})

	t.Run("CasePreserved", func(t *testing.T) {
		out, _ := transformText(m, "Exploit and EXPLOIT and exploit", Encode)
		if out != "Pressure_point and PRESSURE_POINT and pressure_point" {
			t.Errorf("Case not preserved: %q", out)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		original := "the Exploit used SQL INJECTION on the database"
		encoded, _ := transformText(m, original, Encode)
		decoded, _ := transformText(m, encoded, Decode)
		if decoded != original {
			t.Errorf("Round trip failed:\n  original: %q\n  decoded:  %q", original, decoded)
		}
	})

	t.Run("NoMatchesReturnsInput", func(t *testing.T) {
		text := "completely unrelated text"
		out, subs := transformText(m, text, Encode)
		if out != text {
			t.Errorf("Text without matches should pass through unchanged, got %q", out)
		}
		if subs != nil {
			t.Errorf("Expected nil substitutions, got %v", subs)
		}
	})

	t.Run("DoubleEncodeIsStable", func(t *testing.T) {
		encoded, _ := transformText(m, "the exploit", Encode)
		again, subs := transformText(m, encoded, Encode)
		if again != encoded {
			t.Errorf("Second encode changed the text: %q -> %q", encoded, again)
		}
		if len(subs) != 0 {
			t.Errorf("Second encode should substitute nothing, got %d", len(subs))
		}
	})

	t.Run("PositionsAreRuneOffsets", func(t *testing.T) {
		_, subs := transformText(m, "héllo exploit", Encode)
		if len(subs) != 1 {
			t.Fatalf("Expected 1 substitution, got %d", len(subs))
		}
		if subs[0].Position != 6 {
			t.Errorf("Expected rune position 6, got %d", subs[0].Position)
		}
	})
}

func TestSummarize(t *testing.T) {
	m := NewMatcher(testRuleSet())
	_, subs := transformText(m, "exploit exploit database injection", Encode)

	summary := Summarize(subs)
	if summary.Total != 4 {
		t.Errorf("Expected total 4, got %d", summary.Total)
	}
	if summary.PerRule["exploit"] != 2 {
		t.Errorf("Expected 2 exploit substitutions, got %d", summary.PerRule["exploit"])
	}
	if summary.PerCategory["security"] != 3 || summary.PerCategory["infrastructure"] != 1 {
		t.Errorf("Unexpected per-category counts: %v", summary.PerCategory)
	}
}
