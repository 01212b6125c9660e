package engine

import "testing"

func TestClassifyCase(t *testing.T) {
	cases := []struct {
		in   string
		want CaseKind
	}{
		{"exploit", CaseLower},
		{"EXPLOIT", CaseUpper},
		{"Exploit", CaseTitle},
		{"eXploit", CaseMixed},
		{"ExPloit", CaseMixed},
		{"123", CaseLower},
		{"sql injection", CaseLower},
		{"SQL INJECTION", CaseUpper},
	}

	for _, tc := range cases {
		if got := ClassifyCase(tc.in).Kind; got != tc.want {
			t.Errorf("ClassifyCase(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestCasePatternApply(t *testing.T) {
	t.Run("LowerKeepsReplacementVerbatim", func(t *testing.T) {
		// A lowercase match does not re-case the replacement: an alias
		// configured with capitals comes through as written.
		got := ClassifyCase("exploit").Apply("Pressure_Point")
		if got != "Pressure_Point" {
			t.Errorf("Expected Pressure_Point verbatim, got %q", got)
		}
	})

	t.Run("Upper", func(t *testing.T) {
		got := ClassifyCase("EXPLOIT").Apply("pressure_point")
		if got != "PRESSURE_POINT" {
			t.Errorf("Expected PRESSURE_POINT, got %q", got)
		}
	})

	t.Run("Title", func(t *testing.T) {
		got := ClassifyCase("Exploit").Apply("pressure_point")
		if got != "Pressure_point" {
			t.Errorf("Expected Pressure_point, got %q", got)
		}
	})

	t.Run("MixedEqualLength", func(t *testing.T) {
		// Same length: the exact mask is reproduced.
		got := ClassifyCase("aBcD").Apply("wxyz")
		if got != "wXyZ" {
			t.Errorf("Expected wXyZ, got %q", got)
		}
	})

	t.Run("MixedDifferentLengthLeadingUpper", func(t *testing.T) {
		got := ClassifyCase("ExPloit").Apply("pressure_point")
		if got != "Pressure_point" {
			t.Errorf("Expected titlecase fallback, got %q", got)
		}
	})

	t.Run("MixedDifferentLengthLeadingLower", func(t *testing.T) {
		got := ClassifyCase("eXploit").Apply("pressure_point")
		if got != "pressure_point" {
			t.Errorf("Expected lowercase fallback, got %q", got)
		}
	})
}
