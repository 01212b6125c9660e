package rules

import "testing"

func TestValidate(t *testing.T) {
	t.Run("CleanSet", func(t *testing.T) {
		rs := NewRuleSet([]Rule{
			{Original: "exploit", Alias: "pressure_point", Category: "security"},
			{Original: "database", Alias: "vault", Category: "infrastructure"},
		})
		if conflicts := Validate(rs); len(conflicts) != 0 {
			t.Errorf("Expected no conflicts, got %v", conflicts)
		}
	})

	t.Run("DuplicateOriginal", func(t *testing.T) {
		rs := NewRuleSet([]Rule{
			{Original: "exploit", Alias: "pressure_point"},
			{Original: "Exploit", Alias: "leverage"},
		})
		conflicts := Validate(rs)
		if len(conflicts) != 1 {
			t.Fatalf("Expected 1 conflict, got %d: %v", len(conflicts), conflicts)
		}
		if conflicts[0].Kind != ConflictDuplicateOriginal {
			t.Errorf("Expected %s, got %s", ConflictDuplicateOriginal, conflicts[0].Kind)
		}
	})

	t.Run("DuplicateAlias", func(t *testing.T) {
		rs := NewRuleSet([]Rule{
			{Original: "exploit", Alias: "pressure_point"},
			{Original: "vulnerability", Alias: "Pressure_Point"},
		})
		conflicts := Validate(rs)
		if len(conflicts) != 1 {
			t.Fatalf("Expected 1 conflict, got %d: %v", len(conflicts), conflicts)
		}
		if conflicts[0].Kind != ConflictDuplicateAlias {
			t.Errorf("Expected %s, got %s", ConflictDuplicateAlias, conflicts[0].Kind)
		}
	})

	t.Run("AliasCollidesWithOriginal", func(t *testing.T) {
		rs := NewRuleSet([]Rule{
			{Original: "exploit", Alias: "payload"},
			{Original: "payload", Alias: "parcel"},
		})
		conflicts := Validate(rs)
		if len(conflicts) != 1 {
			t.Fatalf("Expected 1 conflict, got %d: %v", len(conflicts), conflicts)
		}
		if conflicts[0].Kind != ConflictAliasCollidesOriginal {
			t.Errorf("Expected %s, got %s", ConflictAliasCollidesOriginal, conflicts[0].Kind)
		}
		if conflicts[0].Rule.Original != "exploit" || conflicts[0].Other.Original != "payload" {
			t.Errorf("Conflict should name both rules: %v", conflicts[0])
		}
	})

	t.Run("SelfMappingIsNotACollision", func(t *testing.T) {
		rs := NewRuleSet([]Rule{
			{Original: "constant", Alias: "constant"},
		})
		for _, c := range Validate(rs) {
			if c.Kind == ConflictAliasCollidesOriginal {
				t.Errorf("Self-mapping rule should not report a collision: %v", c)
			}
		}
	})
}
