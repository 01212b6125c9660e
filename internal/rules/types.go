package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Rule maps one original term to its neutral alias.
// Rules are immutable once loaded.
type Rule struct {
	Original string `json:"original" yaml:"original"`
	Alias    string `json:"alias" yaml:"alias"`
	Category string `json:"category" yaml:"category"`
}

// RuleSet is the validated collection of rules for one configuration load.
// It keeps document order and exposes forward (original -> rule) and
// reverse (alias -> rule) lookups keyed case-insensitively.
type RuleSet struct {
	rules       []Rule
	forward     map[string]Rule
	reverse     map[string]Rule
	fingerprint string
}

// NewRuleSet builds lookup maps over the ordered rule list.
// Duplicate keys keep their first occurrence; the validator reports the rest.
func NewRuleSet(list []Rule) *RuleSet {
	rs := &RuleSet{
		rules:   list,
		forward: make(map[string]Rule, len(list)),
		reverse: make(map[string]Rule, len(list)),
	}

	hasher := sha256.New()
	for _, r := range list {
		if _, exists := rs.forward[strings.ToLower(r.Original)]; !exists {
			rs.forward[strings.ToLower(r.Original)] = r
		}
		if _, exists := rs.reverse[strings.ToLower(r.Alias)]; !exists {
			rs.reverse[strings.ToLower(r.Alias)] = r
		}
		fmt.Fprintf(hasher, "%s\x00%s\x00%s\n", r.Original, r.Alias, r.Category)
	}
	rs.fingerprint = hex.EncodeToString(hasher.Sum(nil))[:16]

	return rs
}

// All returns every rule in stable document order.
func (rs *RuleSet) All() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// ByCategory returns the rules of one category in document order.
func (rs *RuleSet) ByCategory(category string) []Rule {
	var out []Rule
	for _, r := range rs.rules {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func (rs *RuleSet) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rs.rules {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out
}

// Forward looks up the rule whose original matches term, case-insensitively.
func (rs *RuleSet) Forward(term string) (Rule, bool) {
	r, ok := rs.forward[strings.ToLower(term)]
	return r, ok
}

// Reverse looks up the rule whose alias matches term, case-insensitively.
func (rs *RuleSet) Reverse(term string) (Rule, bool) {
	r, ok := rs.reverse[strings.ToLower(term)]
	return r, ok
}

// Len returns the number of loaded rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Fingerprint is a stable digest of the loaded mapping, used to key caches.
func (rs *RuleSet) Fingerprint() string {
	return rs.fingerprint
}

// ConfigError reports an unreadable or structurally invalid rules file.
// It is fatal for any operation that needs a RuleSet; semantic ambiguity
// (duplicate aliases and the like) is the validator's output, not an error.
type ConfigError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rules config %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("rules config %s: %s", e.Path, e.Msg)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ConflictKind identifies the kind of mapping ambiguity found.
type ConflictKind string

const (
	ConflictDuplicateOriginal     ConflictKind = "duplicate-original"
	ConflictDuplicateAlias        ConflictKind = "duplicate-alias"
	ConflictAliasCollidesOriginal ConflictKind = "alias-collides-with-original"
)

// Conflict identifies a structural ambiguity between two rules.
// Conflicts are data, not errors: decode against an ambiguous mapping is
// not guaranteed to round-trip, so callers surface them before relying on
// reverse lookups.
type Conflict struct {
	Kind  ConflictKind `json:"kind"`
	Rule  Rule         `json:"rule"`
	Other Rule         `json:"other"`
}

func (c Conflict) String() string {
	switch c.Kind {
	case ConflictDuplicateOriginal:
		return fmt.Sprintf("%s: %q appears again as an original term", c.Kind, c.Rule.Original)
	case ConflictDuplicateAlias:
		return fmt.Sprintf("%s: %q and %q share alias %q", c.Kind, c.Rule.Original, c.Other.Original, c.Rule.Alias)
	case ConflictAliasCollidesOriginal:
		return fmt.Sprintf("%s: alias %q of %q is also the original term of %q", c.Kind, c.Rule.Alias, c.Rule.Original, c.Other.Original)
	default:
		return string(c.Kind)
	}
}
