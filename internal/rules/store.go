package rules

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/termveil/termveil/internal/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultCategory is assigned to rules declared outside a category block.
const DefaultCategory = "general"

// Store owns the rule mapping for a session. It is constructed once from a
// rules file and re-read only through Reload; the RuleSet it hands out is
// read-only for the duration of a run.
type Store struct {
	path   string
	logger *logger.Logger

	mu  sync.RWMutex
	set *RuleSet
}

// NewStore loads the rules file at path and builds lookup structures.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: log,
	}

	if _, err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// RuleSet returns the currently loaded rule set.
func (s *Store) RuleSet() *RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Path returns the rules file path this store reads from.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the rules file and swaps in the new rule set.
// On failure the previous rule set stays active.
func (s *Store) Reload() (int, error) {
	return s.load()
}

func (s *Store) load() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, &ConfigError{Path: s.path, Msg: "cannot read file", Err: err}
	}

	list, err := parseRules(s.path, data)
	if err != nil {
		return 0, err
	}

	set := NewRuleSet(list)

	s.mu.Lock()
	s.set = set
	s.mu.Unlock()

	s.logger.Info("Rules loaded",
		zap.String("path", s.path),
		zap.Int("rules", set.Len()),
		zap.Int("categories", len(set.Categories())),
		zap.String("fingerprint", set.Fingerprint()),
	)

	return set.Len(), nil
}

// parseRules decodes the rules document, keeping declaration order.
// A yaml.Node walk is used instead of map unmarshaling because Go maps
// would lose the document order the store promises.
//
// The document is a mapping. A top-level "categories" key holds one nested
// mapping per category; any other top-level string pair is a rule in the
// default category. Keys starting with "_" are metadata and skipped.
func parseRules(path string, data []byte) ([]Rule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: path, Msg: "invalid YAML", Err: err}
	}

	if len(doc.Content) == 0 {
		return nil, &ConfigError{Path: path, Msg: "empty document"}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ConfigError{Path: path, Msg: "top level must be a mapping"}
	}

	var list []Rule
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]

		if strings.HasPrefix(key.Value, "_") {
			continue
		}

		if key.Value == "categories" {
			if value.Kind != yaml.MappingNode {
				return nil, &ConfigError{Path: path, Msg: "categories must be a mapping of category name to term mapping"}
			}
			for j := 0; j+1 < len(value.Content); j += 2 {
				catKey, catValue := value.Content[j], value.Content[j+1]
				if catValue.Kind != yaml.MappingNode {
					return nil, &ConfigError{Path: path, Msg: fmt.Sprintf("category %q must be a mapping (line %d)", catKey.Value, catValue.Line)}
				}
				catRules, err := parseCategory(path, catKey.Value, catValue)
				if err != nil {
					return nil, err
				}
				list = append(list, catRules...)
			}
			continue
		}

		rule, err := parseEntry(path, DefaultCategory, key, value)
		if err != nil {
			return nil, err
		}
		list = append(list, rule)
	}

	return list, nil
}

func parseCategory(path, category string, node *yaml.Node) ([]Rule, error) {
	var out []Rule
	for i := 0; i+1 < len(node.Content); i += 2 {
		rule, err := parseEntry(path, category, node.Content[i], node.Content[i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func parseEntry(path, category string, key, value *yaml.Node) (Rule, error) {
	if key.Kind != yaml.ScalarNode || key.Tag != "!!str" {
		return Rule{}, &ConfigError{Path: path, Msg: fmt.Sprintf("original term must be a string (line %d)", key.Line)}
	}
	if value.Kind != yaml.ScalarNode || value.Tag != "!!str" {
		return Rule{}, &ConfigError{Path: path, Msg: fmt.Sprintf("alias for %q must be a string (line %d)", key.Value, value.Line)}
	}

	if err := CheckTerm(key.Value); err != nil {
		return Rule{}, &ConfigError{Path: path, Msg: fmt.Sprintf("original term %q (line %d): %v", key.Value, key.Line, err)}
	}
	if err := CheckTerm(value.Value); err != nil {
		return Rule{}, &ConfigError{Path: path, Msg: fmt.Sprintf("alias %q (line %d): %v", value.Value, value.Line, err)}
	}

	return Rule{
		Original: key.Value,
		Alias:    value.Value,
		Category: category,
	}, nil
}

// CheckTerm rejects terms that would break word-boundary matching.
// Multi-word phrases are allowed, but only with single internal spaces.
func CheckTerm(term string) error {
	if term == "" {
		return fmt.Errorf("must not be empty")
	}

	for _, r := range term {
		if unicode.IsSpace(r) && r != ' ' {
			return fmt.Errorf("contains whitespace other than spaces")
		}
	}

	if strings.HasPrefix(term, " ") || strings.HasSuffix(term, " ") {
		return fmt.Errorf("has leading or trailing space")
	}

	if strings.Contains(term, "  ") {
		return fmt.Errorf("contains consecutive spaces")
	}

	return nil
}
