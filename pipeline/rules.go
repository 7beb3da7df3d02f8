package pipeline

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule rewrites a single whole token into a replacement. Tokens are matched
// case-insensitively with leading-capital preservation; surrounding
// punctuation is untouched.
type Rule struct {
	Token       string `yaml:"token" json:"token"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// Exemplar is a curated (original, humanized) phrase pair. Exemplars take
// precedence over lexical rules because they represent ground truth.
type Exemplar struct {
	Original  string `yaml:"original" json:"original"`
	Humanized string `yaml:"humanized" json:"humanized"`
}

// RuleSet is the immutable configuration for the transformation pipeline:
// ordered exemplars, per-level ordered lexical rules, and the fallback
// suffix appended when no stage changes the input.
type RuleSet struct {
	Exemplars      []Exemplar       `yaml:"exemplars" json:"exemplars"`
	Levels         map[Level][]Rule `yaml:"levels" json:"levels"`
	FallbackSuffix string           `yaml:"fallback_suffix" json:"fallback_suffix"`
}

// RulesFor returns the ordered lexical rules for a level. Unknown levels
// get no rules.
func (rs *RuleSet) RulesFor(level Level) []Rule {
	if rs == nil || rs.Levels == nil {
		return nil
	}
	return rs.Levels[level]
}

// Validate checks the rule set for structural problems: empty or
// multi-word rule tokens, empty exemplar phrases, unknown level keys.
func (rs *RuleSet) Validate() error {
	for i, ex := range rs.Exemplars {
		if strings.TrimSpace(ex.Original) == "" {
			return fmt.Errorf("pipeline: exemplar %d: original phrase is empty", i)
		}
		if strings.TrimSpace(ex.Humanized) == "" {
			return fmt.Errorf("pipeline: exemplar %d: humanized phrase is empty", i)
		}
	}
	for level, rules := range rs.Levels {
		if !level.Valid() {
			return fmt.Errorf("pipeline: unknown level key %q", level)
		}
		for i, r := range rules {
			token := strings.TrimSpace(r.Token)
			if token == "" {
				return fmt.Errorf("pipeline: level %s rule %d: token is empty", level, i)
			}
			if strings.ContainsFunc(token, isSpace) {
				return fmt.Errorf("pipeline: level %s rule %d: token %q must be a single token", level, i, r.Token)
			}
		}
	}
	return nil
}

// ParseRuleSet decodes a YAML rule set and validates it.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("pipeline: parse rule set: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// LoadRuleSet reads and decodes a YAML rule set from r.
func LoadRuleSet(r io.Reader) (*RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read rule set: %w", err)
	}
	return ParseRuleSet(data)
}

// DefaultFallbackSuffix is appended when no rewrite stage changes the input,
// so the output is observably distinct from the input.
const DefaultFallbackSuffix = " This text has been humanized to sound more natural and conversational."

// DefaultRuleSet returns the built-in rule set. The substitutions and
// exemplar pairs reproduce the curated product defaults.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Exemplars: []Exemplar{
			{
				Original:  "The neural network architecture comprised multiple layers of transformers with self-attention mechanisms.",
				Humanized: "The design of the neural network included several layers of transformers that use self-attention mechanisms.",
			},
			{
				Original:  "Users can input queries which the system processes utilizing natural language understanding algorithms.",
				Humanized: "Users can type in questions, and the system uses natural language understanding to figure out what they're asking.",
			},
			{
				Original:  "The implementation facilitates enhanced comprehension of complex linguistic structures.",
				Humanized: "This approach helps people better understand complicated language patterns.",
			},
		},
		Levels: map[Level][]Rule{
			LevelLight: {
				{Token: "utilize", Replacement: "use"},
			},
			LevelMedium: {
				{Token: "utilize", Replacement: "use"},
				{Token: "implement", Replacement: "build"},
				{Token: "functionality", Replacement: "features"},
				{Token: "therefore", Replacement: "so"},
				{Token: "additionally", Replacement: "also"},
			},
			LevelStrong: {
				{Token: "utilize", Replacement: "use"},
				{Token: "implement", Replacement: "create"},
				{Token: "functionality", Replacement: "features"},
				{Token: "therefore", Replacement: "because of this"},
				{Token: "additionally", Replacement: "plus"},
				{Token: "however", Replacement: "but"},
				{Token: "nevertheless", Replacement: "still"},
			},
		},
		FallbackSuffix: DefaultFallbackSuffix,
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
