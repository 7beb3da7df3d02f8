package pipeline

import (
	"fmt"
	"strings"
)

// Level selects how aggressively the pipeline rewrites text.
type Level string

// Humanization levels. Light applies a minimal cosmetic subset of rules,
// medium a moderate vocabulary-simplification subset, strong a superset
// including connective-word replacements.
const (
	LevelLight  Level = "light"
	LevelMedium Level = "medium"
	LevelStrong Level = "strong"
)

// ParseLevel parses a level string, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelLight:
		return LevelLight, nil
	case LevelMedium:
		return LevelMedium, nil
	case LevelStrong:
		return LevelStrong, nil
	default:
		return "", fmt.Errorf("pipeline: unknown level %q", s)
	}
}

// Valid reports whether the level is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelLight, LevelMedium, LevelStrong:
		return true
	default:
		return false
	}
}
