package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformDeterministic(t *testing.T) {
	text := "We should utilize this functionality. Additionally, therefore."
	first := Transform(text, LevelMedium, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Transform(text, LevelMedium, nil))
	}
}

func TestTransformExemplarShortCircuit(t *testing.T) {
	rules := DefaultRuleSet()
	ex := rules.Exemplars[0]

	// The exemplar replacement wins even when the text also contains rule
	// tokens, and only the first occurrence is replaced.
	text := "Intro. " + ex.Original + " We utilize things."
	out := Transform(text, LevelStrong, rules)

	assert.Contains(t, out, ex.Humanized)
	assert.NotContains(t, out, ex.Original)
	assert.Contains(t, out, "We utilize things.", "lexical rules must not run after an exemplar hit")
}

func TestTransformExemplarOrder(t *testing.T) {
	rules := &RuleSet{
		Exemplars: []Exemplar{
			{Original: "alpha beta", Humanized: "FIRST"},
			{Original: "beta", Humanized: "SECOND"},
		},
	}

	// The first listed exemplar that matches wins.
	out := Transform("alpha beta gamma", LevelLight, rules)
	assert.Equal(t, "FIRST gamma", out)

	out = Transform("just beta here", LevelLight, rules)
	assert.Equal(t, "just SECOND here", out)
}

func TestTransformLexicalLevels(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		level Level
		want  string
	}{
		{
			name:  "light rewrites utilize only",
			text:  "We utilize and implement things.",
			level: LevelLight,
			want:  "We use and implement things.",
		},
		{
			name:  "medium rewrites implement to build",
			text:  "We implement functionality. Therefore, additionally.",
			level: LevelMedium,
			want:  "We build features. So, also.",
		},
		{
			name:  "strong rewrites implement to create",
			text:  "We implement this. However, nevertheless.",
			level: LevelStrong,
			want:  "We create this. But, still.",
		},
		{
			name:  "multi-word replacement",
			text:  "It failed. Therefore we stopped.",
			level: LevelStrong,
			want:  "It failed. Because of this we stopped.",
		},
		{
			name:  "case-insensitive match preserves leading capital",
			text:  "Utilize this approach.",
			level: LevelLight,
			want:  "Use this approach.",
		},
		{
			name:  "punctuation stays attached",
			text:  "(utilize), [functionality]!",
			level: LevelMedium,
			want:  "(use), [features]!",
		},
		{
			name:  "whitespace runs preserved",
			text:  "utilize\t\tthis   now",
			level: LevelLight,
			want:  "use\t\tthis   now",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transform(tt.text, tt.level, nil))
		})
	}
}

func TestTransformNoSubstringMatches(t *testing.T) {
	// "utilizes" is not the whole token "utilize" and must pass through
	out := Transform("She utilizes the tool.", LevelMedium, nil)
	assert.Equal(t, "She utilizes the tool."+DefaultFallbackSuffix, out)
}

func TestTransformNoOpGuard(t *testing.T) {
	text := "Nothing here matches any rule."
	out := Transform(text, LevelStrong, nil)

	require.NotEqual(t, text, out, "output must be observably distinct from input")
	assert.Equal(t, text+DefaultFallbackSuffix, out)
}

func TestTransformUnicodePassThrough(t *testing.T) {
	text := "Héllo wörld, utilize 世界!"
	out := Transform(text, LevelLight, nil)
	assert.Equal(t, "Héllo wörld, use 世界!", out)
}

func TestTransformCustomSuffix(t *testing.T) {
	rules := &RuleSet{FallbackSuffix: " [rewritten]"}
	out := Transform("untouched", LevelLight, rules)
	assert.Equal(t, "untouched [rewritten]", out)
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"two words", 2},
		{"  padded   words \n here ", 3},
		{strings.Repeat("w ", 100), 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WordCount(tt.text), "WordCount(%q)", tt.text)
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"light", "Light", " MEDIUM ", "strong"} {
		_, err := ParseLevel(s)
		assert.NoError(t, err, "ParseLevel(%q)", s)
	}

	_, err := ParseLevel("extreme")
	assert.Error(t, err)
	assert.False(t, Level("extreme").Valid())
}
