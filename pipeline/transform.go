// Package pipeline implements the deterministic staged text rewriter.
//
// Transform is a pure function: identical inputs always produce identical
// output. There is no randomness and no time dependence, which keeps the
// pipeline reproducible and testable.
package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Transform rewrites text according to the rule set, applying stages in
// fixed order:
//
//  1. Exact-phrase substitution: the first exemplar phrase contained in the
//     text is replaced and the pipeline short-circuits.
//  2. Lexical substitution: ordered whole-token rules scoped to the level.
//  3. No-op guard: if nothing changed, the fallback suffix is appended so
//     the output is observably distinct from the input.
//
// Unicode and punctuation pass through untouched except where a rule
// explicitly targets them. A nil rule set uses the defaults.
func Transform(text string, level Level, rules *RuleSet) string {
	if rules == nil {
		rules = DefaultRuleSet()
	}

	for _, ex := range rules.Exemplars {
		if strings.Contains(text, ex.Original) {
			return strings.Replace(text, ex.Original, ex.Humanized, 1)
		}
	}

	out := substitute(text, rules.RulesFor(level))

	if out == text {
		suffix := rules.FallbackSuffix
		if suffix == "" {
			suffix = DefaultFallbackSuffix
		}
		out = text + suffix
	}

	return out
}

// substitute applies whole-token rules, preserving all whitespace and any
// punctuation attached to a token.
func substitute(text string, rules []Rule) string {
	if len(rules) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	emitWord := func(word string) {
		b.WriteString(rewriteToken(word, rules))
	}

	start := 0
	inSpace := false
	for i, r := range text {
		if unicode.IsSpace(r) != inSpace {
			if start < i {
				if inSpace {
					b.WriteString(text[start:i])
				} else {
					emitWord(text[start:i])
				}
			}
			start = i
			inSpace = !inSpace
		}
	}
	if start < len(text) {
		if inSpace {
			b.WriteString(text[start:])
		} else {
			emitWord(text[start:])
		}
	}

	return b.String()
}

// rewriteToken applies the first matching rule to a single token. Matching
// is against the token core with leading and trailing punctuation stripped;
// the punctuation is re-attached around the replacement.
func rewriteToken(word string, rules []Rule) string {
	prefix, core, suffix := splitToken(word)
	if core == "" {
		return word
	}

	for _, rule := range rules {
		if strings.EqualFold(core, rule.Token) {
			return prefix + matchCapitalization(rule.Replacement, core) + suffix
		}
	}

	return word
}

// splitToken separates a token into leading punctuation, word core, and
// trailing punctuation. Letters and digits form the core.
func splitToken(word string) (prefix, core, suffix string) {
	start := strings.IndexFunc(word, isWordRune)
	if start < 0 {
		return word, "", ""
	}
	end := strings.LastIndexFunc(word, isWordRune)
	_, size := utf8.DecodeRuneInString(word[end:])
	end += size

	return word[:start], word[start:end], word[end:]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

// matchCapitalization upper-cases the first rune of the replacement when the
// original token led with an upper-case rune.
func matchCapitalization(replacement, original string) string {
	first, _ := utf8.DecodeRuneInString(original)
	if !unicode.IsUpper(first) {
		return replacement
	}

	r, size := utf8.DecodeRuneInString(replacement)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return replacement
	}

	return string(unicode.ToUpper(r)) + replacement[size:]
}

// WordCount counts whitespace-separated tokens. Used by word-based cost
// functions and usage records.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
