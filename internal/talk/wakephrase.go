package talk

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	// phraseStripThreshold is the Jaro-Winkler score required to treat a
	// transcript prefix as the wake phrase when its Double Metaphone codes
	// also overlap the phrase's.
	phraseStripThreshold = 0.70

	// phraseStripFuzzyThreshold applies when there is no phonetic overlap.
	phraseStripFuzzyThreshold = 0.88
)

// PhraseStripper removes the wake phrase from the front of a transcript.
//
// The utterance that wakes the system usually begins with the wake phrase
// itself, often mangled by the recognizer ("hey hearsay" coming back as
// "hey here say" or "hey her say"). Matching combines Double Metaphone
// phonetic codes with Jaro-Winkler similarity so the mangled forms are still
// recognized without stripping prefixes that merely look similar.
type PhraseStripper struct {
	tokens []string
	concat string
	codes  map[string]struct{}
}

// NewPhraseStripper builds a stripper for phrase. An empty phrase produces a
// stripper whose Strip is the identity.
func NewPhraseStripper(phrase string) *PhraseStripper {
	tokens := normalizeTokens(phrase)
	return &PhraseStripper{
		tokens: tokens,
		concat: strings.Join(tokens, ""),
		codes:  phoneticCodes(tokens),
	}
}

// Strip removes the wake phrase prefix from transcript if one is present and
// returns the remaining text, trimmed. When no prefix matches, the
// transcript is returned unchanged.
func (s *PhraseStripper) Strip(transcript string) string {
	if len(s.tokens) == 0 {
		return transcript
	}

	words := strings.Fields(transcript)
	if len(words) == 0 {
		return transcript
	}

	// The recognizer may split or merge phrase words, so prefixes one token
	// shorter and one longer than the phrase are also considered.
	bestLen := 0
	bestScore := 0.0
	for w := len(s.tokens) - 1; w <= len(s.tokens)+1; w++ {
		if w < 1 || w > len(words) {
			continue
		}
		prefix := normalizeTokens(strings.Join(words[:w], " "))
		if len(prefix) == 0 {
			continue
		}
		score := matchr.JaroWinkler(strings.Join(prefix, ""), s.concat, false)
		phonetic := codesOverlap(phoneticCodes(prefix), s.codes)

		threshold := phraseStripFuzzyThreshold
		if phonetic {
			threshold = phraseStripThreshold
		}
		if score >= threshold && score > bestScore {
			bestScore = score
			bestLen = w
		}
	}

	if bestLen == 0 {
		return transcript
	}
	rest := strings.Join(words[bestLen:], " ")
	return strings.TrimLeft(rest, " ,.;:!?")
}

// normalizeTokens lowercases s, drops punctuation, and splits it into words.
func normalizeTokens(s string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// phoneticCodes returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func phoneticCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
