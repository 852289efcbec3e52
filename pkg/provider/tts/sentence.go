package tts

import "strings"

// sentenceTerminators are the characters that end a sentence for streaming
// synthesis purposes.
const sentenceTerminators = ".!?;"

// SplitSentences splits text into synthesis units at sentence boundaries
// ('.', '!', '?', ';'). The terminator stays attached to its sentence, runs
// of terminators stay together, and surrounding whitespace is trimmed. Text
// after the last terminator forms a final unit. Empty units are dropped.
//
// Provider implementations share this splitter so that every backend has the
// same cancellation granularity.
func SplitSentences(text string) []string {
	var (
		sentences []string
		start     int
		inTerm    bool
	)
	flush := func(end int) {
		s := strings.TrimSpace(text[start:end])
		if s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}
	for i, r := range text {
		if strings.ContainsRune(sentenceTerminators, r) {
			inTerm = true
			continue
		}
		if inTerm {
			flush(i)
			inTerm = false
		}
	}
	flush(len(text))
	return sentences
}
