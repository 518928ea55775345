// Package chunker splits document text into sentence-respecting segments
// sized for a single text-to-speech request.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the soft limit, in characters, for one chunk.
	DefaultChunkSize = 500
	// MaxRequestChars is the provider's hard cap on text per TTS call.
	MaxRequestChars = 2000
)

// Chunk is one ordered slice of the document text.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type span struct {
	start, end int
}

// Split breaks text into chunks of at most limit characters. Sentences are
// never split; a sentence longer than limit becomes a chunk of its own. The
// one exception is a sentence longer than MaxRequestChars, which is cut at
// whitespace so every piece can still be synthesized. Whitespace-only input
// yields a single chunk holding the original text.
func Split(text string, limit int) []Chunk {
	if limit <= 0 {
		limit = DefaultChunkSize
	}
	if limit > MaxRequestChars {
		limit = MaxRequestChars
	}

	if strings.TrimSpace(text) == "" {
		return []Chunk{{Index: 0, Text: text}}
	}

	var (
		chunks  []Chunk
		current span
		open    bool
	)
	for _, s := range capped(text, sentences(text)) {
		if !open {
			current, open = s, true
			continue
		}
		if utf8.RuneCountInString(text[current.start:s.end]) > limit {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: text[current.start:current.end]})
			current = s
			continue
		}
		current.end = s.end
	}
	if open {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: text[current.start:current.end]})
	}
	return chunks
}

// Normalize collapses every whitespace run to a single space and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Join reassembles chunk texts with single spaces.
func Join(chunks []Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, " ")
}

// sentences returns trimmed byte spans of every sentence in text. A sentence
// ends at a run of terminal punctuation (plus closing quotes or brackets)
// that is followed by whitespace or the end of the text, so "3.14" or
// "example.com" never end a sentence.
func sentences(text string) []span {
	var (
		out   []span
		start = -1
	)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if start < 0 {
			if !unicode.IsSpace(r) {
				start = i
			}
			i += size
			continue
		}
		if !isTerminal(r) {
			i += size
			continue
		}

		j := i + size
		for j < len(text) {
			next, n := utf8.DecodeRuneInString(text[j:])
			if !isTerminal(next) && !isCloser(next) {
				break
			}
			j += n
		}
		if j == len(text) {
			out = append(out, span{start, j})
			start = -1
			i = j
			break
		}
		if next, _ := utf8.DecodeRuneInString(text[j:]); unicode.IsSpace(next) {
			out = append(out, span{start, j})
			start = -1
		}
		i = j
	}
	if start >= 0 {
		end := len(strings.TrimRightFunc(text, unicode.IsSpace))
		if end > start {
			out = append(out, span{start, end})
		}
	}
	return out
}

// capped cuts every span longer than MaxRequestChars into pieces that end
// at whitespace. A single word longer than the cap stays whole.
func capped(text string, spans []span) []span {
	out := make([]span, 0, len(spans))
	for _, s := range spans {
		for utf8.RuneCountInString(text[s.start:s.end]) > MaxRequestChars {
			cut, runes := -1, 0
			for i, r := range text[s.start:s.end] {
				if runes > MaxRequestChars && cut >= 0 {
					break
				}
				if unicode.IsSpace(r) {
					cut = s.start + i
					if runes > MaxRequestChars {
						break
					}
				}
				runes++
			}
			if cut < 0 {
				break
			}
			out = append(out, span{s.start, len(strings.TrimRightFunc(text[:cut], unicode.IsSpace))})
			next := cut
			for next < s.end {
				r, n := utf8.DecodeRuneInString(text[next:])
				if !unicode.IsSpace(r) {
					break
				}
				next += n
			}
			s.start = next
		}
		out = append(out, s)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»':
		return true
	}
	return false
}
