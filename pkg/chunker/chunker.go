// Package chunker splits document content into sentence-aligned segments
// bounded by an approximate token budget.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxTokens is the token budget per chunk when none is given.
	DefaultMaxTokens = 8000
	// DefaultCharsPerToken is a conservative characters-per-token approximation.
	DefaultCharsPerToken = 4
)

// A sentence ends with a run of terminal punctuation; a trailing fragment without one still counts.
var sentenceRe = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)|[.!?]+`)

// Segment is one chunk of the source text. Start and End are rune offsets
// into the source, End exclusive.
type Segment struct {
	Text       string
	Start      int
	End        int
	TokenCount int
}

// Chunker is safe for concurrent use.
type Chunker struct {
	charsPerToken int
}

// New returns a Chunker using the given characters-per-token approximation.
func New(charsPerToken int) *Chunker {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &Chunker{charsPerToken: charsPerToken}
}

type sentence struct {
	text       string
	start, end int
}

// Chunk greedily packs sentences into segments of at most maxTokens*charsPerToken
// characters. A single sentence longer than the limit is emitted on its own, unsplit.
func (c *Chunker) Chunk(text string, maxTokens int) []Segment {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	maxChars := maxTokens * c.charsPerToken

	sentences := splitSentences(text)
	var segments []Segment
	var (
		buf        strings.Builder
		bufLen     int
		start, end int
	)
	seal := func() {
		if bufLen == 0 {
			return
		}
		segments = append(segments, c.segment(buf.String(), bufLen, start, end))
		buf.Reset()
		bufLen = 0
	}

	for _, s := range sentences {
		n := utf8.RuneCountInString(s.text)
		if bufLen > 0 && bufLen+1+n > maxChars {
			seal()
		}
		if bufLen == 0 {
			start = s.start
		} else {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(s.text)
		bufLen += n
		end = s.end
	}
	seal()

	if len(segments) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		lead := utf8.RuneCountInString(text[:strings.Index(text, trimmed)])
		n := utf8.RuneCountInString(trimmed)
		segments = append(segments, c.segment(trimmed, n, lead, lead+n))
	}
	return segments
}

func (c *Chunker) segment(text string, runes, start, end int) Segment {
	return Segment{
		Text:       text,
		Start:      start,
		End:        end,
		TokenCount: (runes + c.charsPerToken - 1) / c.charsPerToken,
	}
}

// splitSentences returns trimmed, non-empty sentences with rune offsets of the trimmed text.
func splitSentences(text string) []sentence {
	var out []sentence
	runeBase, byteBase := 0, 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		runeBase += utf8.RuneCountInString(text[byteBase:loc[0]])
		byteBase = loc[0]

		raw := text[loc[0]:loc[1]]
		trimmed := strings.TrimSpace(raw)
		rawRunes := utf8.RuneCountInString(raw)
		if trimmed != "" && strings.Trim(trimmed, ".!?") != "" {
			lead := utf8.RuneCountInString(raw[:strings.Index(raw, trimmed)])
			s := runeBase + lead
			out = append(out, sentence{text: trimmed, start: s, end: s + utf8.RuneCountInString(trimmed)})
		}
		runeBase += rawRunes
		byteBase = loc[1]
	}
	return out
}
