package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SentenceChunker is the default strategy: a greedy sliding window over
// sentences, sized by an estimated token count.
type SentenceChunker struct{}

func NewSentenceChunker() *SentenceChunker {
	return &SentenceChunker{}
}

func (c *SentenceChunker) Name() string {
	return "default"
}

func (c *SentenceChunker) Chunk(content string, settings Settings) ([]Piece, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	settings = settings.Normalize()

	var pieces []Piece
	for _, text := range windowSentences(SplitSentences(content), settings) {
		pieces = append(pieces, Piece{Text: text})
	}
	return pieces, nil
}

// EstimateTokens approximates the token count as one token per four characters.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// SplitSentences splits on whitespace runs that follow '.', '!' or '?'.
// Terminal punctuation stays attached to its sentence.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) {
			continue
		}
		switch runes[i-1] {
		case '.', '!', '?':
		default:
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if s := string(runes[start:i]); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// windowSentences accumulates sentences until the next one would overflow the
// window, then emits the window joined by spaces and seeds the next one with
// the longest suffix of sentences that fits in the overlap budget.
func windowSentences(sentences []string, settings Settings) []string {
	var (
		chunks  []string
		current []string
		size    int
	)

	for _, sentence := range sentences {
		tokens := EstimateTokens(sentence)

		if size+tokens > settings.Size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			overlapTokens := 0
			var overlap []string
			for i := len(current) - 1; i >= 0; i-- {
				t := EstimateTokens(current[i])
				if overlapTokens+t > settings.Overlap {
					break
				}
				overlap = append([]string{current[i]}, overlap...)
				overlapTokens += t
			}
			current = overlap
			size = overlapTokens
		}

		current = append(current, sentence)
		size += tokens
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
