package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder is the subset of a BPE tokenizer used for fixed token windows.
type Encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// TokenChunker emits fixed windows of real BPE tokens.
type TokenChunker struct {
	encoder Encoder
}

func NewTokenChunker(encoder Encoder) *TokenChunker {
	return &TokenChunker{encoder: encoder}
}

// NewTiktokenChunker loads the named encoding, falling back to cl100k_base.
func NewTiktokenChunker(encoding string) (*TokenChunker, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return NewTokenChunker(enc), nil
}

func (c *TokenChunker) Name() string {
	return "token"
}

func (c *TokenChunker) Chunk(content string, settings Settings) ([]Piece, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	settings = settings.Normalize()

	tokens := c.encoder.Encode(content, nil, nil)
	step := settings.Size - settings.Overlap
	if step <= 0 {
		step = settings.Size
	}

	var pieces []Piece
	for start := 0; start < len(tokens); start += step {
		end := start + settings.Size
		if end > len(tokens) {
			end = len(tokens)
		}
		text := strings.TrimSpace(c.encoder.Decode(tokens[start:end]))
		if text != "" {
			pieces = append(pieces, Piece{
				Text: text,
				Metadata: map[string]interface{}{
					"token_start": start,
					"token_count": end - start,
				},
			})
		}
		if end == len(tokens) {
			break
		}
	}

	if len(pieces) == 0 {
		return nil, ErrEmptyContent
	}
	return pieces, nil
}
