package chunker

import (
	"strings"
)

// MarkdownChunker keeps heading sections together and falls back to the
// sentence window for sections larger than the target size.
type MarkdownChunker struct{}

func NewMarkdownChunker() *MarkdownChunker {
	return &MarkdownChunker{}
}

func (c *MarkdownChunker) Name() string {
	return "markdown"
}

type markdownSection struct {
	heading string
	level   int
	body    string
}

func (c *MarkdownChunker) Chunk(content string, settings Settings) ([]Piece, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	settings = settings.Normalize()

	var pieces []Piece
	for _, section := range splitSections(content) {
		text := strings.TrimSpace(section.body)
		if text == "" {
			continue
		}

		meta := func() map[string]interface{} {
			if section.heading == "" {
				return nil
			}
			return map[string]interface{}{
				"heading":       section.heading,
				"heading_level": section.level,
			}
		}

		if EstimateTokens(text) <= settings.Size {
			pieces = append(pieces, Piece{Text: text, Metadata: meta()})
			continue
		}
		for _, window := range windowSentences(SplitSentences(text), settings) {
			pieces = append(pieces, Piece{Text: window, Metadata: meta()})
		}
	}

	if len(pieces) == 0 {
		return nil, ErrEmptyContent
	}
	return pieces, nil
}

// splitSections cuts the document before every ATX heading outside fenced code.
func splitSections(content string) []markdownSection {
	var (
		sections []markdownSection
		current  markdownSection
		buf      strings.Builder
		inFence  bool
	)

	flush := func() {
		current.body = buf.String()
		sections = append(sections, current)
		buf.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}

		if !inFence {
			if level, heading, ok := parseHeading(trimmed); ok {
				if buf.Len() > 0 {
					flush()
				}
				current = markdownSection{heading: heading, level: level}
			}
		}

		buf.WriteString(line)
		buf.WriteString("\n")
	}
	if buf.Len() > 0 {
		flush()
	}
	return sections
}

func parseHeading(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	if level < len(line) && line[level] != ' ' && line[level] != '\t' {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[level:]), true
}
