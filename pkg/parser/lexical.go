package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Lexical editor text format bits.
const (
	lexBold = 1 << iota
	lexItalic
	lexStrikethrough
	lexUnderline
	lexCode
)

type lexicalState struct {
	Root lexicalNode `json:"root"`
}

type lexicalNode struct {
	Type     string        `json:"type"`
	Children []lexicalNode `json:"children,omitempty"`
	Text     string        `json:"text,omitempty"`
	// Format is a bitmask on text nodes and an alignment string on blocks.
	Format   any    `json:"format,omitempty"`
	Tag      string `json:"tag,omitempty"`
	URL      string `json:"url,omitempty"`
	ListType string `json:"listType,omitempty"`
	Start    int    `json:"start,omitempty"`
	Checked  bool   `json:"checked,omitempty"`
	Language string `json:"language,omitempty"`
}

// LexicalParser renders Lexical rich text editor state (the JSON document a
// Lexical editor serializes) as markdown.
type LexicalParser struct{}

func (LexicalParser) Name() string { return "lexical" }

func (LexicalParser) Parse(_ context.Context, doc Document) (*Result, error) {
	var state lexicalState
	if err := json.Unmarshal(doc.Data, &state); err != nil {
		return nil, fmt.Errorf("decode lexical state: %w", err)
	}
	if state.Root.Type != "root" {
		return nil, fmt.Errorf("decode lexical state: missing root node")
	}

	var sb strings.Builder
	for _, child := range state.Root.Children {
		writeLexicalBlock(&sb, child, 0)
	}
	return &Result{Markdown: strings.TrimSpace(sb.String()) + "\n"}, nil
}

// isLexicalState reports whether data looks like serialized editor state.
func isLexicalState(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte(`{"root":`))
}

func writeLexicalBlock(sb *strings.Builder, n lexicalNode, depth int) {
	switch n.Type {
	case "heading":
		level := 1
		if len(n.Tag) == 2 && n.Tag[0] == 'h' && n.Tag[1] >= '1' && n.Tag[1] <= '6' {
			level = int(n.Tag[1] - '0')
		}
		sb.WriteString(strings.Repeat("#", level) + " ")
		writeLexicalInline(sb, n.Children)
		sb.WriteString("\n\n")
	case "quote":
		sb.WriteString("> ")
		writeLexicalInline(sb, n.Children)
		sb.WriteString("\n\n")
	case "code":
		sb.WriteString("```" + n.Language + "\n")
		writeLexicalInline(sb, n.Children)
		sb.WriteString("\n```\n\n")
	case "list":
		writeLexicalList(sb, n, depth)
		if depth == 0 {
			sb.WriteString("\n")
		}
	case "table":
		writeLexicalTable(sb, n)
	case "horizontalrule":
		sb.WriteString("---\n\n")
	default:
		writeLexicalInline(sb, n.Children)
		sb.WriteString("\n\n")
	}
}

func writeLexicalInline(sb *strings.Builder, nodes []lexicalNode) {
	for _, n := range nodes {
		switch n.Type {
		case "text":
			sb.WriteString(formatLexicalText(n))
		case "linebreak":
			sb.WriteString("\n")
		case "link", "autolink":
			sb.WriteString("[")
			writeLexicalInline(sb, n.Children)
			sb.WriteString("](" + n.URL + ")")
		default:
			writeLexicalInline(sb, n.Children)
		}
	}
}

func formatLexicalText(n lexicalNode) string {
	bits := 0
	if f, ok := n.Format.(float64); ok {
		bits = int(f)
	}
	text := n.Text
	if bits&lexCode != 0 {
		return "`" + text + "`"
	}
	if bits&lexStrikethrough != 0 {
		text = "~~" + text + "~~"
	}
	if bits&lexUnderline != 0 {
		text = "<u>" + text + "</u>"
	}
	if bits&lexItalic != 0 {
		text = "_" + text + "_"
	}
	if bits&lexBold != 0 {
		text = "**" + text + "**"
	}
	return text
}

func writeLexicalList(sb *strings.Builder, n lexicalNode, depth int) {
	index := 1
	if n.Start > 0 {
		index = n.Start
	}
	for _, item := range n.Children {
		if item.Type != "listitem" {
			continue
		}
		var nested []lexicalNode
		var inline []lexicalNode
		for _, c := range item.Children {
			if c.Type == "list" {
				nested = append(nested, c)
			} else {
				inline = append(inline, c)
			}
		}
		// Lexical wraps nested lists in an otherwise empty list item.
		if len(inline) > 0 {
			sb.WriteString(strings.Repeat("  ", depth))
			switch n.ListType {
			case "number":
				fmt.Fprintf(sb, "%d. ", index)
				index++
			case "check":
				if item.Checked {
					sb.WriteString("- [x] ")
				} else {
					sb.WriteString("- [ ] ")
				}
			default:
				sb.WriteString("- ")
			}
			writeLexicalInline(sb, inline)
			sb.WriteString("\n")
		}
		for _, l := range nested {
			writeLexicalList(sb, l, depth+1)
		}
	}
}

func writeLexicalTable(sb *strings.Builder, n lexicalNode) {
	var rows [][]string
	cols := 0
	for _, row := range n.Children {
		if row.Type != "tablerow" {
			continue
		}
		var cells []string
		for _, cell := range row.Children {
			var cb strings.Builder
			for _, c := range cell.Children {
				writeLexicalInline(&cb, c.Children)
				cb.WriteString(" ")
			}
			cells = append(cells, strings.TrimSpace(strings.ReplaceAll(cb.String(), "\n", " ")))
		}
		rows = append(rows, cells)
		cols = max(cols, len(cells))
	}
	if len(rows) == 0 {
		return
	}

	writeRow := func(cells []string) {
		sb.WriteString("|")
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteString("\n")
	}
	writeRow(rows[0])
	sb.WriteString("|" + strings.Repeat("---|", cols) + "\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
	sb.WriteString("\n")
}
