package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// JSONParser renders a document as an indented JSON dump under its name. Data
// that is not JSON is wrapped in an object describing the document.
type JSONParser struct{}

func (JSONParser) Name() string { return "json" }

func (JSONParser) Parse(_ context.Context, doc Document) (*Result, error) {
	var pretty bytes.Buffer
	if json.Valid(doc.Data) {
		if err := json.Indent(&pretty, doc.Data, "", "  "); err != nil {
			return nil, fmt.Errorf("indent json: %w", err)
		}
	} else {
		record := map[string]any{
			"name":         doc.Name,
			"content_type": doc.ContentType,
			"source_uri":   doc.SourceURI,
			"content":      string(doc.Data),
		}
		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		pretty.Write(out)
	}

	content := []string{
		"# " + displayName(doc),
		"\n## JSON Data\n",
		"```json",
		pretty.String(),
		"```",
	}
	return &Result{Markdown: strings.Join(content, "\n")}, nil
}
