package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lexicalDoc = `{"root":{"type":"root","children":[
 {"type":"heading","tag":"h2","children":[{"type":"text","text":"Setup"}]},
 {"type":"paragraph","children":[
   {"type":"text","text":"Run "},
   {"type":"text","text":"make","format":16},
   {"type":"text","text":" then read the "},
   {"type":"link","url":"https://example.com","children":[{"type":"text","text":"docs","format":1}]}
 ]},
 {"type":"list","listType":"check","children":[
   {"type":"listitem","checked":true,"children":[{"type":"text","text":"install"}]},
   {"type":"listitem","children":[{"type":"text","text":"configure"}]},
   {"type":"listitem","children":[{"type":"list","listType":"number","children":[
     {"type":"listitem","children":[{"type":"text","text":"edit .env"}]}
   ]}]}
 ]},
 {"type":"table","children":[
   {"type":"tablerow","children":[
     {"type":"tablecell","children":[{"type":"paragraph","children":[{"type":"text","text":"key"}]}]},
     {"type":"tablecell","children":[{"type":"paragraph","children":[{"type":"text","text":"value"}]}]}
   ]},
   {"type":"tablerow","children":[
     {"type":"tablecell","children":[{"type":"paragraph","children":[{"type":"text","text":"PORT"}]}]}
   ]}
 ]}
]}}`

func TestLexicalParser(t *testing.T) {
	res, err := LexicalParser{}.Parse(context.Background(), Document{Data: []byte(lexicalDoc)})
	require.NoError(t, err)

	md := res.Markdown
	assert.Contains(t, md, "## Setup\n")
	assert.Contains(t, md, "Run `make` then read the [**docs**](https://example.com)")
	assert.Contains(t, md, "- [x] install\n- [ ] configure\n")
	assert.Contains(t, md, "  1. edit .env\n")
	assert.Contains(t, md, "| key | value |\n|---|---|\n| PORT |  |\n")
}

func TestLexicalParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "hello"},
		{"no root", `{"editor":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LexicalParser{}.Parse(context.Background(), Document{Data: []byte(tt.data)})
			assert.Error(t, err)
		})
	}
}

func TestRegistry_ParseLexicalThroughDispatch(t *testing.T) {
	res, err := NewDefaultRegistry().Parse(context.Background(), "default", Document{
		ContentType: "application/json",
		Data:        []byte(`{"root":{"type":"root","children":[{"type":"paragraph","children":[{"type":"text","text":"hello"}]}]}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Markdown)
}
