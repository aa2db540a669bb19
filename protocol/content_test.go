package protocol

import (
	"encoding/json"
	"testing"
)

func TestContentBlockUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		validate func(t *testing.T, block ContentBlock)
	}{
		{
			name:  "typed text block",
			input: `{"type":"text","text":"hello"}`,
			validate: func(t *testing.T, block ContentBlock) {
				if block.Type != ContentText {
					t.Errorf("expected text type, got %q", block.Type)
				}
				if block.Text != "hello" {
					t.Errorf("expected text 'hello', got %q", block.Text)
				}
			},
		},
		{
			name:  "bare string is a text block",
			input: `"just a string"`,
			validate: func(t *testing.T, block ContentBlock) {
				if block.Type != ContentText {
					t.Errorf("expected text type, got %q", block.Type)
				}
				if block.Text != "just a string" {
					t.Errorf("expected text 'just a string', got %q", block.Text)
				}
			},
		},
		{
			name:  "tool_use block",
			input: `{"type":"tool_use","id":"call_1","name":"search","input":{"q":"go"}}`,
			validate: func(t *testing.T, block ContentBlock) {
				if block.Type != ContentToolUse {
					t.Errorf("expected tool_use type, got %q", block.Type)
				}
				if block.ID != "call_1" || block.Name != "search" {
					t.Errorf("unexpected id/name: %q/%q", block.ID, block.Name)
				}
				if block.Input["q"] != "go" {
					t.Errorf("unexpected input: %v", block.Input)
				}
			},
		},
		{
			name:  "image block",
			input: `{"type":"image","data":"aGk=","mimeType":"image/png"}`,
			validate: func(t *testing.T, block ContentBlock) {
				if block.Type != ContentImage {
					t.Errorf("expected image type, got %q", block.Type)
				}
				if block.MimeType != "image/png" {
					t.Errorf("unexpected mime type %q", block.MimeType)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var block ContentBlock
			if err := json.Unmarshal([]byte(tt.input), &block); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			tt.validate(t, block)
		})
	}
}

func TestContentListUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
	}{
		{name: "single object", input: `{"type":"text","text":"a"}`, count: 1},
		{name: "bare string", input: `"a"`, count: 1},
		{name: "array", input: `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, count: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list ContentList
			if err := json.Unmarshal([]byte(tt.input), &list); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if len(list) != tt.count {
				t.Errorf("expected %d blocks, got %d", tt.count, len(list))
			}
		})
	}
}

func TestContentListKnownDropsUnrecognized(t *testing.T) {
	input := `[{"type":"text","text":"keep"},{"type":"resource","uri":"file:///x"}]`

	var list ContentList
	if err := json.Unmarshal([]byte(input), &list); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	known := list.Known()
	if len(known) != 1 {
		t.Fatalf("expected 1 known block, got %d", len(known))
	}
	if known[0].Text != "keep" {
		t.Errorf("wrong block survived: %+v", known[0])
	}
}

func TestContentListJoinText(t *testing.T) {
	list := ContentList{
		NewTextBlock("one "),
		{Type: ContentImage, Data: "aGk=", MimeType: "image/png"},
		NewTextBlock("two"),
	}

	if got := list.JoinText(); got != "one two" {
		t.Errorf("expected 'one two', got %q", got)
	}
}
