package protocol

import (
	"encoding/json"
	"fmt"
)

// ContentType discriminates the content-block union.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentAudio      ContentType = "audio"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// ErrUnknownContentType marks a block whose type discriminator is not one of
// the known variants.
var ErrUnknownContentType = fmt.Errorf("unknown content block type")

// ContentBlock is one variant of the MCP content union. Which fields are
// meaningful depends on Type:
//
//	text        — Text
//	image/audio — Data (base64) and MimeType
//	tool_use    — ID, Name, Input
//	tool_result — ToolUseID, Content (nested blocks), IsError
type ContentBlock struct {
	Type      ContentType    `json:"type"`
	Text      string         `json:"text,omitempty"`
	Data      string         `json:"data,omitempty"`
	MimeType  string         `json:"mimeType,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"toolUseId,omitempty"`
	Content   ContentList    `json:"content,omitempty"`
	IsError   bool           `json:"isError,omitempty"`
}

// NewTextBlock builds a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// NewToolUseBlock builds a tool_use content block.
func NewToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: ContentToolUse, ID: id, Name: name, Input: input}
}

// UnmarshalJSON accepts either a typed block object or a bare JSON string,
// which MCP treats as shorthand for a text block. Objects with an
// unrecognized type unmarshal successfully but fail Validate.
func (c *ContentBlock) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = NewTextBlock(s)
		return nil
	}

	type alias ContentBlock
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = ContentBlock(a)
	return nil
}

// Validate reports whether the block's discriminator is a known variant.
func (c ContentBlock) Validate() error {
	switch c.Type {
	case ContentText, ContentImage, ContentAudio, ContentToolUse, ContentToolResult:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownContentType, c.Type)
	}
}

// ContentList is a block sequence that unmarshals from a single block, a bare
// string, or an array of blocks. Blocks with unknown discriminators are
// dropped during Known().
type ContentList []ContentBlock

// UnmarshalJSON handles the three accepted wire shapes.
func (l *ContentList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var blocks []ContentBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return err
		}
		*l = blocks
		return nil
	}

	var block ContentBlock
	if err := json.Unmarshal(data, &block); err != nil {
		return err
	}
	*l = ContentList{block}
	return nil
}

// Known returns the blocks whose type is a recognized variant.
func (l ContentList) Known() ContentList {
	out := make(ContentList, 0, len(l))
	for _, b := range l {
		if b.Validate() == nil {
			out = append(out, b)
		}
	}
	return out
}

// JoinText concatenates the text of all text blocks.
func (l ContentList) JoinText() string {
	var text string
	for _, b := range l {
		if b.Type == ContentText {
			text += b.Text
		}
	}
	return text
}
