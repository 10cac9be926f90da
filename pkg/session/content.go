// Package session holds the durable conversation data model: sessions,
// tracked messages, content blocks, and turn-scoped token accounting.
package session

// ContentKind tags the payload carried by a ContentBlock.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentThinking
	ContentImage
	ContentToolUse
	ContentToolResult
)

// ContentBlock is the canonical tagged sum for one unit of message payload.
// Exactly one of the typed fields is populated, determined by Kind.
type ContentBlock struct {
	Kind ContentKind

	Text     string          // ContentText
	Thinking ThinkingContent // ContentThinking
	Image    ImageContent    // ContentImage
	ToolUse  ToolUseContent  // ContentToolUse
	Result   ToolResultBlock // ContentToolResult
}

// ThinkingContent carries a model reasoning block. Signature is an opaque
// provider-issued token that must be echoed back verbatim on the next
// request for providers that verify continuity of a thinking block.
type ThinkingContent struct {
	Text      string
	Signature string
}

// ImageContent is either a URL reference or inline base64 data, never both.
type ImageContent struct {
	URL    string
	Detail string

	MIMEType string
	Base64   string
}

func (i ImageContent) IsInline() bool { return i.Base64 != "" }

// ToolUseContent is a tool-call request emitted by the model.
type ToolUseContent struct {
	ID    string
	Name  string
	Input []byte // raw JSON arguments
}

// ToolResultKind tags ToolResultBlock.Content.
type ToolResultKind int

const (
	ToolResultText ToolResultKind = iota
	ToolResultJSON
	ToolResultBlocks
)

// ToolResultBlock is the result of a tool-call, tagged by ToolResultKind.
type ToolResultBlock struct {
	CallID  string
	IsError bool

	Kind  ToolResultKind
	Text  string
	JSON  []byte         // raw JSON, ToolResultJSON
	Parts []ContentBlock // ToolResultBlocks; each must be Text or Image

}

// TextBlock builds a Text content block.
func TextBlock(text string) ContentBlock { return ContentBlock{Kind: ContentText, Text: text} }

// ThinkingBlock builds a Thinking content block.
func ThinkingBlock(text, signature string) ContentBlock {
	return ContentBlock{Kind: ContentThinking, Thinking: ThinkingContent{Text: text, Signature: signature}}
}

// ToolUseBlock builds a ToolUse content block.
func ToolUseBlock(id, name string, input []byte) ContentBlock {
	return ContentBlock{Kind: ContentToolUse, ToolUse: ToolUseContent{ID: id, Name: name, Input: input}}
}

// ToolResultTextBlock builds a ToolResult content block carrying plain text.
func ToolResultTextBlock(callID, text string, isError bool) ContentBlock {
	return ContentBlock{
		Kind: ContentToolResult,
		Result: ToolResultBlock{
			CallID: callID, IsError: isError,
			Kind: ToolResultText, Text: text,
		},
	}
}
