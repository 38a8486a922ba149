package llmprovider

import (
	"encoding/json"
	"strings"
	"time"
)

// Block type constants
const (
	BlockTypeText       = "text"
	BlockTypeThinking   = "thinking"    // Claude extended thinking
	BlockTypeToolUse    = "tool_use"    // Tool invocation requested by the assistant
	BlockTypeToolResult = "tool_result" // Outcome of a tool invocation
	BlockTypeImage      = "image"
)

// Block represents a content block of a host conversation message.
// This is a content-only type with no database fields.
//
// The Content field stores block-type-specific structured data as a map:
// - text: empty (text in TextContent field)
// - tool_use: {"tool_use_id": "toolu_...", "tool_name": "...", "input": {...}}
// - tool_result: {"tool_use_id": "toolu_...", "is_error": false, "content": "..."}
// - image: {"url": "...", "mime_type": "..."}
type Block struct {
	// BlockType indicates the type of block
	// Values: "text", "thinking", "tool_use", "tool_result", "image"
	BlockType string `json:"block_type"`

	// Sequence indicates the position of this block in the turn (0-indexed)
	Sequence int `json:"sequence"`

	// TextContent contains the text for text/thinking blocks
	TextContent *string `json:"text_content,omitempty"`

	// Content contains type-specific structured data
	Content map[string]interface{} `json:"content,omitempty"`

	// ProviderData stores the raw provider-specific payload for this block, if any
	ProviderData json.RawMessage `json:"provider_data,omitempty"`
}

// IsToolUseBlock returns true if this is a tool_use block
func (b *Block) IsToolUseBlock() bool {
	return b.BlockType == BlockTypeToolUse
}

// IsToolResultBlock returns true if this is a tool_result block
func (b *Block) IsToolResultBlock() bool {
	return b.BlockType == BlockTypeToolResult
}

// GetToolUseID returns the tool_use_id from a tool_use or tool_result block
func (b *Block) GetToolUseID() (string, bool) {
	if !b.IsToolUseBlock() && !b.IsToolResultBlock() {
		return "", false
	}
	id, ok := b.Content["tool_use_id"].(string)
	return id, ok
}

// GetToolName returns the tool_name from a tool_use block
func (b *Block) GetToolName() (string, bool) {
	if !b.IsToolUseBlock() {
		return "", false
	}
	name, ok := b.Content["tool_name"].(string)
	return name, ok
}

// GetToolInput returns the input from a tool_use block
func (b *Block) GetToolInput() (map[string]interface{}, bool) {
	if !b.IsToolUseBlock() {
		return nil, false
	}
	input, ok := b.Content["input"].(map[string]interface{})
	return input, ok
}

// ExecutionSide indicates where tool execution happens.
//
// For agent-backed providers this doubles as the tool forwarding policy:
// server-side tools were already run by the upstream worker and must not be
// handed to the host again, client-side tools are forwarded for the host to run.
type ExecutionSide string

const (
	ExecutionSideServer ExecutionSide = "server" // Provider executes tool
	ExecutionSideClient ExecutionSide = "client" // Consumer executes tool
)

// IsValid returns true if the execution side is a known value
func (s ExecutionSide) IsValid() bool {
	return s == ExecutionSideServer || s == ExecutionSideClient
}

// Content item type constants for assistant output
const (
	ContentTypeText     = "text"
	ContentTypeToolCall = "toolCall"
)

// ContentItem is one unit of assistant output delivered to the host.
// Items are append-only: once emitted in an event snapshot they are never mutated.
type ContentItem struct {
	// Type is ContentTypeText or ContentTypeToolCall
	Type string `json:"type"`

	// Text holds the text of a text item
	Text string `json:"text,omitempty"`

	// ID, Name and Arguments describe a tool call item
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// TextItem creates a text content item.
func TextItem(text string) ContentItem {
	return ContentItem{Type: ContentTypeText, Text: text}
}

// ToolCallItem creates a tool call content item.
func ToolCallItem(id, name string, arguments map[string]interface{}) ContentItem {
	return ContentItem{Type: ContentTypeToolCall, ID: id, Name: name, Arguments: arguments}
}

// StopReason classifies why generation ended.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "toolUse"
	StopReasonError   StopReason = "error"
)

// Cost is the monetary cost of a response in USD, broken down by token class.
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
	Total      float64 `json:"total"`
}

// Usage holds token counters for a response. All fields default to zero.
type Usage struct {
	Input       int  `json:"input"`
	Output      int  `json:"output"`
	CacheRead   int  `json:"cacheRead"`
	CacheWrite  int  `json:"cacheWrite"`
	TotalTokens int  `json:"totalTokens"`
	Cost        Cost `json:"cost"`
}

// IsZero returns true if no counter has been set
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// AssistantMessage is the host-facing view of an assistant response.
// During streaming it is delivered as a snapshot with every event.
type AssistantMessage struct {
	Role         string        `json:"role"` // Always "assistant"
	Content      []ContentItem `json:"content"`
	API          string        `json:"api"`
	Provider     ProviderID    `json:"provider"`
	Model        string        `json:"model"`
	Usage        Usage         `json:"usage"`
	StopReason   StopReason    `json:"stopReason"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Text returns the concatenated text of all text items
func (m *AssistantMessage) Text() string {
	var sb strings.Builder
	for _, item := range m.Content {
		if item.Type == ContentTypeText {
			sb.WriteString(item.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns all tool call items in order
func (m *AssistantMessage) ToolCalls() []ContentItem {
	var calls []ContentItem
	for _, item := range m.Content {
		if item.Type == ContentTypeToolCall {
			calls = append(calls, item)
		}
	}
	return calls
}
