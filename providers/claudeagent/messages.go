package claudeagent

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// MessageType discriminates between upstream message kinds.
type MessageType string

const (
	MessageTypeSystem    MessageType = "system"
	MessageTypeAssistant MessageType = "assistant"
	MessageTypeUser      MessageType = "user"
	MessageTypeResult    MessageType = "result"
)

// Message is the interface for all upstream messages.
// The set of implementations is closed: AssistantMessage, ResultMessage,
// SystemMessage and OtherMessage.
type Message interface {
	MsgType() MessageType
}

// ContentBlockType discriminates between content blocks of an assistant message.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"    // tool invocation
	ContentBlockTypeToolResult ContentBlockType = "tool_result" // tool outcome
)

// ContentBlock is one unit of upstream assistant output.
// Fields are populated according to Type; blocks with other tags
// (thinking, server tool results, ...) keep their raw tag.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// ContentBlocks is the content of an upstream message.
// The worker normally sends an array of blocks; a bare string is accepted
// and treated as a single text block.
type ContentBlocks []ContentBlock

// UnmarshalJSON implements json.Unmarshaler.
func (cb *ContentBlocks) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*cb = ContentBlocks{{Type: ContentBlockTypeText, Text: s}}
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	*cb = blocks
	return nil
}

// MessageContent is the inner API message of an assistant message.
type MessageContent struct {
	ID         string        `json:"id,omitempty"`
	Model      string        `json:"model,omitempty"`
	Role       string        `json:"role"`
	Content    ContentBlocks `json:"content"`
	StopReason *string       `json:"stop_reason"`
}

// AssistantMessage is a complete assistant turn from the worker.
// Per-message usage is deliberately not decoded: only result messages
// contribute usage.
type AssistantMessage struct {
	ParentToolUseID *string        `json:"parent_tool_use_id"`
	Type            MessageType    `json:"type"`
	SessionID       string         `json:"session_id"`
	UUID            string         `json:"uuid"`
	Message         MessageContent `json:"message"`
}

// MsgType returns the message type.
func (m AssistantMessage) MsgType() MessageType { return MessageTypeAssistant }

// ResultMessage ends a query and reports its metrics.
type ResultMessage struct {
	Type          MessageType      `json:"type"`
	Subtype       string           `json:"subtype"`
	SessionID     string           `json:"session_id"`
	UUID          string           `json:"uuid"`
	Result        string           `json:"result"`
	StopReason    *string          `json:"stop_reason"`
	Usage         *anthropic.Usage `json:"usage"`
	TotalCostUSD  *float64         `json:"total_cost_usd"`
	NumTurns      int              `json:"num_turns"`
	DurationMs    int64            `json:"duration_ms"`
	DurationAPIMs int64            `json:"duration_api_ms"`
	IsError       bool             `json:"is_error"`
}

// MsgType returns the message type.
func (m ResultMessage) MsgType() MessageType { return MessageTypeResult }

// SystemMessage reports session initialization and other worker events.
type SystemMessage struct {
	Type           MessageType `json:"type"`
	Subtype        string      `json:"subtype"`
	SessionID      string      `json:"session_id"`
	UUID           string      `json:"uuid"`
	Model          string      `json:"model,omitempty"`
	CWD            string      `json:"cwd,omitempty"`
	PermissionMode string      `json:"permissionMode,omitempty"`
	Tools          []string    `json:"tools,omitempty"`
}

// MsgType returns the message type.
func (m SystemMessage) MsgType() MessageType { return MessageTypeSystem }

// OtherMessage carries any message whose tag is not modelled above
// (user tool-result echoes, stream events, control messages, future tags).
type OtherMessage struct {
	Type MessageType
	Raw  json.RawMessage
}

// MsgType returns the message type.
func (m OtherMessage) MsgType() MessageType { return m.Type }

// ParseMessage decodes one JSON line from the worker into a typed message.
// Unknown tags yield an OtherMessage; malformed JSON is an error.
func ParseMessage(data []byte) (Message, error) {
	var base struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("parse message type: %w", err)
	}

	switch base.Type {
	case MessageTypeAssistant:
		var msg AssistantMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("parse assistant message: %w", err)
		}
		return msg, nil

	case MessageTypeResult:
		var msg ResultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("parse result message: %w", err)
		}
		return msg, nil

	case MessageTypeSystem:
		var msg SystemMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("parse system message: %w", err)
		}
		return msg, nil

	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return OtherMessage{Type: base.Type, Raw: raw}, nil
	}
}
