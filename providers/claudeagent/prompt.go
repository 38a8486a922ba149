package claudeagent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haowjy/meridian-agent-go"
)

// PromptStrategy selects how prior conversation turns reach the upstream worker.
type PromptStrategy string

const (
	// HistoryInPrompt serializes prior turns into the prompt text itself.
	HistoryInPrompt PromptStrategy = "history-in-prompt"

	// HistoryAsTurns sends prior turns as structured messages next to the prompt.
	HistoryAsTurns PromptStrategy = "history-as-turns"
)

// IsValid returns true if the strategy is a known value
func (s PromptStrategy) IsValid() bool {
	return s == HistoryInPrompt || s == HistoryAsTurns
}

// Section delimiters of a history-in-prompt prompt.
const (
	historyOpenTag  = "<conversation_history>"
	historyCloseTag = "</conversation_history>"
	currentOpenTag  = "<current_message>"
	currentCloseTag = "</current_message>"
)

// HistoryTurn is one prior turn as serialized in a history-in-prompt prompt.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequest builds the outbound request for one query.
// It never fails: a context without a user message yields an empty prompt.
func BuildRequest(
	model llmprovider.Model,
	convo *llmprovider.Context,
	params *llmprovider.RequestParams,
	strategy PromptStrategy,
	mode PermissionMode,
) *Request {
	var messages []llmprovider.Message
	var systemPrompt *string
	if convo != nil {
		messages = convo.Messages
		systemPrompt = convo.SystemPrompt
	}

	req := &Request{
		Options: QueryOptions{
			Model:          model.ID,
			PermissionMode: mode,
			SystemPrompt:   systemPrompt,
		},
	}

	if maxTokens := params.GetMaxTokens(model.MaxTokens); maxTokens > 0 {
		req.Options.MaxTokens = &maxTokens
	}
	if params != nil && params.Temperature != nil {
		temperature := *params.Temperature
		req.Options.Temperature = &temperature
	}

	last := lastUserIndex(messages)
	if last < 0 {
		return req
	}
	current := llmprovider.ExtractText(messages[last].Content)

	switch strategy {
	case HistoryAsTurns:
		req.Prompt = current
		req.PriorTurns = buildPriorTurns(messages, last)
	default:
		req.Prompt = RenderHistoryPrompt(historyTurns(messages[:last]), current)
	}

	return req
}

// lastUserIndex returns the index of the last user message, or -1.
func lastUserIndex(messages []llmprovider.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llmprovider.RoleUser {
			return i
		}
	}
	return -1
}

// historyTurns flattens user and assistant messages to text turns.
// Turns without text are dropped.
func historyTurns(messages []llmprovider.Message) []HistoryTurn {
	turns := make([]HistoryTurn, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != llmprovider.RoleUser && msg.Role != llmprovider.RoleAssistant {
			continue
		}
		text := llmprovider.ExtractText(msg.Content)
		if text == "" {
			continue
		}
		turns = append(turns, HistoryTurn{Role: msg.Role, Content: text})
	}
	return turns
}

// RenderHistoryPrompt wraps prior turns and the current message in delimited
// sections. Without prior turns the current text is returned unchanged.
//
// The history section holds a JSON array of HistoryTurn. encoding/json escapes
// '<' and '>', so the delimiters never occur inside it.
func RenderHistoryPrompt(history []HistoryTurn, current string) string {
	if len(history) == 0 {
		return current
	}

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		// Unreachable: HistoryTurn holds only strings.
		return current
	}

	var sb strings.Builder
	sb.WriteString(historyOpenTag)
	sb.WriteByte('\n')
	sb.Write(data)
	sb.WriteByte('\n')
	sb.WriteString(historyCloseTag)
	sb.WriteString("\n\n")
	sb.WriteString(currentOpenTag)
	sb.WriteByte('\n')
	sb.WriteString(current)
	sb.WriteByte('\n')
	sb.WriteString(currentCloseTag)
	return sb.String()
}

// ParseHistoryPrompt recovers the prior turns and current message from a
// prompt produced by RenderHistoryPrompt. A prompt without a history section
// is returned as the current message with no history.
func ParseHistoryPrompt(prompt string) ([]HistoryTurn, string, error) {
	if !strings.HasPrefix(prompt, historyOpenTag+"\n") {
		return nil, prompt, nil
	}

	rest := prompt[len(historyOpenTag)+1:]
	end := strings.Index(rest, "\n"+historyCloseTag)
	if end < 0 {
		return nil, "", fmt.Errorf("history section not closed")
	}

	var history []HistoryTurn
	if err := json.Unmarshal([]byte(rest[:end]), &history); err != nil {
		return nil, "", fmt.Errorf("decode history section: %w", err)
	}

	rest = rest[end+1+len(historyCloseTag):]
	start := strings.Index(rest, currentOpenTag+"\n")
	if start < 0 {
		return nil, "", fmt.Errorf("current message section missing")
	}
	rest = rest[start+len(currentOpenTag)+1:]

	stop := strings.LastIndex(rest, "\n"+currentCloseTag)
	if stop < 0 {
		return nil, "", fmt.Errorf("current message section not closed")
	}

	return history, rest[:stop], nil
}

// buildPriorTurns converts every message except the one at skip into
// Anthropic message params. System and tool roles are skipped, as are
// messages left without any convertible block.
func buildPriorTurns(messages []llmprovider.Message, skip int) []anthropic.MessageParam {
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for i, msg := range messages {
		if i == skip {
			continue
		}

		blocks := turnBlocks(msg.Content)
		if len(blocks) == 0 {
			continue
		}

		switch msg.Role {
		case llmprovider.RoleUser:
			turns = append(turns, anthropic.NewUserMessage(blocks...))
		case llmprovider.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(blocks...))
		}
	}
	if len(turns) == 0 {
		return nil
	}
	return turns
}

// turnBlocks converts a message content field into Anthropic content blocks,
// keeping text, tool_use and tool_result blocks. Malformed blocks are skipped.
func turnBlocks(content interface{}) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	add := func(block anthropic.ContentBlockParamUnion, ok bool) {
		if ok {
			blocks = append(blocks, block)
		}
	}

	switch c := content.(type) {
	case string:
		if c != "" {
			blocks = append(blocks, anthropic.NewTextBlock(c))
		}
	case []*llmprovider.Block:
		for _, b := range c {
			add(blockParam(b))
		}
	case []llmprovider.Block:
		for i := range c {
			add(blockParam(&c[i]))
		}
	case []llmprovider.ContentItem:
		for _, item := range c {
			add(itemParam(item))
		}
	case []map[string]interface{}:
		for _, m := range c {
			add(mapParam(m))
		}
	case []interface{}:
		for _, elem := range c {
			switch e := elem.(type) {
			case map[string]interface{}:
				add(mapParam(e))
			case *llmprovider.Block:
				add(blockParam(e))
			case llmprovider.Block:
				add(blockParam(&e))
			case llmprovider.ContentItem:
				add(itemParam(e))
			}
		}
	}
	return blocks
}

func blockParam(b *llmprovider.Block) (anthropic.ContentBlockParamUnion, bool) {
	if b == nil {
		return anthropic.ContentBlockParamUnion{}, false
	}

	switch b.BlockType {
	case llmprovider.BlockTypeText:
		if b.TextContent == nil || *b.TextContent == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		return anthropic.NewTextBlock(*b.TextContent), true

	case llmprovider.BlockTypeToolUse:
		id, _ := b.GetToolUseID()
		name, _ := b.GetToolName()
		if id == "" || name == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		input, ok := b.Content["input"]
		if !ok || input == nil {
			input = map[string]interface{}{}
		}
		return anthropic.NewToolUseBlock(id, input, name), true

	case llmprovider.BlockTypeToolResult:
		id, _ := b.GetToolUseID()
		if id == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		isError, _ := b.Content["is_error"].(bool)
		var result string
		if b.TextContent != nil {
			result = *b.TextContent
		} else {
			result = llmprovider.ExtractText(b.Content["content"])
		}
		return anthropic.NewToolResultBlock(id, result, isError), true
	}

	return anthropic.ContentBlockParamUnion{}, false
}

func itemParam(item llmprovider.ContentItem) (anthropic.ContentBlockParamUnion, bool) {
	switch item.Type {
	case llmprovider.ContentTypeText:
		if item.Text == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		return anthropic.NewTextBlock(item.Text), true
	case llmprovider.ContentTypeToolCall:
		if item.ID == "" || item.Name == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		var args interface{} = item.Arguments
		if item.Arguments == nil {
			args = map[string]interface{}{}
		}
		return anthropic.NewToolUseBlock(item.ID, args, item.Name), true
	}
	return anthropic.ContentBlockParamUnion{}, false
}

// mapParam converts a decoded JSON block. Both the Anthropic wire names
// (tool_use, tool_result) and the host's toolCall item are accepted.
func mapParam(m map[string]interface{}) (anthropic.ContentBlockParamUnion, bool) {
	blockType, _ := m["type"].(string)

	switch blockType {
	case llmprovider.BlockTypeText:
		text, _ := m["text"].(string)
		if text == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		return anthropic.NewTextBlock(text), true

	case llmprovider.BlockTypeToolUse, llmprovider.ContentTypeToolCall:
		id, _ := m["id"].(string)
		name, _ := m["name"].(string)
		if id == "" || name == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		input, ok := m["input"]
		if !ok {
			input = m["arguments"]
		}
		if input == nil {
			input = map[string]interface{}{}
		}
		return anthropic.NewToolUseBlock(id, input, name), true

	case llmprovider.BlockTypeToolResult:
		id, _ := m["tool_use_id"].(string)
		if id == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		isError, _ := m["is_error"].(bool)
		return anthropic.NewToolResultBlock(id, llmprovider.ExtractText(m["content"]), isError), true
	}

	return anthropic.ContentBlockParamUnion{}, false
}
