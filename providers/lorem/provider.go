package lorem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	loremgen "github.com/bozaro/golorem"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haowjy/meridian-agent-go"
	"github.com/haowjy/meridian-agent-go/providers/claudeagent"
)

const (
	defaultMaxTokens = 4096
	wordsPerBlock    = 20
)

// Worker is a mock Claude Agent worker that answers with lorem ipsum text.
// Used for testing and development without an installed CLI or API keys.
//
// Model names select the behavior:
//   - lorem-*: one assistant message with a text block
//   - *tools*: a tool round trip (tool_use, tool_result) before the final text
//   - *cutoff* / *small*: text cut at max_tokens, stop reason max_tokens
//   - *slow* / *fast* / *medium*: pacing between messages
type Worker struct {
	mu        sync.Mutex
	generator *loremgen.Lorem
	toolIndex int

	delay    time.Duration
	delaySet bool
	logger   zerolog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithDelay fixes the pause between messages, overriding the model-based pacing.
func WithDelay(d time.Duration) Option {
	return func(w *Worker) {
		w.delay = d
		w.delaySet = true
	}
}

// WithLogger sets the logger (default: disabled).
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// NewWorker creates a new lorem ipsum worker.
func NewWorker(opts ...Option) *Worker {
	w := &Worker{
		generator: loremgen.New(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewQuery returns the query function of a new worker.
func NewQuery(opts ...Option) claudeagent.QueryFunc {
	return NewWorker(opts...).Query
}

// Name returns the provider identifier.
func (w *Worker) Name() llmprovider.ProviderID {
	return llmprovider.ProviderLorem
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-tools"
func (w *Worker) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// Query implements claudeagent.QueryFunc.
func (w *Worker) Query(ctx context.Context, req *claudeagent.Request) (<-chan claudeagent.Envelope, error) {
	// Validate model
	if !w.SupportsModel(req.Options.Model) {
		return nil, &llmprovider.ModelError{
			Model:    req.Options.Model,
			Provider: w.Name().String(),
			Reason:   "model not supported by Lorem worker (must start with 'lorem-')",
			Err:      llmprovider.ErrInvalidModel,
		}
	}

	msgs, err := w.script(req)
	if err != nil {
		return nil, err
	}

	delay := w.delay
	if !w.delaySet {
		delay = getStreamDelay(req.Options.Model)
	}

	out := make(chan claudeagent.Envelope, 1)
	go func() {
		defer close(out)

		for i, msg := range msgs {
			if i > 0 && delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			select {
			case <-ctx.Done():
				w.logger.Debug().Int("sent", i).Msg("lorem query cancelled")
				return
			case out <- claudeagent.Envelope{Message: msg}:
			}
		}
	}()

	return out, nil
}

// script generates the full message sequence for one query.
func (w *Worker) script(req *claudeagent.Request) ([]claudeagent.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	model := req.Options.Model
	sessionID := uuid.NewString()
	maxTokens := defaultMaxTokens
	if req.Options.MaxTokens != nil {
		maxTokens = *req.Options.MaxTokens
	}

	msgs := []claudeagent.Message{
		claudeagent.SystemMessage{
			Type:           claudeagent.MessageTypeSystem,
			Subtype:        "init",
			SessionID:      sessionID,
			Model:          model,
			PermissionMode: string(req.Options.PermissionMode),
		},
	}

	var result strings.Builder
	outputTokens := 0
	numTurns := 1
	stopReason := string(anthropic.StopReasonEndTurn)

	if isToolModel(model) && maxTokens > wordsPerBlock {
		tool := getToolTemplates()[w.toolIndex%len(getToolTemplates())]
		w.toolIndex++

		input, err := json.Marshal(tool.input)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tool input: %w", err)
		}
		toolID := fmt.Sprintf("toolu_%s_%d", tool.name, w.toolIndex)

		intro := w.generateTextWords(wordsPerBlock / 2)
		msgs = append(msgs, assistantMessage(sessionID, model,
			claudeagent.ContentBlock{Type: claudeagent.ContentBlockTypeText, Text: intro},
			claudeagent.ContentBlock{Type: claudeagent.ContentBlockTypeToolUse, ID: toolID, Name: tool.name, Input: input},
		))

		toolOutput, err := json.Marshal(w.generator.Sentence(5, 15))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tool result: %w", err)
		}
		msgs = append(msgs, toolResultMessage(sessionID, toolID, toolOutput))

		result.WriteString(intro)
		outputTokens += countWords(intro) + len(input)/4
		maxTokens -= outputTokens
		numTurns++
	}

	targetWords := wordsPerBlock
	if isCutoffModel(model) {
		// Cutoff models generate 50% more to simulate hitting max_tokens
		targetWords = maxTokens + maxTokens/2
	}
	words := strings.Fields(w.generateTextWords(targetWords))
	if len(words) > targetWords {
		words = words[:targetWords]
	}
	if maxTokens < len(words) {
		if maxTokens < 0 {
			maxTokens = 0
		}
		words = words[:maxTokens]
		stopReason = string(anthropic.StopReasonMaxTokens)
	}
	text := strings.Join(words, " ")

	msgs = append(msgs, assistantMessage(sessionID, model,
		claudeagent.ContentBlock{Type: claudeagent.ContentBlockTypeText, Text: text},
	))
	result.WriteString(text)
	outputTokens += len(words)

	totalCost := 0.0
	msgs = append(msgs, claudeagent.ResultMessage{
		Type:       claudeagent.MessageTypeResult,
		Subtype:    "success",
		SessionID:  sessionID,
		Result:     result.String(),
		StopReason: &stopReason,
		Usage: &anthropic.Usage{
			InputTokens:  int64(estimateTokens(req)),
			OutputTokens: int64(outputTokens),
		},
		TotalCostUSD: &totalCost,
		NumTurns:     numTurns,
	})

	w.logger.Debug().
		Str("model", model).
		Int("messages", len(msgs)).
		Int("output_tokens", outputTokens).
		Str("stop_reason", stopReason).
		Msg("lorem script generated")

	return msgs, nil
}

func assistantMessage(sessionID, model string, blocks ...claudeagent.ContentBlock) claudeagent.AssistantMessage {
	return claudeagent.AssistantMessage{
		Type:      claudeagent.MessageTypeAssistant,
		SessionID: sessionID,
		UUID:      uuid.NewString(),
		Message: claudeagent.MessageContent{
			ID:      "msg_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			Model:   model,
			Role:    "assistant",
			Content: blocks,
		},
	}
}

// toolResultMessage builds the user echo the worker sends after running a tool.
// The translator sees it as an inert message.
func toolResultMessage(sessionID, toolID string, content json.RawMessage) claudeagent.OtherMessage {
	raw, _ := json.Marshal(map[string]interface{}{
		"type":       "user",
		"session_id": sessionID,
		"message": map[string]interface{}{
			"role": "user",
			"content": []interface{}{
				map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": toolID,
					"content":     content,
				},
			},
		},
	})
	return claudeagent.OtherMessage{Type: claudeagent.MessageTypeUser, Raw: raw}
}

// getStreamDelay returns the pause between messages based on the model name.
// - lorem-slow: 500ms
// - lorem-fast: 33ms
// - lorem-medium: 100ms
// - default: 100ms
func getStreamDelay(model string) time.Duration {
	if strings.Contains(model, "slow") {
		return 500 * time.Millisecond
	}
	if strings.Contains(model, "fast") {
		return 33 * time.Millisecond
	}
	if strings.Contains(model, "medium") {
		return 100 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// isCutoffModel returns true if the model should simulate max_tokens cutoff.
func isCutoffModel(model string) bool {
	return strings.Contains(model, "cutoff") || strings.Contains(model, "small")
}

// isToolModel returns true if the model should run a tool before answering.
func isToolModel(model string) bool {
	return strings.Contains(model, "tools")
}

// toolTemplate defines a mock tool call template
type toolTemplate struct {
	name  string
	input map[string]interface{}
}

// getToolTemplates returns the rotating tool templates
func getToolTemplates() []toolTemplate {
	return []toolTemplate{
		{
			name: "search_files",
			input: map[string]interface{}{
				"query":       "lorem ipsum",
				"max_results": 10,
				"file_types":  []string{"txt", "md"},
			},
		},
		{
			name: "analyze_character",
			input: map[string]interface{}{
				"name":   "dolor",
				"traits": []string{"amet", "consectetur", "adipiscing"},
				"depth":  "detailed",
			},
		},
		{
			name: "get_outline",
			input: map[string]interface{}{
				"document_id":      "doc-lorem-123",
				"include_chapters": true,
				"max_depth":        3,
			},
		},
	}
}

// generateTextWords generates lorem ipsum text with at least targetWords words.
func (w *Worker) generateTextWords(targetWords int) string {
	var sb strings.Builder
	wordCount := 0

	for wordCount < targetWords {
		// Generate sentence with 5-15 words
		sentence := w.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")

		wordCount += countWords(sentence)
	}

	return strings.TrimSpace(sb.String())
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

// estimateTokens estimates the input token count of a request.
// Uses word count as a rough approximation.
func estimateTokens(req *claudeagent.Request) int {
	total := countWords(req.Prompt)
	if req.Options.SystemPrompt != nil {
		total += countWords(*req.Options.SystemPrompt)
	}
	return total
}
