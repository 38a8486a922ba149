package claudeagent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haowjy/meridian-agent-go"
)

// apiName identifies this adapter's wire protocol in assistant messages.
const apiName = "claude-agent-stream-json"

// translation is the state of one Stream call. It is created empty for every
// call and owned by the goroutine that runs it.
type translation struct {
	ctx    context.Context
	events chan<- llmprovider.Event
	policy llmprovider.ExecutionSide
	logger zerolog.Logger

	capabilities *llmprovider.CapabilityRegistry
	model        string
	// upstreamModel is the model the worker reported, preferred for pricing
	upstreamModel string
	timestamp     time.Time

	content   []llmprovider.ContentItem
	usage     llmprovider.Usage
	nextIndex int
}

func (p *Provider) newTranslation(ctx context.Context, model llmprovider.Model, events chan<- llmprovider.Event) *translation {
	return &translation{
		ctx:          ctx,
		events:       events,
		policy:       p.policy,
		logger:       p.logger.With().Str("model", model.ID).Logger(),
		capabilities: p.capabilities,
		model:        model.ID,
		timestamp:    p.now(),
		content:      []llmprovider.ContentItem{},
	}
}

// snapshot returns the in-flight assistant message. The content slice is
// capped so later appends never show through an already-sent snapshot.
func (t *translation) snapshot() *llmprovider.AssistantMessage {
	n := len(t.content)
	return &llmprovider.AssistantMessage{
		Role:      llmprovider.RoleAssistant,
		Content:   t.content[:n:n],
		API:       apiName,
		Provider:  llmprovider.ProviderClaudeAgent,
		Model:     t.model,
		Usage:     t.usage,
		Timestamp: t.timestamp,
	}
}

// emit sends an event, giving up if the consumer's context is cancelled.
func (t *translation) emit(event llmprovider.Event) bool {
	select {
	case <-t.ctx.Done():
		return false
	case t.events <- event:
		return true
	}
}

// run drives the query to its terminal event.
func (t *translation) run(query QueryFunc, req *Request) {
	if !t.emit(llmprovider.Event{Type: llmprovider.EventStart, Partial: t.snapshot()}) {
		t.abort()
		return
	}

	// Cancelled on return so the worker stops once a terminal event is sent.
	queryCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()

	upstream, err := query(queryCtx, req)
	if err != nil {
		t.fail(llmprovider.ErrUpstreamFailure, err)
		return
	}

	for {
		select {
		case <-t.ctx.Done():
			t.abort()
			return

		case env, ok := <-upstream:
			if !ok {
				if t.ctx.Err() != nil {
					t.abort()
					return
				}
				t.logger.Warn().Int("blocks", len(t.content)).Msg("upstream ended without a result")
				t.fail(llmprovider.ErrIncompleteStream, nil)
				return
			}
			if env.Err != nil {
				t.fail(llmprovider.ErrUpstreamFailure, env.Err)
				return
			}

			switch msg := env.Message.(type) {
			case AssistantMessage:
				if msg.Message.Model != "" {
					t.upstreamModel = msg.Message.Model
				}
				if !t.assistant(msg) {
					t.abort()
					return
				}
			case ResultMessage:
				t.result(msg)
				return
			case SystemMessage:
				if msg.Model != "" {
					t.upstreamModel = msg.Model
				}
				t.logger.Debug().Str("subtype", msg.Subtype).Str("session_id", msg.SessionID).Msg("ignoring system message")
			default:
				if env.Message != nil {
					t.logger.Debug().Str("type", string(env.Message.MsgType())).Msg("ignoring upstream message")
				}
			}
		}
	}
}

// assistant translates the content blocks of one assistant message.
// Returns false if the consumer went away.
func (t *translation) assistant(msg AssistantMessage) bool {
	for _, block := range msg.Message.Content {
		switch block.Type {
		case ContentBlockTypeText:
			if !t.text(block.Text) {
				return false
			}

		case ContentBlockTypeToolUse:
			if t.policy != llmprovider.ExecutionSideClient {
				t.logger.Debug().Str("tool", block.Name).Str("id", block.ID).Msg("skipping tool_use executed by worker")
				continue
			}
			if !t.toolCall(block) {
				return false
			}

		case ContentBlockTypeToolResult:
			t.logger.Debug().Str("tool_use_id", block.ToolUseID).Msg("skipping tool_result")

		default:
			t.logger.Debug().Str("block_type", string(block.Type)).Msg("skipping content block")
		}
	}
	return true
}

// text emits one whole text block as start, a single delta, and end.
func (t *translation) text(text string) bool {
	index := t.nextIndex
	t.nextIndex++

	if !t.emit(llmprovider.Event{Type: llmprovider.EventTextStart, ContentIndex: index, Partial: t.snapshot()}) {
		return false
	}
	if !t.emit(llmprovider.Event{Type: llmprovider.EventTextDelta, ContentIndex: index, Delta: text, Partial: t.snapshot()}) {
		return false
	}

	t.content = append(t.content, llmprovider.TextItem(text))

	return t.emit(llmprovider.Event{Type: llmprovider.EventTextEnd, ContentIndex: index, Content: text, Partial: t.snapshot()})
}

// toolCall forwards a tool_use block as a toolcall_start/toolcall_end pair.
func (t *translation) toolCall(block ContentBlock) bool {
	index := t.nextIndex
	t.nextIndex++

	id := block.ID
	if id == "" {
		id = "toolu_" + uuid.NewString()
	}

	args := map[string]interface{}{}
	if len(block.Input) > 0 {
		if err := json.Unmarshal(block.Input, &args); err != nil || args == nil {
			t.logger.Warn().Err(err).Str("tool", block.Name).Msg("tool input is not an object")
			args = map[string]interface{}{}
		}
	}

	if !t.emit(llmprovider.Event{Type: llmprovider.EventToolCallStart, ContentIndex: index, Partial: t.snapshot()}) {
		return false
	}

	item := llmprovider.ToolCallItem(id, block.Name, args)
	t.content = append(t.content, item)

	return t.emit(llmprovider.Event{Type: llmprovider.EventToolCallEnd, ContentIndex: index, ToolCall: &item, Partial: t.snapshot()})
}

// result ends the translation with a done event.
func (t *translation) result(msg ResultMessage) {
	if msg.Usage != nil {
		usage := llmprovider.Usage{
			Input:      int(msg.Usage.InputTokens),
			Output:     int(msg.Usage.OutputTokens),
			CacheRead:  int(msg.Usage.CacheReadInputTokens),
			CacheWrite: int(msg.Usage.CacheCreationInputTokens),
		}
		usage.TotalTokens = usage.Input + usage.Output + usage.CacheRead + usage.CacheWrite

		pricingModel := t.upstreamModel
		if pricingModel == "" {
			pricingModel = t.model
		}
		usage.Cost = t.capabilities.CalculateCost(llmprovider.ProviderAnthropic.String(), pricingModel, usage)
		if msg.TotalCostUSD != nil {
			usage.Cost.Total = *msg.TotalCostUSD
		}

		t.usage = usage
	}

	reason := t.stopReason(msg.StopReason)

	final := t.snapshot()
	final.StopReason = reason
	if msg.IsError {
		final.ErrorMessage = msg.Result
		t.logger.Warn().Str("subtype", msg.Subtype).Str("result", msg.Result).Msg("worker reported an error result")
	}

	t.logger.Debug().
		Str("stop_reason", string(reason)).
		Int("input_tokens", t.usage.Input).
		Int("output_tokens", t.usage.Output).
		Int("blocks", len(t.content)).
		Msg("query complete")

	t.emit(llmprovider.Event{Type: llmprovider.EventDone, Reason: reason, Partial: final})
}

// stopReason maps the worker's stop reason onto the host vocabulary.
func (t *translation) stopReason(reason *string) llmprovider.StopReason {
	if reason == nil {
		return llmprovider.StopReasonStop
	}
	switch anthropic.StopReason(*reason) {
	case anthropic.StopReasonMaxTokens:
		return llmprovider.StopReasonLength
	case anthropic.StopReasonToolUse:
		if t.policy == llmprovider.ExecutionSideClient {
			return llmprovider.StopReasonToolUse
		}
		return llmprovider.StopReasonStop
	default:
		return llmprovider.StopReasonStop
	}
}

// fail ends the translation with an error event. The error message holds the
// failure text as its only content; blocks already streamed are not repeated.
func (t *translation) fail(kind error, cause error) {
	select {
	case <-t.ctx.Done():
	case t.events <- t.errorEvent(kind, cause):
	}
}

// abort makes a best-effort attempt to report cancellation by the consumer.
func (t *translation) abort() {
	t.logger.Debug().Err(t.ctx.Err()).Msg("stream cancelled by consumer")
	select {
	case t.events <- t.errorEvent(llmprovider.ErrUpstreamFailure, t.ctx.Err()):
	default:
	}
}

func (t *translation) errorEvent(kind error, cause error) llmprovider.Event {
	err := &llmprovider.QueryError{
		Provider: llmprovider.ProviderClaudeAgent.String(),
		Kind:     kind,
		Cause:    cause,
	}
	text := err.Error()

	msg := t.snapshot()
	msg.Content = []llmprovider.ContentItem{llmprovider.TextItem(text)}
	msg.StopReason = llmprovider.StopReasonError
	msg.ErrorMessage = text

	if kind != llmprovider.ErrDependencyUnavailable {
		t.logger.Error().Err(err).Msg("query failed")
	}

	return llmprovider.Event{
		Type:    llmprovider.EventError,
		Reason:  llmprovider.StopReasonError,
		Partial: msg,
		Err:     err,
	}
}
