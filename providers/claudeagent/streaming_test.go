package claudeagent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haowjy/meridian-agent-go"
)

const (
	helloAssistant = `{"type":"assistant","message":{"role":"assistant","model":"claude-sonnet-4-5","content":[{"type":"text","text":"Hello, world!"}]}}`
	helloResult    = `{"type":"result","subtype":"success","usage":{"input_tokens":10,"output_tokens":5}}`
)

func TestStream_HelloWorld(t *testing.T) {
	p := newTestProvider(t, WithQuery(StaticQuery(
		mustParse(t, helloAssistant),
		mustParse(t, helloResult),
	)))

	events := streamAll(t, p, userContext("Say hello"))

	require.Equal(t, []llmprovider.EventType{
		llmprovider.EventStart,
		llmprovider.EventTextStart,
		llmprovider.EventTextDelta,
		llmprovider.EventTextEnd,
		llmprovider.EventDone,
	}, eventTypes(events))

	assert.Empty(t, events[0].Partial.Content)
	assert.True(t, events[0].Partial.Usage.IsZero())

	assert.Equal(t, 0, events[1].ContentIndex)
	assert.Empty(t, events[1].Partial.Content)
	assert.Equal(t, "Hello, world!", events[2].Delta)
	assert.Equal(t, "Hello, world!", events[3].Content)
	assert.Equal(t, []llmprovider.ContentItem{llmprovider.TextItem("Hello, world!")}, events[3].Partial.Content)

	done := events[4]
	assert.Equal(t, llmprovider.StopReasonStop, done.Reason)
	assert.Equal(t, llmprovider.StopReasonStop, done.Partial.StopReason)
	assert.Equal(t, 10, done.Partial.Usage.Input)
	assert.Equal(t, 5, done.Partial.Usage.Output)
	assert.Equal(t, 15, done.Partial.Usage.TotalTokens)
	assert.Equal(t, "Hello, world!", done.Partial.Text())
	assert.Equal(t, llmprovider.ProviderClaudeAgent, done.Partial.Provider)
	assert.Equal(t, "claude-sonnet-4-5", done.Partial.Model)
	assert.Equal(t, llmprovider.RoleAssistant, done.Partial.Role)
	assert.Equal(t, fixedClock(), done.Partial.Timestamp)
}

func TestStream_UsageAndCost(t *testing.T) {
	result := `{"type":"result","subtype":"success","total_cost_usd":0.5,` +
		`"usage":{"input_tokens":1000000,"output_tokens":1000000,"cache_read_input_tokens":7,"cache_creation_input_tokens":9}}`

	t.Run("reported total cost wins", func(t *testing.T) {
		p := newTestProvider(t, WithQuery(StaticQuery(mustParse(t, result))))
		done := streamAll(t, p, userContext("hi"))[1]

		require.Equal(t, llmprovider.EventDone, done.Type)
		usage := done.Partial.Usage
		assert.Equal(t, 1000000, usage.Input)
		assert.Equal(t, 1000000, usage.Output)
		assert.Equal(t, 7, usage.CacheRead)
		assert.Equal(t, 9, usage.CacheWrite)
		assert.Equal(t, 2000016, usage.TotalTokens)
		assert.InDelta(t, 3.0, usage.Cost.Input, 1e-9)
		assert.InDelta(t, 15.0, usage.Cost.Output, 1e-9)
		assert.InDelta(t, 0.5, usage.Cost.Total, 1e-9)
	})

	t.Run("computed total without reported cost", func(t *testing.T) {
		noCost := strings.Replace(result, `"total_cost_usd":0.5,`, "", 1)
		p := newTestProvider(t, WithQuery(StaticQuery(mustParse(t, noCost))))
		done := streamAll(t, p, userContext("hi"))[1]

		cost := done.Partial.Usage.Cost
		assert.InDelta(t, cost.Input+cost.Output+cost.CacheRead+cost.CacheWrite, cost.Total, 1e-9)
		assert.Greater(t, cost.Total, 18.0)
	})

	t.Run("first result is terminal", func(t *testing.T) {
		p := newTestProvider(t, WithQuery(StaticQuery(
			mustParse(t, helloResult),
			mustParse(t, result),
		)))
		events := streamAll(t, p, userContext("hi"))

		require.Len(t, events, 2)
		assert.Equal(t, 10, events[1].Partial.Usage.Input)
	})

	t.Run("assistant usage is ignored", func(t *testing.T) {
		assistant := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"x"}],` +
			`"usage":{"input_tokens":99,"output_tokens":99}}}`
		p := newTestProvider(t, WithQuery(StaticQuery(
			mustParse(t, assistant),
			mustParse(t, `{"type":"result","subtype":"success"}`),
		)))
		events := streamAll(t, p, userContext("hi"))

		done := events[len(events)-1]
		require.Equal(t, llmprovider.EventDone, done.Type)
		assert.True(t, done.Partial.Usage.IsZero())
	})
}

func TestStream_InertMessagesIgnored(t *testing.T) {
	p := newTestProvider(t, WithQuery(StaticQuery(
		mustParse(t, `{"type":"system","subtype":"init","session_id":"s"}`),
		mustParse(t, `{"type":"user","message":{"role":"user","content":"echo"}}`),
		mustParse(t, `{"type":"stream_event","event":{"type":"message_start"}}`),
		mustParse(t, `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"ok"}]}}`),
		mustParse(t, `{"type":"result","subtype":"success"}`),
	)))

	events := streamAll(t, p, userContext("hi"))

	assert.Equal(t, []llmprovider.EventType{
		llmprovider.EventStart,
		llmprovider.EventTextStart,
		llmprovider.EventTextDelta,
		llmprovider.EventTextEnd,
		llmprovider.EventDone,
	}, eventTypes(events))

	done := events[4]
	assert.True(t, done.Partial.Usage.IsZero())
	assert.Equal(t, llmprovider.StopReasonStop, done.Reason)
}

func TestStream_DeltasConcatenateText(t *testing.T) {
	p := newTestProvider(t, WithQuery(StaticQuery(
		mustParse(t, `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"one "},{"type":"text","text":"two "}]}}`),
		mustParse(t, `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":""},{"type":"text","text":"three"}]}}`),
		mustParse(t, helloResult),
	)))

	events := streamAll(t, p, userContext("count"))

	var deltas strings.Builder
	for _, e := range events {
		if e.Type == llmprovider.EventTextDelta {
			deltas.WriteString(e.Delta)
		}
	}
	assert.Equal(t, "one two three", deltas.String())
	assert.Equal(t, "one two three", events[len(events)-1].Partial.Text())
	assert.Len(t, events[len(events)-1].Partial.Content, 4)
}

func TestStream_IndicesAndSnapshots(t *testing.T) {
	p := newTestProvider(t,
		WithToolPolicy(llmprovider.ExecutionSideClient),
		WithQuery(StaticQuery(
			mustParse(t, `{"type":"assistant","message":{"role":"assistant","content":[`+
				`{"type":"text","text":"a"},`+
				`{"type":"tool_use","id":"t1","name":"Read","input":{}},`+
				`{"type":"tool_result","tool_use_id":"t1","content":"x"},`+
				`{"type":"thinking","thinking":"..."},`+
				`{"type":"text","text":"b"}]}}`),
			mustParse(t, `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"c"}]}}`),
			mustParse(t, helloResult),
		)))

	events := streamAll(t, p, userContext("go"))

	// Every block-scoped family gets the next index exactly once.
	var starts []int
	for _, e := range events {
		if e.Type == llmprovider.EventTextStart || e.Type == llmprovider.EventToolCallStart {
			starts = append(starts, e.ContentIndex)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3}, starts)

	// Earlier snapshots never grow after they were sent.
	lengths := make([]int, len(events))
	for i, e := range events {
		lengths[i] = len(e.Partial.Content)
	}
	for i, e := range events {
		assert.Len(t, e.Partial.Content, lengths[i], "event %d (%s)", i, e.Type)
		if i > 0 && !e.IsTerminal() {
			assert.GreaterOrEqual(t, lengths[i], lengths[i-1])
		}
	}
	assert.Equal(t, 4, lengths[len(lengths)-1])
}

func TestStream_ToolPolicy(t *testing.T) {
	toolTurn := `{"type":"assistant","message":{"role":"assistant","content":[` +
		`{"type":"text","text":"Checking."},` +
		`{"type":"tool_use","id":"toolu_9","name":"Bash","input":{"command":"ls"}}]}}`
	toolResult := `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_9","content":"a.txt"}]}}`
	result := `{"type":"result","subtype":"success","stop_reason":"tool_use"}`

	t.Run("server side suppresses tool calls", func(t *testing.T) {
		p := newTestProvider(t, WithQuery(StaticQuery(
			mustParse(t, toolTurn), mustParse(t, toolResult), mustParse(t, result),
		)))
		assert.Equal(t, llmprovider.ExecutionSideServer, p.ToolPolicy())

		events := streamAll(t, p, userContext("list files"))

		for _, e := range events {
			assert.NotEqual(t, llmprovider.EventToolCallStart, e.Type)
			assert.NotEqual(t, llmprovider.EventToolCallEnd, e.Type)
		}
		done := events[len(events)-1]
		require.Equal(t, llmprovider.EventDone, done.Type)
		assert.Equal(t, llmprovider.StopReasonStop, done.Reason)
		assert.Empty(t, done.Partial.ToolCalls())
	})

	t.Run("client side forwards tool calls", func(t *testing.T) {
		p := newTestProvider(t,
			WithToolPolicy(llmprovider.ExecutionSideClient),
			WithQuery(StaticQuery(mustParse(t, toolTurn), mustParse(t, toolResult), mustParse(t, result))),
		)

		events := streamAll(t, p, userContext("list files"))

		require.Equal(t, []llmprovider.EventType{
			llmprovider.EventStart,
			llmprovider.EventTextStart,
			llmprovider.EventTextDelta,
			llmprovider.EventTextEnd,
			llmprovider.EventToolCallStart,
			llmprovider.EventToolCallEnd,
			llmprovider.EventDone,
		}, eventTypes(events))

		end := events[5]
		assert.Equal(t, 1, end.ContentIndex)
		require.NotNil(t, end.ToolCall)
		assert.Equal(t, "toolu_9", end.ToolCall.ID)
		assert.Equal(t, "Bash", end.ToolCall.Name)
		assert.Equal(t, map[string]interface{}{"command": "ls"}, end.ToolCall.Arguments)

		done := events[6]
		assert.Equal(t, llmprovider.StopReasonToolUse, done.Reason)
		assert.Len(t, done.Partial.ToolCalls(), 1)
	})

	t.Run("missing id and input", func(t *testing.T) {
		p := newTestProvider(t,
			WithToolPolicy(llmprovider.ExecutionSideClient),
			WithQuery(StaticQuery(
				mustParse(t, `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","name":"Glob"}]}}`),
				mustParse(t, result),
			)),
		)

		events := streamAll(t, p, userContext("x"))
		require.Equal(t, llmprovider.EventToolCallEnd, events[2].Type)
		call := events[2].ToolCall
		assert.True(t, strings.HasPrefix(call.ID, "toolu_"))
		assert.Equal(t, map[string]interface{}{}, call.Arguments)
	})
}

func TestStream_StopReasonMapping(t *testing.T) {
	tests := []struct {
		name       string
		stopReason string
		policy     llmprovider.ExecutionSide
		want       llmprovider.StopReason
	}{
		{"absent", "", llmprovider.ExecutionSideServer, llmprovider.StopReasonStop},
		{"end_turn", `"end_turn"`, llmprovider.ExecutionSideServer, llmprovider.StopReasonStop},
		{"max_tokens", `"max_tokens"`, llmprovider.ExecutionSideServer, llmprovider.StopReasonLength},
		{"max_tokens client", `"max_tokens"`, llmprovider.ExecutionSideClient, llmprovider.StopReasonLength},
		{"tool_use server", `"tool_use"`, llmprovider.ExecutionSideServer, llmprovider.StopReasonStop},
		{"tool_use client", `"tool_use"`, llmprovider.ExecutionSideClient, llmprovider.StopReasonToolUse},
		{"stop_sequence", `"stop_sequence"`, llmprovider.ExecutionSideClient, llmprovider.StopReasonStop},
		{"unknown", `"refusal"`, llmprovider.ExecutionSideServer, llmprovider.StopReasonStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := `{"type":"result","subtype":"success"}`
			if tt.stopReason != "" {
				line = `{"type":"result","subtype":"success","stop_reason":` + tt.stopReason + `}`
			}
			p := newTestProvider(t, WithToolPolicy(tt.policy), WithQuery(StaticQuery(mustParse(t, line))))

			events := streamAll(t, p, userContext("hi"))
			require.Len(t, events, 2)
			assert.Equal(t, tt.want, events[1].Reason)
		})
	}
}

func TestStream_ErrorResultKeepsDone(t *testing.T) {
	p := newTestProvider(t, WithQuery(StaticQuery(
		mustParse(t, `{"type":"result","subtype":"error_max_turns","is_error":true,"result":"Reached max turns"}`),
	)))

	events := streamAll(t, p, userContext("hi"))
	require.Len(t, events, 2)
	assert.Equal(t, llmprovider.EventDone, events[1].Type)
	assert.Equal(t, "Reached max turns", events[1].Partial.ErrorMessage)
}

func TestStream_DependencyUnavailable(t *testing.T) {
	loadErr := errors.New("claude: executable not found")
	result := mustParse(t, helloResult)
	var calls atomic.Int32
	var queried atomic.Bool
	loader := func() (QueryFunc, error) {
		if calls.Add(1) == 1 {
			return nil, loadErr
		}
		return func(ctx context.Context, req *Request) (<-chan Envelope, error) {
			queried.Store(true)
			return StaticQuery(result)(ctx, req)
		}, nil
	}
	p := newTestProvider(t, WithLoader(loader))

	events := streamAll(t, p, userContext("hi"))

	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, llmprovider.EventError, e.Type)
	assert.True(t, llmprovider.IsDependencyUnavailable(e.Err))
	assert.ErrorIs(t, e.Err, loadErr)
	assert.Equal(t, llmprovider.StopReasonError, e.Partial.StopReason)
	assert.Contains(t, e.Partial.ErrorMessage, "executable not found")
	require.Len(t, e.Partial.Content, 1)
	assert.Equal(t, e.Partial.ErrorMessage, e.Partial.Content[0].Text)
	assert.False(t, queried.Load())

	// Failed loads are not cached; successful ones are.
	events = streamAll(t, p, userContext("hi"))
	assert.Equal(t, llmprovider.EventDone, events[len(events)-1].Type)
	streamAll(t, p, userContext("hi"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestStream_NoQueryConfigured(t *testing.T) {
	p := newTestProvider(t)

	events := streamAll(t, p, userContext("hi"))
	require.Len(t, events, 1)
	assert.True(t, llmprovider.IsDependencyUnavailable(events[0].Err))
}

func TestStream_UpstreamFailure(t *testing.T) {
	upstreamErr := errors.New("worker exited with status 1: invalid api key")

	t.Run("mid-stream", func(t *testing.T) {
		hello := mustParse(t, helloAssistant)
		query := func(ctx context.Context, _ *Request) (<-chan Envelope, error) {
			ch := make(chan Envelope, 2)
			ch <- Envelope{Message: hello}
			ch <- Envelope{Err: upstreamErr}
			close(ch)
			return ch, nil
		}
		p := newTestProvider(t, WithQuery(query))

		events := streamAll(t, p, userContext("hi"))

		require.Equal(t, []llmprovider.EventType{
			llmprovider.EventStart,
			llmprovider.EventTextStart,
			llmprovider.EventTextDelta,
			llmprovider.EventTextEnd,
			llmprovider.EventError,
		}, eventTypes(events))

		e := events[4]
		assert.True(t, llmprovider.IsUpstreamFailure(e.Err))
		assert.ErrorIs(t, e.Err, upstreamErr)
		assert.Equal(t, upstreamErr.Error(), e.Partial.ErrorMessage)
		assert.Equal(t, []llmprovider.ContentItem{llmprovider.TextItem(upstreamErr.Error())}, e.Partial.Content)
	})

	t.Run("query fails to start", func(t *testing.T) {
		query := func(context.Context, *Request) (<-chan Envelope, error) {
			return nil, upstreamErr
		}
		p := newTestProvider(t, WithQuery(query))

		events := streamAll(t, p, userContext("hi"))
		require.Equal(t, []llmprovider.EventType{llmprovider.EventStart, llmprovider.EventError}, eventTypes(events))
		assert.ErrorIs(t, events[1].Err, llmprovider.ErrUpstreamFailure)
	})

	t.Run("ends without result", func(t *testing.T) {
		p := newTestProvider(t, WithQuery(StaticQuery(mustParse(t, helloAssistant))))

		events := streamAll(t, p, userContext("hi"))
		last := events[len(events)-1]
		assert.Equal(t, llmprovider.EventError, last.Type)
		assert.ErrorIs(t, last.Err, llmprovider.ErrIncompleteStream)
		assert.True(t, llmprovider.IsUpstreamFailure(last.Err))
	})
}

func TestStream_DoneIsTerminal(t *testing.T) {
	msgs := []Message{mustParse(t, helloResult), mustParse(t, helloAssistant), mustParse(t, helloResult)}
	var cancelled atomic.Bool
	query := func(ctx context.Context, _ *Request) (<-chan Envelope, error) {
		ch := make(chan Envelope)
		go func() {
			defer close(ch)
			for _, msg := range msgs {
				select {
				case <-ctx.Done():
					cancelled.Store(true)
					return
				case ch <- Envelope{Message: msg}:
				}
			}
		}()
		return ch, nil
	}
	p := newTestProvider(t, WithQuery(query))

	events := streamAll(t, p, userContext("hi"))

	require.Equal(t, []llmprovider.EventType{llmprovider.EventStart, llmprovider.EventDone}, eventTypes(events))
	assert.Eventually(t, cancelled.Load, time.Second, 10*time.Millisecond)
}

func TestStream_ConsumerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan Envelope)
	query := func(context.Context, *Request) (<-chan Envelope, error) {
		return block, nil
	}
	p := newTestProvider(t, WithQuery(query))

	events := p.Stream(ctx, testModel, userContext("hi"), nil)
	first := <-events
	require.Equal(t, llmprovider.EventStart, first.Type)

	cancel()
	rest := collectEvents(t, events)
	for _, e := range rest {
		assert.Equal(t, llmprovider.EventError, e.Type)
		assert.ErrorIs(t, e.Err, context.Canceled)
	}
	assert.LessOrEqual(t, len(rest), 1)
}

func TestStream_Idempotent(t *testing.T) {
	transcript := strings.Join([]string{
		`{"type":"system","subtype":"init","model":"claude-sonnet-4-5"}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"first"},{"type":"tool_use","id":"t1","name":"Read","input":{"p":1}}]}}`,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"x"}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"second"}]}}`,
		`{"type":"result","subtype":"success","stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`,
	}, "\n")

	for _, policy := range []llmprovider.ExecutionSide{llmprovider.ExecutionSideServer, llmprovider.ExecutionSideClient} {
		t.Run(string(policy), func(t *testing.T) {
			// Real clock: timestamps are the only permitted difference.
			p, err := NewProvider(WithToolPolicy(policy), WithQuery(ReplayQuery([]byte(transcript))))
			require.NoError(t, err)

			first := streamAll(t, p, userContext("hi"))
			second := streamAll(t, p, userContext("hi"))

			require.Equal(t, len(first), len(second))
			for i := range first {
				a, b := first[i], second[i]
				a.Partial = withoutTimestamp(a.Partial)
				b.Partial = withoutTimestamp(b.Partial)
				assert.Equal(t, a, b, "event %d", i)
			}
		})
	}
}

func withoutTimestamp(msg *llmprovider.AssistantMessage) *llmprovider.AssistantMessage {
	if msg == nil {
		return nil
	}
	c := *msg
	c.Timestamp = time.Time{}
	return &c
}

func TestStream_IndependentInvocations(t *testing.T) {
	p := newTestProvider(t, WithQuery(StaticQuery(mustParse(t, helloAssistant), mustParse(t, helloResult))))

	first := streamAll(t, p, userContext("hi"))
	second := streamAll(t, p, userContext("hi"))

	// Each call starts from empty content and index 0.
	assert.Empty(t, second[0].Partial.Content)
	assert.Equal(t, 0, second[1].ContentIndex)
	assert.Len(t, first[len(first)-1].Partial.Content, 1)
	assert.Len(t, second[len(second)-1].Partial.Content, 1)
}

func TestStream_SendsBuiltRequest(t *testing.T) {
	var captured *Request
	p := newTestProvider(t,
		WithPermissionMode(PermissionModeAcceptEdits),
		WithPromptStrategy(HistoryAsTurns),
		WithQuery(capturingQuery(&captured, mustParse(t, helloResult))),
	)

	streamAll(t, p, userContext("a", "b", "c"))

	require.NotNil(t, captured)
	assert.Equal(t, "c", captured.Prompt)
	assert.Len(t, captured.PriorTurns, 2)
	assert.Equal(t, PermissionModeAcceptEdits, captured.Options.PermissionMode)
	assert.Equal(t, "claude-sonnet-4-5", captured.Options.Model)
}

func TestStream_Collect(t *testing.T) {
	p := newTestProvider(t, WithQuery(StaticQuery(mustParse(t, helloAssistant), mustParse(t, helloResult))))

	msg, err := llmprovider.Collect(p.Stream(context.Background(), testModel, userContext("hi"), nil))
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", msg.Text())
}
