package claudeagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haowjy/meridian-agent-go"
)

var testModel = llmprovider.Model{ID: "claude-sonnet-4-5", Provider: llmprovider.ProviderClaudeAgent, MaxTokens: 1024}

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func mustParse(t *testing.T, line string) Message {
	t.Helper()
	msg, err := ParseMessage([]byte(line))
	require.NoError(t, err)
	return msg
}

func userContext(texts ...string) *llmprovider.Context {
	convo := &llmprovider.Context{}
	for i, text := range texts {
		role := llmprovider.RoleUser
		if i%2 == 1 {
			role = llmprovider.RoleAssistant
		}
		convo.Messages = append(convo.Messages, llmprovider.Message{Role: role, Content: text})
	}
	return convo
}

// collectEvents drains a stream, failing the test if it does not close in time.
func collectEvents(t *testing.T, events <-chan llmprovider.Event) []llmprovider.Event {
	t.Helper()
	var out []llmprovider.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-timeout:
			t.Fatalf("stream did not close; got %d events", len(out))
			return out
		}
	}
}

func eventTypes(events []llmprovider.Event) []llmprovider.EventType {
	types := make([]llmprovider.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func newTestProvider(t *testing.T, opts ...Option) *Provider {
	t.Helper()
	p, err := NewProvider(append([]Option{WithClock(fixedClock)}, opts...)...)
	require.NoError(t, err)
	return p
}

func streamAll(t *testing.T, p *Provider, convo *llmprovider.Context) []llmprovider.Event {
	t.Helper()
	return collectEvents(t, p.Stream(context.Background(), testModel, convo, nil))
}

// capturingQuery records the request and replays msgs.
func capturingQuery(captured **Request, msgs ...Message) QueryFunc {
	replay := StaticQuery(msgs...)
	return func(ctx context.Context, req *Request) (<-chan Envelope, error) {
		*captured = req
		return replay(ctx, req)
	}
}
