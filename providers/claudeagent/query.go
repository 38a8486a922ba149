package claudeagent

import (
	"bytes"
	"context"

	"github.com/anthropics/anthropic-sdk-go"
)

// PermissionMode controls how the upstream worker handles tool permission prompts.
type PermissionMode string

const (
	PermissionModeDefault           PermissionMode = "default"
	PermissionModeAcceptEdits       PermissionMode = "acceptEdits"
	PermissionModeBypassPermissions PermissionMode = "bypassPermissions"
	PermissionModePlan              PermissionMode = "plan"
)

// IsValid returns true if the permission mode is a known value
func (m PermissionMode) IsValid() bool {
	switch m {
	case PermissionModeDefault, PermissionModeAcceptEdits, PermissionModeBypassPermissions, PermissionModePlan:
		return true
	default:
		return false
	}
}

// QueryOptions are the per-query settings handed to the upstream worker.
type QueryOptions struct {
	Model          string
	PermissionMode PermissionMode
	SystemPrompt   *string
	MaxTokens      *int
	Temperature    *float64
}

// Request is the outbound request for one query. It is built once per
// Stream call and must not be modified afterwards.
type Request struct {
	// Prompt is the text sent as the user turn
	Prompt string

	// PriorTurns holds earlier conversation turns when the history-as-turns
	// strategy is used (nil otherwise)
	PriorTurns []anthropic.MessageParam

	Options QueryOptions
}

// QueryFunc starts one upstream query and returns its message sequence.
//
// The returned channel must be closed by the implementation when the sequence
// ends; a failure mid-sequence is reported as a final Err envelope. Cancelling
// ctx must stop the query and eventually close the channel.
type QueryFunc func(ctx context.Context, req *Request) (<-chan Envelope, error)

// Loader obtains a QueryFunc, typically by locating an installed worker.
// An error means the upstream capability is unavailable.
type Loader func() (QueryFunc, error)

// ReplayQuery returns a QueryFunc that decodes a recorded NDJSON transcript.
// Every call replays the same messages, independent of the request.
func ReplayQuery(data []byte) QueryFunc {
	transcript := make([]byte, len(data))
	copy(transcript, data)

	return func(ctx context.Context, _ *Request) (<-chan Envelope, error) {
		return Decode(ctx, bytes.NewReader(transcript)), nil
	}
}

// StaticQuery returns a QueryFunc that sends the given messages in order.
func StaticQuery(msgs ...Message) QueryFunc {
	return func(ctx context.Context, _ *Request) (<-chan Envelope, error) {
		out := make(chan Envelope, len(msgs))
		go func() {
			defer close(out)
			for _, msg := range msgs {
				select {
				case <-ctx.Done():
					return
				case out <- Envelope{Message: msg}:
				}
			}
		}()
		return out, nil
	}
}
