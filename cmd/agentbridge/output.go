package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/haowjy/meridian-agent-go"
)

// eventJSON is the JSON-lines rendering of one event.
type eventJSON struct {
	Type         llmprovider.EventType         `json:"type"`
	ContentIndex *int                          `json:"contentIndex,omitempty"`
	Delta        string                        `json:"delta,omitempty"`
	Content      string                        `json:"content,omitempty"`
	ToolCall     *llmprovider.ContentItem      `json:"toolCall,omitempty"`
	Reason       llmprovider.StopReason        `json:"reason,omitempty"`
	Error        string                        `json:"error,omitempty"`
	Message      *llmprovider.AssistantMessage `json:"message,omitempty"`
}

func toEventJSON(e llmprovider.Event) eventJSON {
	out := eventJSON{
		Type:     e.Type,
		Delta:    e.Delta,
		Content:  e.Content,
		ToolCall: e.ToolCall,
		Reason:   e.Reason,
	}
	switch e.Type {
	case llmprovider.EventTextStart, llmprovider.EventTextDelta, llmprovider.EventTextEnd,
		llmprovider.EventToolCallStart, llmprovider.EventToolCallEnd:
		index := e.ContentIndex
		out.ContentIndex = &index
	case llmprovider.EventDone, llmprovider.EventError:
		out.Message = e.Partial
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return out
}

// printEvents writes the stream to out and returns the final message.
// Text mode prints deltas as they arrive and a usage summary on errOut.
func printEvents(out, errOut io.Writer, events <-chan llmprovider.Event, asJSON bool) (*llmprovider.AssistantMessage, error) {
	enc := json.NewEncoder(out)

	for event := range events {
		if asJSON {
			if err := enc.Encode(toEventJSON(event)); err != nil {
				return nil, fmt.Errorf("failed to write event: %w", err)
			}
		} else {
			switch event.Type {
			case llmprovider.EventTextDelta:
				fmt.Fprint(out, event.Delta)
			case llmprovider.EventTextEnd:
				fmt.Fprintln(out)
			case llmprovider.EventToolCallEnd:
				args, _ := json.Marshal(event.ToolCall.Arguments)
				fmt.Fprintf(out, "[tool call %s] %s(%s)\n", event.ToolCall.ID, event.ToolCall.Name, args)
			case llmprovider.EventDone:
				u := event.Partial.Usage
				fmt.Fprintf(errOut, "stop=%s input=%d output=%d cache_read=%d cache_write=%d cost=$%.6f\n",
					event.Reason, u.Input, u.Output, u.CacheRead, u.CacheWrite, u.Cost.Total)
			}
		}

		switch event.Type {
		case llmprovider.EventDone:
			return event.Partial, nil
		case llmprovider.EventError:
			if event.Err != nil {
				return event.Partial, event.Err
			}
			return event.Partial, fmt.Errorf("%w: %s", llmprovider.ErrUpstreamFailure, event.Partial.ErrorMessage)
		}
	}
	return nil, llmprovider.ErrIncompleteStream
}
