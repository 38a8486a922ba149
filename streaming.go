package llmprovider

// EventType identifies a downstream streaming event.
type EventType string

// Event type constants. Block-scoped events (text_*, toolcall_*) carry a ContentIndex.
const (
	EventStart         EventType = "start"
	EventTextStart     EventType = "text_start"
	EventTextDelta     EventType = "text_delta"
	EventTextEnd       EventType = "text_end"
	EventToolCallStart EventType = "toolcall_start"
	EventToolCallEnd   EventType = "toolcall_end"
	EventError         EventType = "error"
	EventDone          EventType = "done"
)

// IsTerminal returns true for the event types that end a stream (done, error)
func (t EventType) IsTerminal() bool {
	return t == EventDone || t == EventError
}

// Event represents a single event in a streaming response.
//
// Event order within one stream:
//
//	start → (text_start → text_delta → text_end | toolcall_start → toolcall_end)* → done | error
//
// The channel carrying events is closed right after the terminal event.
type Event struct {
	// Type discriminates the event
	Type EventType

	// ContentIndex is the position of the block this event belongs to.
	// Indices start at 0 and are shared by the text and tool call families.
	ContentIndex int

	// Delta contains the text of a text_delta event
	Delta string

	// Content contains the final text of a text_end event
	Content string

	// ToolCall contains the completed tool call of a toolcall_end event
	ToolCall *ContentItem

	// Partial is a point-in-time snapshot of the assistant message.
	// For done and error events it is the final message.
	// Its Content slice must be treated as read-only.
	Partial *AssistantMessage

	// Reason is the stop reason of done and error events
	Reason StopReason

	// Err contains the classified failure of an error event (nil otherwise)
	Err error
}

// IsTerminal returns true if this event ends the stream
func (e Event) IsTerminal() bool {
	return e.Type.IsTerminal()
}
