package llmprovider

import "fmt"

// Collect drains an event stream and returns the final assistant message.
// It is the blocking counterpart of Provider.Stream.
//
// Returns the message from the done event, or the message from the error
// event together with its error. A stream that closes without a terminal
// event yields ErrIncompleteStream.
func Collect(events <-chan Event) (*AssistantMessage, error) {
	for event := range events {
		switch event.Type {
		case EventDone:
			return event.Partial, nil
		case EventError:
			err := event.Err
			if err == nil && event.Partial != nil {
				err = fmt.Errorf("%w: %s", ErrUpstreamFailure, event.Partial.ErrorMessage)
			} else if err == nil {
				err = ErrUpstreamFailure
			}
			return event.Partial, err
		}
	}
	return nil, ErrIncompleteStream
}
