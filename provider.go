package llmprovider

import (
	"context"
)

// Provider defines the interface that streaming providers implement.
//
// Types used by this interface:
//   - Model, Context, Message: defined in request.go
//   - RequestParams: defined in params.go
//   - Event: defined in streaming.go
type Provider interface {
	// Stream starts a one-shot generation and returns a channel of events.
	// It never fails synchronously: every failure is delivered as a terminal
	// error event. The channel is closed right after the terminal event.
	//
	// Usage:
	//   for event := range provider.Stream(ctx, model, convo, nil) {
	//     switch event.Type {
	//     case llmprovider.EventTextDelta: print(event.Delta)
	//     case llmprovider.EventError:     handle event.Err
	//     case llmprovider.EventDone:      use event.Partial
	//     }
	//   }
	//
	// params may be nil; it overrides the model's max tokens and the temperature
	// for this call only.
	Stream(ctx context.Context, model Model, convo *Context, params *RequestParams) <-chan Event

	// Name returns the provider identifier
	Name() ProviderID

	// SupportsModel returns true if the provider supports the given model.
	SupportsModel(model string) bool
}
