package claudeagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/haowjy/meridian-agent-go"
)

// errNoQuery is returned by Acquire when neither a query nor a loader was configured.
var errNoQuery = errors.New("no query function or loader configured")

// Provider implements the llmprovider.Provider interface on top of a Claude
// Agent worker. Each Stream call is an independent one-shot query; no session
// state is carried between calls.
type Provider struct {
	mu     sync.Mutex
	query  QueryFunc
	loader Loader

	policy         llmprovider.ExecutionSide
	strategy       PromptStrategy
	permissionMode PermissionMode
	capabilities   *llmprovider.CapabilityRegistry
	logger         zerolog.Logger
	now            func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithQuery injects the upstream query function directly.
func WithQuery(query QueryFunc) Option {
	return func(p *Provider) { p.query = query }
}

// WithLoader sets a loader that is called on first use to obtain the query
// function. A successful load is reused by later Stream calls; a failed load
// is retried on the next call.
func WithLoader(loader Loader) Option {
	return func(p *Provider) { p.loader = loader }
}

// WithToolPolicy selects where tools run. ExecutionSideServer (default) means
// the worker already ran them and tool_use blocks are not forwarded;
// ExecutionSideClient forwards them as tool call events for the host to run.
func WithToolPolicy(side llmprovider.ExecutionSide) Option {
	return func(p *Provider) { p.policy = side }
}

// WithPromptStrategy selects how prior turns are sent (default HistoryInPrompt).
func WithPromptStrategy(strategy PromptStrategy) Option {
	return func(p *Provider) { p.strategy = strategy }
}

// WithPermissionMode sets the worker permission mode (default bypassPermissions).
func WithPermissionMode(mode PermissionMode) Option {
	return func(p *Provider) { p.permissionMode = mode }
}

// WithLogger sets the logger (default: disabled).
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithClock overrides the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithCapabilities sets the registry used for model lookup and pricing
// (default: the global registry).
func WithCapabilities(registry *llmprovider.CapabilityRegistry) Option {
	return func(p *Provider) { p.capabilities = registry }
}

// NewProvider creates a Claude Agent provider.
func NewProvider(opts ...Option) (*Provider, error) {
	p := &Provider{
		policy:         llmprovider.ExecutionSideServer,
		strategy:       HistoryInPrompt,
		permissionMode: PermissionModeBypassPermissions,
		logger:         zerolog.Nop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if !p.policy.IsValid() {
		return nil, &llmprovider.ValidationError{
			Field:  "tool_policy",
			Value:  p.policy,
			Reason: "must be 'server' or 'client'",
			Err:    llmprovider.ErrInvalidRequest,
		}
	}
	if !p.strategy.IsValid() {
		return nil, &llmprovider.ValidationError{
			Field:  "prompt_strategy",
			Value:  p.strategy,
			Reason: fmt.Sprintf("must be '%s' or '%s'", HistoryInPrompt, HistoryAsTurns),
			Err:    llmprovider.ErrInvalidRequest,
		}
	}
	if !p.permissionMode.IsValid() {
		return nil, &llmprovider.ValidationError{
			Field:  "permission_mode",
			Value:  p.permissionMode,
			Reason: "unknown permission mode",
			Err:    llmprovider.ErrInvalidRequest,
		}
	}
	if p.capabilities == nil {
		p.capabilities = llmprovider.GetCapabilityRegistry()
	}
	if p.now == nil {
		p.now = time.Now
	}

	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() llmprovider.ProviderID {
	return llmprovider.ProviderClaudeAgent
}

// ToolPolicy returns the active tool forwarding policy.
func (p *Provider) ToolPolicy() llmprovider.ExecutionSide {
	return p.policy
}

// SupportsModel returns true if this provider supports the given model.
// Claude models start with "claude-"; the worker also accepts family aliases
// such as "sonnet".
func (p *Provider) SupportsModel(model string) bool {
	if strings.HasPrefix(model, "claude-") {
		return true
	}
	return p.capabilities.SupportsModel(llmprovider.ProviderAnthropic.String(), model)
}

// Acquire returns the upstream query function, loading it if needed.
func (p *Provider) Acquire() (QueryFunc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.query != nil {
		return p.query, nil
	}
	if p.loader == nil {
		return nil, errNoQuery
	}

	query, err := p.loader()
	if err != nil {
		return nil, err
	}
	if query == nil {
		return nil, errors.New("loader returned no query function")
	}
	p.query = query
	return query, nil
}

// Stream runs one query and translates its messages into events.
// The model is passed through to the worker without validation.
func (p *Provider) Stream(ctx context.Context, model llmprovider.Model, convo *llmprovider.Context, params *llmprovider.RequestParams) <-chan llmprovider.Event {
	eventChan := make(chan llmprovider.Event, 10) // Buffered to prevent blocking

	go func() {
		defer close(eventChan)

		t := p.newTranslation(ctx, model, eventChan)

		query, err := p.Acquire()
		if err != nil {
			p.logger.Error().Err(err).Str("model", model.ID).Msg("claude agent worker unavailable")
			t.fail(llmprovider.ErrDependencyUnavailable, fmt.Errorf("claude agent worker unavailable: %w", err))
			return
		}

		req := BuildRequest(model, convo, params, p.strategy, p.permissionMode)
		t.run(query, req)
	}()

	return eventChan
}
