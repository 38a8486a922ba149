package llmprovider

// Message role constants
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Context is the host's conversation context for one request.
type Context struct {
	// Messages contains the conversation history in order.
	Messages []Message

	// SystemPrompt is an optional system prompt for the request
	SystemPrompt *string
}

// Message represents a single message in the conversation.
type Message struct {
	// Role is "user", "assistant", "system" or "tool"
	Role string

	// Content is either a plain string, a []*Block, or decoded JSON
	// (a []interface{} of {"type": ..., "text": ...} objects).
	// Use ExtractText to read its text regardless of shape.
	Content interface{}
}

// Model describes the model a request targets.
type Model struct {
	// ID is the model identifier (e.g., "claude-sonnet-4-5")
	ID string

	// Provider is the provider serving the model
	Provider ProviderID

	// MaxTokens is the default output token limit (0 = provider default)
	MaxTokens int
}
