// Package agent defines the boundary to the coding-agent backend: the
// process that consumes a workspace and answers questions about it.
//
// The orchestrator interacts with a backend through three calls only:
// event subscription, session creation, and prompt submission, plus a
// read-only provider listing used for preflight validation.
package agent

import "context"

// Event is a tagged record streamed from an active backend. SessionID is
// empty for informational events that carry no session identity.
type Event struct {
	Type      string
	SessionID string

	// Part is set for EventMessagePartUpdated.
	Part *MessagePart

	// ErrorName and ErrorMessage are set for EventSessionError.
	ErrorName    string
	ErrorMessage string
}

// Event types the orchestrator reacts to. Backends may emit others; they
// pass through untouched.
const (
	EventMessagePartUpdated = "message.part.updated"
	EventSessionIdle        = "session.idle"
	EventSessionError       = "session.error"
)

// MessagePart is one streamed fragment of an assistant message.
type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PromptRequest carries one question into a session, pinned to the
// configured provider and model.
type PromptRequest struct {
	Provider string
	Model    string
	Text     string
}

// Model describes one model a provider advertises.
type Model struct {
	Name string `json:"name"`
}

// Provider describes one backend provider and its advertised models.
type Provider struct {
	ID     string           `json:"id"`
	Models map[string]Model `json:"models"`
}

// ProviderList is the read-only result of the backend's provider listing.
type ProviderList struct {
	All       []Provider `json:"all"`
	Connected []string   `json:"connected"`
}

// Client is the wire-level view of one running backend server.
type Client interface {
	// Subscribe opens the backend's global event stream. The returned
	// channel closes when ctx is cancelled or the stream ends.
	Subscribe(ctx context.Context) (<-chan Event, error)

	// CreateSession asks the backend for a new session and returns its id.
	CreateSession(ctx context.Context) (string, error)

	// Prompt submits a question into a session. Responses arrive on the
	// event stream, not on this call.
	Prompt(ctx context.Context, sessionID string, req PromptRequest) error

	// Providers lists the backend's providers and which are connected.
	Providers(ctx context.Context) (ProviderList, error)
}

// Server is a handle on a running backend process. Close is idempotent and
// safe to call from any goroutine.
type Server interface {
	Port() int
	Close() error
}

// Launcher boots a backend bound to a port with a workspace directory as
// its working directory.
type Launcher interface {
	Launch(ctx context.Context, dir string, port int) (Server, Client, error)
}
