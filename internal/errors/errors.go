// Package errors provides typed errors for the betterctx application.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies the type of error.
type ErrorCode string

// Error codes for domain errors.
const (
	ErrUnknownResource      ErrorCode = "UNKNOWN_RESOURCE"
	ErrDuplicateResource    ErrorCode = "DUPLICATE_RESOURCE"
	ErrInvalidResourceName  ErrorCode = "INVALID_RESOURCE_NAME"
	ErrNetwork              ErrorCode = "NETWORK_ERROR"
	ErrRepoCorrupt          ErrorCode = "REPO_CORRUPT"
	ErrWorkspaceMissing     ErrorCode = "WORKSPACE_MISSING"
	ErrEmptyRepoSet         ErrorCode = "EMPTY_REPO_SET"
	ErrPortsExhausted       ErrorCode = "PORTS_EXHAUSTED"
	ErrSessionStartFailed   ErrorCode = "SESSION_START_FAILED"
	ErrAgent                ErrorCode = "AGENT_ERROR"
	ErrInvalidProvider      ErrorCode = "INVALID_PROVIDER"
	ErrProviderNotConnected ErrorCode = "PROVIDER_NOT_CONNECTED"
	ErrInvalidModel         ErrorCode = "INVALID_MODEL"
	ErrGitOperationFailed   ErrorCode = "GIT_OPERATION_FAILED"
	ErrIOFailed             ErrorCode = "IO_FAILED"
	ErrConfigInvalid        ErrorCode = "CONFIG_INVALID"
	ErrCommandFailed        ErrorCode = "COMMAND_FAILED"
	ErrOperationCancelled   ErrorCode = "OPERATION_CANCELLED"
	ErrOperationTimeout     ErrorCode = "OPERATION_TIMEOUT"
	ErrInvalidArgument      ErrorCode = "INVALID_ARGUMENT"
)

// Error is a typed error with code, message, cause, and context.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for use with errors.Unwrap.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the target error has the same error code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}

	return false
}

// WithContext returns a copy of the error with additional context key-value pairs.
// This creates a shallow copy to avoid mutating sentinel errors.
func (e *Error) WithContext(key, value string) *Error {
	newContext := make(map[string]string)
	for k, v := range e.Context {
		newContext[k] = v
	}

	newContext[key] = value

	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Context: newContext,
	}
}

// NewUnknownResource creates an error for a registry lookup miss.
func NewUnknownResource(name string) *Error {
	return &Error{
		Code:    ErrUnknownResource,
		Message: fmt.Sprintf("unknown resource '%s'. Register it first: betterctx repo add %s <repository-url>", name, name),
		Context: map[string]string{"resource_name": name},
	}
}

// NewDuplicateResource creates an error for a registry add conflict.
func NewDuplicateResource(name string) *Error {
	return &Error{
		Code:    ErrDuplicateResource,
		Message: fmt.Sprintf("resource already exists: %s", name),
		Context: map[string]string{"resource_name": name},
	}
}

// NewInvalidResourceName creates an error for names outside ^[a-z0-9_-]+$.
func NewInvalidResourceName(name string) *Error {
	return &Error{
		Code:    ErrInvalidResourceName,
		Message: fmt.Sprintf("invalid resource name %q: use lowercase letters, digits, '_' and '-'", name),
		Context: map[string]string{"resource_name": name},
	}
}

// WrapNetwork wraps a transient git fetch/clone failure.
func WrapNetwork(operation, name string, cause error) *Error {
	return &Error{
		Code:    ErrNetwork,
		Message: fmt.Sprintf("%s failed for %s", operation, name),
		Cause:   cause,
		Context: map[string]string{"operation": operation, "resource_name": name},
	}
}

// NewRepoCorrupt creates an error for a cached clone that does not match
// the registered origin.
func NewRepoCorrupt(name, wantURL, haveURL string) *Error {
	return &Error{
		Code:    ErrRepoCorrupt,
		Message: fmt.Sprintf("cached clone for %s has origin %q, registry says %q; delete the cache entry and retry", name, haveURL, wantURL),
		Context: map[string]string{"resource_name": name, "want_url": wantURL, "have_url": haveURL},
	}
}

// NewWorkspaceMissing creates an error for clearing or inspecting a
// non-existent workspace.
func NewWorkspaceMissing(key string) *Error {
	return &Error{
		Code:    ErrWorkspaceMissing,
		Message: fmt.Sprintf("workspace %s does not exist", key),
		Context: map[string]string{"workspace_key": key},
	}
}

// NewEmptyRepoSet creates an error for an empty repository set.
func NewEmptyRepoSet() *Error {
	return &Error{
		Code:    ErrEmptyRepoSet,
		Message: "repository set is empty: mention at least one repository with @name or pass one explicitly",
	}
}

// NewPortsExhausted creates an error for when no backend port is free
// within the configured window.
func NewPortsExhausted(basePort, attempts int) *Error {
	return &Error{
		Code:    ErrPortsExhausted,
		Message: fmt.Sprintf("no free port for agent server in %d..%d", basePort, basePort+attempts-1),
		Context: map[string]string{
			"base_port": fmt.Sprintf("%d", basePort),
			"attempts":  fmt.Sprintf("%d", attempts),
		},
	}
}

// NewSessionStartFailed creates an error for when the agent refuses to
// create a session.
func NewSessionStartFailed(cause error) *Error {
	return &Error{
		Code:    ErrSessionStartFailed,
		Message: "agent refused to create a session",
		Cause:   cause,
	}
}

// NewAgentError creates an error surfaced from a session.error event.
func NewAgentError(name string, cause error) *Error {
	msg := "agent reported an error"
	if name != "" {
		msg = fmt.Sprintf("agent reported an error: %s", name)
	}

	return &Error{
		Code:    ErrAgent,
		Message: msg,
		Cause:   cause,
		Context: map[string]string{"agent_error": name},
	}
}

// NewInvalidProvider creates an error for an unknown provider id.
func NewInvalidProvider(providerID string, available []string) *Error {
	return &Error{
		Code:    ErrInvalidProvider,
		Message: fmt.Sprintf("unknown provider %q (available: %s)", providerID, strings.Join(available, ", ")),
		Context: map[string]string{"provider_id": providerID, "available": strings.Join(available, ",")},
	}
}

// NewProviderNotConnected creates an error for a provider that exists but
// has no credentials configured on the agent side.
func NewProviderNotConnected(providerID string, connected []string) *Error {
	return &Error{
		Code:    ErrProviderNotConnected,
		Message: fmt.Sprintf("provider %q is not connected (connected: %s)", providerID, strings.Join(connected, ", ")),
		Context: map[string]string{"provider_id": providerID, "connected": strings.Join(connected, ",")},
	}
}

// NewInvalidModel creates an error for a model the provider does not advertise.
func NewInvalidModel(providerID, modelID string, available []string) *Error {
	return &Error{
		Code:    ErrInvalidModel,
		Message: fmt.Sprintf("provider %q has no model %q (available: %s)", providerID, modelID, strings.Join(available, ", ")),
		Context: map[string]string{"provider_id": providerID, "model_id": modelID, "available": strings.Join(available, ",")},
	}
}

// WrapGitError wraps a git operation error.
func WrapGitError(err error, operation string) *Error {
	return &Error{
		Code:    ErrGitOperationFailed,
		Message: fmt.Sprintf("git %s failed", operation),
		Cause:   err,
		Context: map[string]string{"operation": operation},
	}
}

// NewIOFailed creates an error for IO operation failures.
func NewIOFailed(operation string, cause error) *Error {
	return &Error{
		Code:    ErrIOFailed,
		Message: fmt.Sprintf("IO operation failed: %s", operation),
		Cause:   cause,
		Context: map[string]string{"operation": operation},
	}
}

// NewConfigInvalid creates an error for invalid configuration.
func NewConfigInvalid(detail string) *Error {
	return &Error{
		Code:    ErrConfigInvalid,
		Message: fmt.Sprintf("invalid configuration: %s", detail),
		Context: map[string]string{"detail": detail},
	}
}

// NewCommandFailed creates an error for when a command execution fails.
func NewCommandFailed(command string, cause error) *Error {
	return &Error{
		Code:    ErrCommandFailed,
		Message: fmt.Sprintf("command failed: %s", command),
		Cause:   cause,
		Context: map[string]string{"command": command},
	}
}

// NewOperationCancelled creates an error for cancelled operations.
func NewOperationCancelled(operation, target string) *Error {
	return &Error{
		Code:    ErrOperationCancelled,
		Message: fmt.Sprintf("operation cancelled: %s %s", operation, target),
		Context: map[string]string{"operation": operation, "target": target},
	}
}

// NewOperationTimeout creates an error for timed-out operations.
func NewOperationTimeout(operation, target string) *Error {
	return &Error{
		Code:    ErrOperationTimeout,
		Message: fmt.Sprintf("operation timed out: %s %s", operation, target),
		Context: map[string]string{"operation": operation, "target": target},
	}
}

// NewInvalidArgument creates an error for invalid input arguments.
func NewInvalidArgument(name, detail string) *Error {
	return &Error{
		Code:    ErrInvalidArgument,
		Message: fmt.Sprintf("invalid argument %s: %s", name, detail),
		Context: map[string]string{"argument": name, "detail": detail},
	}
}

// Wrap wraps an error with a typed Error, preserving the cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinel errors for use with errors.Is().
var (
	UnknownResource      = &Error{Code: ErrUnknownResource}
	DuplicateResource    = &Error{Code: ErrDuplicateResource}
	InvalidResourceName  = &Error{Code: ErrInvalidResourceName}
	Network              = &Error{Code: ErrNetwork}
	RepoCorrupt          = &Error{Code: ErrRepoCorrupt}
	WorkspaceMissing     = &Error{Code: ErrWorkspaceMissing}
	EmptyRepoSet         = &Error{Code: ErrEmptyRepoSet}
	PortsExhausted       = &Error{Code: ErrPortsExhausted}
	SessionStartFailed   = &Error{Code: ErrSessionStartFailed}
	Agent                = &Error{Code: ErrAgent}
	InvalidProvider      = &Error{Code: ErrInvalidProvider}
	ProviderNotConnected = &Error{Code: ErrProviderNotConnected}
	InvalidModel         = &Error{Code: ErrInvalidModel}
	GitOperationFailed   = &Error{Code: ErrGitOperationFailed}
	IOFailed             = &Error{Code: ErrIOFailed}
	ConfigInvalid        = &Error{Code: ErrConfigInvalid}
	CommandFailed        = &Error{Code: ErrCommandFailed}
	OperationCancelled   = &Error{Code: ErrOperationCancelled}
	OperationTimeout     = &Error{Code: ErrOperationTimeout}
	InvalidArgument      = &Error{Code: ErrInvalidArgument}
)
