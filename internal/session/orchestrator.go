// Package session runs agent backends against workspaces and exposes their
// event streams.
//
// A Session owns one live backend server bound to a free local port. The
// orchestrator guarantees the server handle is released on every exit path:
// startup failures close it before surfacing, single-shot asks close it
// when their stream terminates, and threads close it in EndSession.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/davis7dotsh/betterctx/internal/agent"
	"github.com/davis7dotsh/betterctx/internal/domain"
	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
	"github.com/davis7dotsh/betterctx/internal/logging"
	"github.com/davis7dotsh/betterctx/internal/workspace"
)

// Workspaces is the slice of the workspace engine the orchestrator needs.
type Workspaces interface {
	Ensure(ctx context.Context, names []string, opts workspace.EnsureOptions) (domain.Workspace, error)
}

// Orchestrator starts sessions and issues prompts into them.
type Orchestrator struct {
	workspaces Workspaces
	launcher   agent.Launcher
	provider   string
	model      string
	basePort   int
	maxPorts   int
	logger     *logging.Logger
}

// New creates an Orchestrator. basePort is the first port probed for each
// new backend; maxPorts is the width of the probe window.
func New(ws Workspaces, launcher agent.Launcher, provider, model string, basePort, maxPorts int, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		workspaces: ws,
		launcher:   launcher,
		provider:   provider,
		model:      model,
		basePort:   basePort,
		maxPorts:   maxPorts,
		logger:     logger,
	}
}

// Session is one live agent backend bound to a workspace.
type Session struct {
	ID        string
	Workspace domain.Workspace

	orch      *Orchestrator
	server    agent.Server
	client    agent.Client
	closeOnce sync.Once
	closeErr  error
}

// Start materialises the workspace for repos, boots a backend against it on
// a free port, validates the configured provider and model, and creates an
// agent session. On any failure after the server booted, the server is
// closed before the error surfaces.
func (o *Orchestrator) Start(ctx context.Context, repos []string) (*Session, error) {
	ws, err := o.workspaces.Ensure(ctx, repos, workspace.EnsureOptions{})
	if err != nil {
		return nil, err
	}

	server, client, err := o.launch(ctx, ws.Path)
	if err != nil {
		return nil, err
	}

	if err := o.validateModel(ctx, client); err != nil {
		server.Close()

		return nil, err
	}

	sessionID, err := client.CreateSession(ctx)
	if err != nil {
		server.Close()

		return nil, cerrors.NewSessionStartFailed(err)
	}

	if o.logger != nil {
		o.logger.Debug("session started", "session_id", sessionID, "workspace", ws.Key, "port", server.Port())
	}

	return &Session{
		ID:        sessionID,
		Workspace: ws,
		orch:      o,
		server:    server,
		client:    client,
	}, nil
}

// launch probes ports P₀..P₀+N-1 until the backend boots. Only port-busy
// boot failures advance the probe; any other failure is fatal.
func (o *Orchestrator) launch(ctx context.Context, dir string) (agent.Server, agent.Client, error) {
	for i := 0; i < o.maxPorts; i++ {
		port := o.basePort + i

		server, client, err := o.launcher.Launch(ctx, dir, port)
		if err == nil {
			return server, client, nil
		}

		if agent.IsPortBusy(err) {
			if o.logger != nil {
				o.logger.Debug("port busy, trying next", "port", port)
			}

			continue
		}

		return nil, nil, cerrors.Wrap(cerrors.ErrSessionStartFailed, "agent backend failed to boot", err)
	}

	return nil, nil, cerrors.NewPortsExhausted(o.basePort, o.maxPorts)
}

// validateModel preflights the configured (provider, model) against the
// backend's advertised capabilities. A listing failure cannot disprove the
// configuration, so it fails open; a successful listing that contradicts
// the request fails closed.
func (o *Orchestrator) validateModel(ctx context.Context, client agent.Client) error {
	list, err := client.Providers(ctx)
	if err != nil {
		if o.logger != nil {
			o.logger.Debug("provider listing unavailable, skipping validation", "error", err)
		}

		return nil
	}

	var found *agent.Provider

	available := make([]string, 0, len(list.All))
	for i, p := range list.All {
		available = append(available, p.ID)

		if p.ID == o.provider {
			found = &list.All[i]
		}
	}

	if found == nil {
		return cerrors.NewInvalidProvider(o.provider, available)
	}

	connected := false

	for _, id := range list.Connected {
		if id == o.provider {
			connected = true

			break
		}
	}

	if !connected {
		return cerrors.NewProviderNotConnected(o.provider, list.Connected)
	}

	if _, ok := found.Models[o.model]; !ok {
		models := make([]string, 0, len(found.Models))
		for id := range found.Models {
			models = append(models, id)
		}

		return cerrors.NewInvalidModel(o.provider, o.model, models)
	}

	return nil
}

// Prompt submits text into the session and returns its filtered event
// stream. The subscription is opened before the prompt is fired so no
// event can be missed; submission failure and stream completion race, and
// the first to resolve terminates the stream. cleanup, if non-nil, runs
// exactly once on any termination.
func (s *Session) Prompt(ctx context.Context, text string, cleanup func()) (*Stream, error) {
	subCtx, cancel := context.WithCancel(ctx)

	events, err := s.client.Subscribe(subCtx)
	if err != nil {
		cancel()

		if cleanup != nil {
			cleanup()
		}

		return nil, cerrors.Wrap(cerrors.ErrAgent, "event subscription failed", err)
	}

	stream := newStream(cancel, cleanup)

	promptErr := make(chan error, 1)

	go func() {
		promptErr <- s.client.Prompt(subCtx, s.ID, agent.PromptRequest{
			Provider: s.orch.provider,
			Model:    s.orch.model,
			Text:     text,
		})
	}()

	go s.forward(subCtx, events, promptErr, stream)

	return stream, nil
}

// forward demultiplexes the global event stream into this prompt's view.
func (s *Session) forward(ctx context.Context, events <-chan agent.Event, promptErr <-chan error, stream *Stream) {
	for {
		select {
		case <-ctx.Done():
			// Consumer cancellation: no error is synthesised.
			stream.finish(nil)

			return
		case err := <-promptErr:
			if err != nil {
				stream.finish(cerrors.Wrap(cerrors.ErrAgent, "prompt submission failed", err))

				return
			}

			// Submission accepted; keep draining events only.
			promptErr = nil
		case ev, ok := <-events:
			if !ok {
				stream.finish(nil)

				return
			}

			if ev.SessionID != "" && ev.SessionID != s.ID {
				continue
			}

			switch ev.Type {
			case agent.EventSessionIdle:
				if ev.SessionID == s.ID {
					stream.finish(nil)

					return
				}
			case agent.EventSessionError:
				if ev.SessionID == s.ID {
					stream.finish(cerrors.NewAgentError(ev.ErrorName, agentEventError(ev)))

					return
				}
			default:
				select {
				case stream.events <- ev:
				case <-ctx.Done():
					stream.finish(nil)

					return
				}
			}
		}
	}
}

// EndSession closes the backend server exactly once, from whichever
// goroutine gets here first.
func (s *Session) EndSession() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.server.Close()
	})

	return s.closeErr
}

// Port exposes the backend's bound port.
func (s *Session) Port() int {
	return s.server.Port()
}

// Ask is the single-shot lifecycle: start a session against repos, issue
// one prompt, aggregate the streamed text parts, and close the server when
// the stream terminates on any path.
func (o *Orchestrator) Ask(ctx context.Context, repos []string, question string) (string, error) {
	sess, err := o.Start(ctx, repos)
	if err != nil {
		return "", err
	}

	stream, err := sess.Prompt(ctx, question, func() {
		sess.EndSession()
	})
	if err != nil {
		sess.EndSession()

		return "", err
	}

	var answer strings.Builder

	for ev := range stream.Events() {
		if ev.Type == agent.EventMessagePartUpdated && ev.Part != nil && ev.Part.Type == "text" {
			answer.WriteString(ev.Part.Text)
		}
	}

	if err := stream.Err(); err != nil {
		return "", err
	}

	return answer.String(), nil
}

func agentEventError(ev agent.Event) error {
	if ev.ErrorMessage == "" {
		return nil
	}

	return cerrors.Wrap(cerrors.ErrAgent, ev.ErrorMessage, nil)
}
