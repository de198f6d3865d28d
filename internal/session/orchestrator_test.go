package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davis7dotsh/betterctx/internal/agent"
	"github.com/davis7dotsh/betterctx/internal/domain"
	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
	"github.com/davis7dotsh/betterctx/internal/workspace"
)

// fakeWorkspaces satisfies Workspaces without touching git.
type fakeWorkspaces struct{}

func (fakeWorkspaces) Ensure(_ context.Context, names []string, _ workspace.EnsureOptions) (domain.Workspace, error) {
	return domain.Workspace{Key: "fake", Path: "/tmp/fake"}, nil
}

// fakeServer records close calls.
type fakeServer struct {
	port   int
	closes atomic.Int32
}

func (s *fakeServer) Port() int { return s.port }

func (s *fakeServer) Close() error {
	s.closes.Add(1)

	return nil
}

// fakeClient is a scriptable backend.
type fakeClient struct {
	events    chan agent.Event
	sessionID string

	createErr error
	promptErr error

	providers    agent.ProviderList
	providersErr error

	promptCalls atomic.Int32
}

func newFakeClient(sessionID string) *fakeClient {
	return &fakeClient{
		events:    make(chan agent.Event, 64),
		sessionID: sessionID,
		providers: agent.ProviderList{
			All: []agent.Provider{
				{ID: "anthropic", Models: map[string]agent.Model{
					"claude-sonnet-4-5": {Name: "Claude Sonnet 4.5"},
				}},
			},
			Connected: []string{"anthropic"},
		},
	}
}

func (c *fakeClient) Subscribe(ctx context.Context) (<-chan agent.Event, error) {
	out := make(chan agent.Event)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-c.events:
				if !ok {
					return
				}

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (c *fakeClient) CreateSession(context.Context) (string, error) {
	if c.createErr != nil {
		return "", c.createErr
	}

	return c.sessionID, nil
}

func (c *fakeClient) Prompt(context.Context, string, agent.PromptRequest) error {
	c.promptCalls.Add(1)

	return c.promptErr
}

func (c *fakeClient) Providers(context.Context) (agent.ProviderList, error) {
	if c.providersErr != nil {
		return agent.ProviderList{}, c.providersErr
	}

	return c.providers, nil
}

// fakeLauncher simulates a port range with some ports held.
type fakeLauncher struct {
	busy    map[int]bool
	bootErr error

	mu       sync.Mutex
	attempts []int
	servers  []*fakeServer
	client   *fakeClient
}

func (l *fakeLauncher) Launch(_ context.Context, _ string, port int) (agent.Server, agent.Client, error) {
	l.mu.Lock()
	l.attempts = append(l.attempts, port)
	l.mu.Unlock()

	if l.busy[port] {
		return nil, nil, fmt.Errorf("%w: listen tcp 127.0.0.1:%d", agent.ErrPortBusy, port)
	}

	if l.bootErr != nil {
		return nil, nil, l.bootErr
	}

	srv := &fakeServer{port: port}

	l.mu.Lock()
	l.servers = append(l.servers, srv)
	l.mu.Unlock()

	return srv, l.client, nil
}

func newOrchestrator(l *fakeLauncher) *Orchestrator {
	return New(fakeWorkspaces{}, l, "anthropic", "claude-sonnet-4-5", 3420, 30, nil)
}

func TestStartSkipsBusyPorts(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{
		busy:   map[int]bool{3420: true, 3421: true},
		client: newFakeClient("ses_1"),
	}

	sess, err := newOrchestrator(launcher).Start(context.Background(), []string{"svelte"})
	require.NoError(t, err)
	defer sess.EndSession()

	assert.Equal(t, 3422, sess.Port())
	assert.Equal(t, []int{3420, 3421, 3422}, launcher.attempts)
}

func TestStartPortsExhausted(t *testing.T) {
	t.Parallel()

	busy := make(map[int]bool)
	for p := 3420; p < 3450; p++ {
		busy[p] = true
	}

	launcher := &fakeLauncher{busy: busy, client: newFakeClient("ses_1")}

	_, err := newOrchestrator(launcher).Start(context.Background(), []string{"svelte"})
	assert.True(t, errors.Is(err, cerrors.PortsExhausted), "got %v", err)
	assert.Len(t, launcher.attempts, 30)
	assert.Empty(t, launcher.servers, "no server may outlive an exhausted probe")
}

func TestStartLastPortFree(t *testing.T) {
	t.Parallel()

	busy := make(map[int]bool)
	for p := 3420; p < 3449; p++ {
		busy[p] = true
	}

	launcher := &fakeLauncher{busy: busy, client: newFakeClient("ses_1")}

	sess, err := newOrchestrator(launcher).Start(context.Background(), []string{"svelte"})
	require.NoError(t, err)
	defer sess.EndSession()

	assert.Equal(t, 3449, sess.Port())
}

func TestStartNonBusyBootFailureIsFatal(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{
		bootErr: fmt.Errorf("backend config invalid"),
		client:  newFakeClient("ses_1"),
	}

	_, err := newOrchestrator(launcher).Start(context.Background(), []string{"svelte"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, cerrors.PortsExhausted))
	assert.Len(t, launcher.attempts, 1, "non-busy failures must not advance the probe")
}

func TestStartValidationFailuresCloseServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*fakeClient)
		sentinel *cerrors.Error
	}{
		{
			name: "unknown provider",
			mutate: func(c *fakeClient) {
				c.providers.All = []agent.Provider{{ID: "openai"}}
				c.providers.Connected = []string{"openai"}
			},
			sentinel: cerrors.InvalidProvider,
		},
		{
			name: "provider not connected",
			mutate: func(c *fakeClient) {
				c.providers.Connected = nil
			},
			sentinel: cerrors.ProviderNotConnected,
		},
		{
			name: "unknown model",
			mutate: func(c *fakeClient) {
				c.providers.All[0].Models = map[string]agent.Model{"other-model": {Name: "Other"}}
			},
			sentinel: cerrors.InvalidModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newFakeClient("ses_1")
			tt.mutate(client)

			launcher := &fakeLauncher{client: client}

			_, err := newOrchestrator(launcher).Start(context.Background(), []string{"svelte"})
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)

			require.Len(t, launcher.servers, 1)
			assert.Equal(t, int32(1), launcher.servers[0].closes.Load(), "server must be closed on validation failure")
		})
	}
}

func TestStartFailsOpenWhenListingUnavailable(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	client.providersErr = fmt.Errorf("connection refused")

	launcher := &fakeLauncher{client: client}

	sess, err := newOrchestrator(launcher).Start(context.Background(), []string{"svelte"})
	require.NoError(t, err, "listing failure cannot disprove the configuration")
	sess.EndSession()
}

func TestStartSessionCreateFailureClosesServer(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	client.createErr = fmt.Errorf("workspace rejected")

	launcher := &fakeLauncher{client: client}

	_, err := newOrchestrator(launcher).Start(context.Background(), []string{"svelte"})
	assert.True(t, errors.Is(err, cerrors.SessionStartFailed))

	require.Len(t, launcher.servers, 1)
	assert.Equal(t, int32(1), launcher.servers[0].closes.Load())
}

func startSession(t *testing.T, client *fakeClient) (*Session, *fakeLauncher) {
	t.Helper()

	launcher := &fakeLauncher{client: client}

	sess, err := newOrchestrator(launcher).Start(context.Background(), []string{"svelte"})
	require.NoError(t, err)

	return sess, launcher
}

func textEvent(sessionID, text string) agent.Event {
	return agent.Event{
		Type:      agent.EventMessagePartUpdated,
		SessionID: sessionID,
		Part:      &agent.MessagePart{Type: "text", Text: text},
	}
}

func TestPromptStreamFiltersAndEndsOnIdle(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	sess, _ := startSession(t, client)
	defer sess.EndSession()

	client.events <- textEvent("ses_1", "one ")
	client.events <- textEvent("ses_other", "noise")
	client.events <- agent.Event{Type: "server.heartbeat"} // no session identity
	client.events <- textEvent("ses_1", "two")
	client.events <- agent.Event{Type: agent.EventSessionIdle, SessionID: "ses_1"}

	stream, err := sess.Prompt(context.Background(), "q", nil)
	require.NoError(t, err)

	var got []agent.Event
	for ev := range stream.Events() {
		got = append(got, ev)
	}

	require.NoError(t, stream.Err())
	require.Len(t, got, 3)

	for _, ev := range got {
		if ev.SessionID != "" {
			assert.Equal(t, "ses_1", ev.SessionID)
		}
	}
}

func TestPromptStreamSurfacesAgentError(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	sess, _ := startSession(t, client)
	defer sess.EndSession()

	client.events <- textEvent("ses_1", "partial")
	client.events <- agent.Event{
		Type:         agent.EventSessionError,
		SessionID:    "ses_1",
		ErrorName:    "ProviderAuthError",
		ErrorMessage: "bad key",
	}

	stream, err := sess.Prompt(context.Background(), "q", nil)
	require.NoError(t, err)

	for range stream.Events() {
	}

	err = stream.Err()
	assert.True(t, errors.Is(err, cerrors.Agent), "got %v", err)
	assert.Contains(t, err.Error(), "ProviderAuthError")
}

func TestPromptSubmissionFailureTerminatesStream(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	client.promptErr = fmt.Errorf("submission rejected")

	sess, _ := startSession(t, client)
	defer sess.EndSession()

	stream, err := sess.Prompt(context.Background(), "q", nil)
	require.NoError(t, err)

	for range stream.Events() {
	}

	require.Error(t, stream.Err())
	assert.Contains(t, stream.Err().Error(), "prompt submission failed")
}

func TestPromptConsumerCancellationRunsCleanup(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	sess, _ := startSession(t, client)
	defer sess.EndSession()

	var cleanups atomic.Int32

	client.events <- textEvent("ses_1", "first")

	stream, err := sess.Prompt(context.Background(), "q", func() {
		cleanups.Add(1)
	})
	require.NoError(t, err)

	<-stream.Events()
	stream.Close()

	// Drain whatever remains after cancellation.
	for range stream.Events() {
	}

	assert.NoError(t, stream.Err(), "cancellation must not synthesise an error")
	assert.Equal(t, int32(1), cleanups.Load())
}

func TestAskAggregatesAndClosesServer(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	launcher := &fakeLauncher{client: client}

	client.events <- textEvent("ses_1", "stores are ")
	client.events <- textEvent("ses_1", "reactive")
	client.events <- agent.Event{Type: agent.EventSessionIdle, SessionID: "ses_1"}

	answer, err := newOrchestrator(launcher).Ask(context.Background(), []string{"svelte"}, "how do stores work?")
	require.NoError(t, err)
	assert.Equal(t, "stores are reactive", answer)

	require.Len(t, launcher.servers, 1)
	assert.Eventually(t, func() bool {
		return launcher.servers[0].closes.Load() == 1
	}, time.Second, 10*time.Millisecond, "single-shot ask must close the server")
}

func TestAskSurfacesAgentErrorAndClosesServer(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	launcher := &fakeLauncher{client: client}

	client.events <- agent.Event{Type: agent.EventSessionError, SessionID: "ses_1", ErrorName: "Overloaded"}

	_, err := newOrchestrator(launcher).Ask(context.Background(), []string{"svelte"}, "q")
	assert.True(t, errors.Is(err, cerrors.Agent))

	require.Len(t, launcher.servers, 1)
	assert.Eventually(t, func() bool {
		return launcher.servers[0].closes.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEndSessionIdempotent(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	sess, launcher := startSession(t, client)

	require.NoError(t, sess.EndSession())
	require.NoError(t, sess.EndSession())

	assert.Equal(t, int32(1), launcher.servers[0].closes.Load(), "server must close exactly once")
}

func TestThreadAcrossPrompts(t *testing.T) {
	t.Parallel()

	client := newFakeClient("ses_1")
	sess, _ := startSession(t, client)
	defer sess.EndSession()

	client.events <- textEvent("ses_1", "answer one")
	client.events <- agent.Event{Type: agent.EventSessionIdle, SessionID: "ses_1"}

	first, err := sess.Prompt(context.Background(), "p1", nil)
	require.NoError(t, err)

	var firstTexts []string
	for ev := range first.Events() {
		firstTexts = append(firstTexts, ev.Part.Text)
	}
	require.NoError(t, first.Err())

	client.events <- textEvent("ses_1", "answer two")
	client.events <- agent.Event{Type: agent.EventSessionIdle, SessionID: "ses_1"}

	second, err := sess.Prompt(context.Background(), "p2", nil)
	require.NoError(t, err)

	var secondTexts []string
	for ev := range second.Events() {
		secondTexts = append(secondTexts, ev.Part.Text)
	}
	require.NoError(t, second.Err())

	assert.Equal(t, []string{"answer one"}, firstTexts)
	assert.Equal(t, []string{"answer two"}, secondTexts)
	assert.Equal(t, int32(2), client.promptCalls.Load())
}
