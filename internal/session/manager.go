package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

var (
	// ErrClosed is returned by every operation attempted after Close.
	ErrClosed = errors.New("session is closed")
	// ErrNotReady is returned when an operation requires a completed Open.
	ErrNotReady = errors.New("session is not ready")
	// ErrCapabilityUnavailable marks a capability the tool does not expose.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)

// State tracks a session through its lifecycle. Closed is terminal.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ToolClient is the subset of the MCP client surface the session layer
// drives. *client.Client satisfies it; tests provide fakes.
type ToolClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Factory produces a fresh ToolClient for one session.
type Factory func() (ToolClient, error)

// StdioFactory launches command with args as an MCP stdio server and returns
// a client bound to its pipes.
func StdioFactory(command string, env []string, args ...string) Factory {
	return func() (ToolClient, error) {
		return client.NewClient(transport.NewStdio(command, env, args...)), nil
	}
}

// Config carries the knobs for one automation-tool session.
type Config struct {
	ClientName    string
	ClientVersion string
	// RequestedCapabilities are the capabilities the workflow intends to
	// call. They double as the assumed capability set when listing fails.
	RequestedCapabilities []string
	HandshakeTimeout      time.Duration
	ListTimeout           time.Duration
	CloseTimeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClientName == "" {
		c.ClientName = "reviewharvest"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "0.1.0"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.ListTimeout <= 0 {
		c.ListTimeout = 10 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
	return c
}

// Manager owns one automation-tool session's lifecycle: transport startup,
// handshake, capability discovery, and guaranteed teardown. The session is
// an exclusively-owned resource; callers serialize access to it for the
// duration of one workflow run.
type Manager struct {
	cfg     Config
	factory Factory
	id      string

	mu           sync.Mutex
	state        State
	client       ToolClient
	capabilities map[string]struct{}
	closeOnce    sync.Once
}

// NewManager builds a Manager in the Uninitialized state.
func NewManager(cfg Config, factory Factory) *Manager {
	return &Manager{
		cfg:          cfg.withDefaults(),
		factory:      factory,
		id:           uuid.NewString(),
		state:        StateUninitialized,
		capabilities: make(map[string]struct{}),
	}
}

// ID returns the session's identifier, used in log lines and artifact paths.
func (m *Manager) ID() string { return m.id }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open establishes the transport and performs the handshake. A handshake
// that outlives HandshakeTimeout is not aborted: the peer may still complete
// it asynchronously, so the session logs a warning and proceeds to Ready.
// Genuine handshake errors close the transport and propagate.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateUninitialized:
		m.state = StateInitializing
		m.mu.Unlock()
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	default:
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("session %s already %s", m.id, state)
	}

	c, err := m.factory()
	if err != nil {
		m.Close()
		return fmt.Errorf("creating tool client: %w", err)
	}

	m.mu.Lock()
	m.client = c
	m.mu.Unlock()

	if err := c.Start(ctx); err != nil {
		m.Close()
		return fmt.Errorf("starting tool transport: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    m.cfg.ClientName,
		Version: m.cfg.ClientVersion,
	}

	type handshake struct {
		result *mcp.InitializeResult
		err    error
	}
	done := make(chan handshake, 1)
	go func() {
		res, err := c.Initialize(ctx, initReq)
		done <- handshake{result: res, err: err}
	}()

	timer := time.NewTimer(m.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case h := <-done:
		if h.err != nil {
			m.Close()
			return fmt.Errorf("handshake with automation tool: %w", h.err)
		}
		log.Printf("session %s: connected to %s %s", m.id, h.result.ServerInfo.Name, h.result.ServerInfo.Version)
	case <-timer.C:
		log.Printf("session %s: handshake still pending after %s; continuing", m.id, m.cfg.HandshakeTimeout)
	case <-ctx.Done():
		m.Close()
		return ctx.Err()
	}

	m.mu.Lock()
	if m.state == StateInitializing {
		m.state = StateReady
	}
	m.mu.Unlock()
	return nil
}

// DiscoverCapabilities lists the tool's capabilities under its own short
// timeout. Listing failures and timeouts do not fail closed: the session
// falls back to assuming the requested capability names are available.
func (m *Manager) DiscoverCapabilities(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	state := m.state
	c := m.client
	m.mu.Unlock()

	switch state {
	case StateClosed:
		return nil, ErrClosed
	case StateReady:
	default:
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}

	lctx, cancel := context.WithTimeout(ctx, m.cfg.ListTimeout)
	defer cancel()

	names := m.cfg.RequestedCapabilities
	if res, err := c.ListTools(lctx, mcp.ListToolsRequest{}); err != nil {
		log.Printf("session %s: listing capabilities failed (%v); assuming %v", m.id, err, names)
	} else {
		listed := make([]string, 0, len(res.Tools))
		for _, t := range res.Tools {
			listed = append(listed, t.Name)
		}
		names = listed
	}

	m.mu.Lock()
	m.capabilities = make(map[string]struct{}, len(names))
	for _, n := range names {
		m.capabilities[n] = struct{}{}
	}
	m.mu.Unlock()

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return sorted, nil
}

// Has reports whether the named capability was discovered or assumed.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.capabilities[name]
	return ok
}

// call performs one raw tool call. The session must be Ready.
func (m *Manager) call(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m.mu.Lock()
	state := m.state
	c := m.client
	m.mu.Unlock()

	switch state {
	case StateClosed:
		return nil, ErrClosed
	case StateReady:
		return c.CallTool(ctx, req)
	default:
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}
}

// Close tears the session down. It must run once per Open on every exit
// path; calling it again is a no-op. Teardown is bounded by CloseTimeout and
// its failures are logged, never returned, so it cannot mask the primary
// error of a failing workflow.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		c := m.client
		m.state = StateClosed
		m.mu.Unlock()

		if c == nil {
			return
		}

		done := make(chan error, 1)
		go func() { done <- c.Close() }()

		timer := time.NewTimer(m.cfg.CloseTimeout)
		defer timer.Stop()
		select {
		case err := <-done:
			if err != nil {
				log.Printf("session %s: close failed: %v", m.id, err)
				return
			}
			log.Printf("session %s: closed", m.id)
		case <-timer.C:
			log.Printf("session %s: close timed out after %s", m.id, m.cfg.CloseTimeout)
		}
	})
}
