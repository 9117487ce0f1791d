package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fitcoach/internal/tool"
)

// Host owns the client sessions of every connected MCP server.
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	// client is reused across all server connections. The SDK allows a
	// single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client

	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession
	imported map[string][]string
}

// New creates a Host.
func New() *Host {
	return &Host{
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "fitcoach", Version: "1.0.0"},
			nil,
		),
		sessions: make(map[string]*mcpsdk.ClientSession),
		imported: make(map[string][]string),
	}
}

// ImportAll connects to every server in parallel and registers their tools
// in reg in configuration order. A server that fails does not prevent the
// others from being imported; all failures are returned joined.
func (h *Host) ImportAll(ctx context.Context, reg *tool.Registry, servers []ServerConfig) error {
	sessions := make([]*mcpsdk.ClientSession, len(servers))
	errs := make([]error, len(servers))

	var g errgroup.Group
	for i, cfg := range servers {
		g.Go(func() error {
			transport, err := newTransport(cfg)
			if err != nil {
				errs[i] = err
				return nil
			}
			sessions[i], errs[i] = h.connect(ctx, cfg.Name, transport)
			return nil
		})
	}
	_ = g.Wait()

	for i, cfg := range servers {
		if errs[i] != nil {
			continue
		}
		if _, err := h.register(ctx, reg, cfg, sessions[i]); err != nil {
			errs[i] = err
		}
	}
	return errors.Join(errs...)
}

// Import connects to one server and registers its tools in reg. It returns
// the registered tool names.
func (h *Host) Import(ctx context.Context, reg *tool.Registry, cfg ServerConfig) ([]string, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return h.importTransport(ctx, reg, cfg, transport)
}

func (h *Host) importTransport(ctx context.Context, reg *tool.Registry, cfg ServerConfig, transport mcpsdk.Transport) ([]string, error) {
	session, err := h.connect(ctx, cfg.Name, transport)
	if err != nil {
		return nil, err
	}
	return h.register(ctx, reg, cfg, session)
}

// Tools returns the registry names imported from each server.
func (h *Host) Tools() map[string][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string][]string, len(h.imported))
	for k, v := range h.imported {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Ping checks every live session. It satisfies health.Checker.
func (h *Host) Ping(ctx context.Context) error {
	h.mu.Lock()
	sessions := make(map[string]*mcpsdk.ClientSession, len(h.sessions))
	for k, v := range h.sessions {
		sessions[k] = v
	}
	h.mu.Unlock()

	var errs []error
	for name, s := range sessions {
		if err := s.Ping(ctx, nil); err != nil {
			errs = append(errs, fmt.Errorf("mcp: server %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close shuts down all server connections. Tools imported from them keep
// their registry entries but fail with tool-execution-failed.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, s := range h.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp: closing server %q: %w", name, err))
		}
		delete(h.sessions, name)
	}
	return errors.Join(errs...)
}

func newTransport(cfg ServerConfig) (mcpsdk.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		// The subprocess must outlive the connect context.
		cmd := exec.Command(executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	default:
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, nil
	}
}

func (h *Host) connect(ctx context.Context, name string, transport mcpsdk.Transport) (*mcpsdk.ClientSession, error) {
	h.mu.Lock()
	_, dup := h.sessions[name]
	h.mu.Unlock()
	if dup {
		return nil, fmt.Errorf("mcp: server %q already connected", name)
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect to server %q: %w", name, err)
	}
	return session, nil
}

// register lists the session's tools and adds a proxy for each to reg. On
// any listing error the session is closed.
func (h *Host) register(ctx context.Context, reg *tool.Registry, cfg ServerConfig, session *mcpsdk.ClientSession) ([]string, error) {
	var remote []*mcpsdk.Tool
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("mcp: list tools of server %q: %w", cfg.Name, err)
		}
		remote = append(remote, t)
	}

	var names []string
	for _, t := range remote {
		local := t.Name
		if cfg.Prefix != "" {
			local = cfg.Prefix + "_" + t.Name
		}
		schema, err := convertSchema(local, t.Description, t.InputSchema)
		if err != nil {
			slog.Warn("mcp: skipping tool", "server", cfg.Name, "tool", t.Name, "err", err)
			continue
		}
		if err := reg.Register(schema, proxy(session, cfg, t.Name)); err != nil {
			slog.Warn("mcp: skipping tool", "server", cfg.Name, "tool", t.Name, "err", err)
			continue
		}
		names = append(names, local)
	}

	h.mu.Lock()
	h.sessions[cfg.Name] = session
	h.imported[cfg.Name] = names
	h.mu.Unlock()

	slog.Info("mcp server connected", "server", cfg.Name, "transport", cfg.Transport, "tools", len(names))
	return names, nil
}

// proxy returns an executor that forwards calls to the remote tool.
func proxy(session *mcpsdk.ClientSession, cfg ServerConfig, remoteName string) tool.Executor {
	return func(ctx context.Context, args map[string]any) (tool.Outcome, error) {
		if cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
			defer cancel()
		}
		res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      remoteName,
			Arguments: args,
		})
		if err != nil {
			return tool.Outcome{}, fmt.Errorf("mcp: call to tool %q on %q failed: %w", remoteName, cfg.Name, err)
		}

		text := textContent(res)
		if res.IsError {
			return tool.Outcome{}, fmt.Errorf("mcp: tool %q reported an error: %s", remoteName, text)
		}
		data := res.StructuredContent
		if data == nil {
			data = decodeText(text)
		}
		return outcomeFrom(data), nil
	}
}

// outcomeFrom maps a remote result to an Outcome. Results shaped like
// {"success": false, "error": "..."} become data-not-found outcomes.
func outcomeFrom(data any) tool.Outcome {
	if m, ok := data.(map[string]any); ok {
		if ok, present := m["success"].(bool); present && !ok {
			msg, _ := m["error"].(string)
			return tool.Outcome{Success: false, Error: msg, Data: m["data"]}
		}
	}
	return tool.Outcome{Success: true, Data: data}
}

// textContent concatenates all text content of res.
func textContent(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// decodeText returns text parsed as JSON when possible and the raw text
// otherwise.
func decodeText(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v
	}
	return text
}

// splitCommand splits a command string into executable and arguments.
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
