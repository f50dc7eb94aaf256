package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrTimeout marks a required-class tool call that exceeded its deadline.
var ErrTimeout = errors.New("tool call timed out")

// OpClass describes how a capability's timeout is handled. Best-effort
// operations (navigation and the like) degrade to a placeholder result;
// required operations fail hard because their output feeds later steps.
type OpClass int

const (
	Required OpClass = iota
	BestEffort
)

// NormalizedResult is the invoker's uniform view of a tool result.
type NormalizedResult struct {
	Capability string
	Text       string
	// Binary holds base64-encoded payload when the tool returned binary
	// content, with MIMEType describing it.
	Binary   string
	MIMEType string
	// TimedOut marks the degraded placeholder returned when a best-effort
	// call exceeded its deadline.
	TimedOut bool
	// Stringified marks a result whose payload shape was not recognized and
	// had to be serialized wholesale.
	Stringified bool
}

// Invoker wraps single tool calls with a per-call timeout and result
// normalization.
type Invoker struct {
	session *Manager
}

// NewInvoker builds an Invoker bound to one session.
func NewInvoker(m *Manager) *Invoker {
	return &Invoker{session: m}
}

// Invoke calls capability with args under the given timeout. On timeout,
// best-effort calls return a placeholder flagged TimedOut; required calls
// return ErrTimeout. A zero timeout disables the per-call deadline.
func (inv *Invoker) Invoke(ctx context.Context, capability string, args map[string]any, timeout time.Duration, class OpClass) (NormalizedResult, error) {
	cctx := ctx
	cancel := func() {}
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = capability
	req.Params.Arguments = args

	res, err := inv.session.call(cctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			if class == BestEffort {
				log.Printf("%s timed out after %s; continuing with degraded result", capability, timeout)
				return NormalizedResult{Capability: capability, TimedOut: true}, nil
			}
			return NormalizedResult{}, fmt.Errorf("%s after %s: %w", capability, timeout, ErrTimeout)
		}
		return NormalizedResult{}, fmt.Errorf("calling %s: %w", capability, err)
	}
	return normalize(capability, res)
}

// normalize extracts the payload from a raw tool result, trying each known
// representation in priority order: text content items, binary content,
// structured content, then stringifying the whole result. The last resort is
// logged since it usually means the peer returned an unrecognized shape.
func normalize(capability string, res *mcp.CallToolResult) (NormalizedResult, error) {
	if res == nil {
		return NormalizedResult{}, fmt.Errorf("%s returned no result", capability)
	}

	out := NormalizedResult{Capability: capability}

	var texts []string
	for _, item := range res.Content {
		switch c := item.(type) {
		case mcp.TextContent:
			if c.Text != "" {
				texts = append(texts, c.Text)
			}
		case mcp.ImageContent:
			if out.Binary == "" && c.Data != "" {
				out.Binary = c.Data
				out.MIMEType = c.MIMEType
			}
		}
	}

	if res.IsError {
		return NormalizedResult{}, fmt.Errorf("%s reported an error: %s", capability, strings.Join(texts, "\n"))
	}

	if len(texts) > 0 {
		out.Text = strings.Join(texts, "\n")
		return out, nil
	}
	if out.Binary != "" {
		return out, nil
	}
	if res.StructuredContent != nil {
		raw, err := json.Marshal(res.StructuredContent)
		if err == nil {
			out.Text = string(raw)
			return out, nil
		}
		log.Printf("%s: structured content not serializable: %v", capability, err)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return NormalizedResult{}, fmt.Errorf("%s returned an unrecognizable result: %w", capability, err)
	}
	out.Text = string(raw)
	out.Stringified = true
	log.Printf("%s: unrecognized result shape; stringified the entire payload", capability)
	return out, nil
}
