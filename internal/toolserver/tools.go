package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
)

func getStringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// NavigateTool loads a URL in the driver's page.
type NavigateTool struct {
	driver PageDriver
}

func (t *NavigateTool) Name() string { return "browser_navigate" }
func (t *NavigateTool) Description() string {
	return `Navigate the browser to a URL.

RETURNS:
- url: The URL that was loaded
- status: "ok" on success`
}
func (t *NavigateTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Absolute URL to load",
			},
		},
		"required": []string{"url"},
	}
}
func (t *NavigateTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	if err := t.driver.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return map[string]interface{}{"url": url, "status": "ok"}, nil
}

// ClickTool clicks an element previously tagged by a snapshot.
type ClickTool struct {
	driver PageDriver
}

func (t *ClickTool) Name() string { return "browser_click" }
func (t *ClickTool) Description() string {
	return `Click an element by the ref assigned in the latest snapshot.

ARGS:
- ref: Element ref from a browser_snapshot result (e.g. "e12")
- element: Human-readable description of the element, for logging only`
}
func (t *ClickTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"ref": map[string]interface{}{
				"type":        "string",
				"description": "Element ref from a prior snapshot",
			},
			"element": map[string]interface{}{
				"type":        "string",
				"description": "Description of the element being clicked",
			},
		},
		"required": []string{"ref"},
	}
}
func (t *ClickTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ref := getStringArg(args, "ref")
	if ref == "" {
		return nil, fmt.Errorf("ref is required")
	}

	if err := t.driver.Click(ctx, ref); err != nil {
		return nil, err
	}
	return map[string]interface{}{"ref": ref, "element": getStringArg(args, "element"), "status": "clicked"}, nil
}

// SnapshotTool captures the page as ref-tagged JSON.
type SnapshotTool struct {
	driver PageDriver
}

func (t *SnapshotTool) Name() string { return "browser_snapshot" }
func (t *SnapshotTool) Description() string {
	return `Capture a snapshot of the current page.

Every visible element is tagged with a ref usable by browser_click.

RETURNS: JSON document with url, title and a nodes array of
{ref, tag, role, label, text} entries.`
}
func (t *SnapshotTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *SnapshotTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	snapshot, err := t.driver.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	// Already JSON; hand it through without re-encoding.
	return json.RawMessage(snapshot), nil
}

// CloseTool shuts the browser down.
type CloseTool struct {
	driver PageDriver
}

func (t *CloseTool) Name() string { return "browser_close" }
func (t *CloseTool) Description() string {
	return "Close the page and shut down the browser."
}
func (t *CloseTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *CloseTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.driver.Shutdown(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "closed"}, nil
}
