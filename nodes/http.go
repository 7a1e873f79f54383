package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/floweave/floweave"
)

// HTTPRequest issues the HTTP call described by the node's config and
// emits the response on the main port. The client carries no timeout of
// its own: the runner bounds each execution through the context.
type HTTPRequest struct {
	// Client may be replaced in tests. nil means http.DefaultClient.
	Client *http.Client
}

func (n *HTTPRequest) Execute(ctx context.Context, call Call) (Output, error) {
	cfg, ok := call.Config.(floweave.HTTPRequestConfig)
	if !ok {
		return nil, fmt.Errorf("nodes: http-request node %s: unexpected config type %T", call.NodeID, call.Config)
	}

	var body io.Reader
	if len(cfg.Body) > 0 {
		body = bytes.NewReader(cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("nodes: http-request node %s: %w", call.NodeID, err)
	}
	if len(cfg.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nodes: http-request node %s: %w", call.NodeID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nodes: http-request node %s: read body: %w", call.NodeID, err)
	}

	// JSON responses are decoded so downstream nodes can address fields;
	// anything else passes through as a string.
	var decoded any
	if json.Unmarshal(raw, &decoded) != nil {
		decoded = string(raw)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("nodes: http-request node %s: %s %s returned %d", call.NodeID, cfg.Method, cfg.URL, resp.StatusCode)
	}

	return Output{floweave.PortMain: map[string]any{
		"status": resp.StatusCode,
		"body":   decoded,
		"url":    cfg.URL,
	}}, nil
}
