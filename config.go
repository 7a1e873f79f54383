package floweave

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ManualTriggerConfig is the configuration of a manual-trigger node. The
// node carries no settings of its own; the payload it emits is supplied
// when the run is started.
type ManualTriggerConfig struct{}

// HTTPRequestConfig is the configuration of an http-request node.
type HTTPRequestConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	// TimeoutSeconds overrides the runner's per-node timeout. 0 keeps the
	// runner default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Timeout returns the configured per-node timeout, or 0 for none.
func (c HTTPRequestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

var httpMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// DecodeConfig parses a node's raw config into the typed struct for its
// kind. Unknown kinds and malformed configs are rejected here, at load
// time, so handlers never see an untyped or invalid config.
func DecodeConfig(kind NodeKind, raw json.RawMessage) (any, error) {
	switch kind {
	case KindManualTrigger:
		return ManualTriggerConfig{}, nil
	case KindHTTPRequest:
		var cfg HTTPRequestConfig
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("floweave: http-request config: %w", err)
			}
		}
		if cfg.URL == "" {
			return nil, fmt.Errorf("floweave: http-request config: url is required")
		}
		if cfg.Method == "" {
			cfg.Method = http.MethodGet
		}
		if !httpMethods[cfg.Method] {
			return nil, fmt.Errorf("floweave: http-request config: unsupported method %q", cfg.Method)
		}
		return cfg, nil
	case KindInitial:
		return nil, fmt.Errorf("floweave: node kind %q is not executable", kind)
	default:
		return nil, fmt.Errorf("floweave: unknown node kind %q", kind)
	}
}
