package apistatus

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPProbe issues a GET against url and treats any 2xx/3xx response as
// healthy. It is the default probe shape for the REST-style price and
// explorer providers, none of which expose a dedicated health endpoint.
type HTTPProbe struct {
	client *http.Client
	url    string
}

// NewHTTPProbe builds an HTTPProbe with a short-lived client, independent of
// whatever client the owning component uses for its real requests so a slow
// probe can never starve request traffic.
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{client: &http.Client{Timeout: 8 * time.Second}, url: url}
}

func (p *HTTPProbe) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe %s: status %d", p.url, resp.StatusCode)
	}
	return nil
}

// JSONRPCProbe issues a minimal JSON-RPC request and treats any response
// with a status below 400 as healthy without inspecting the body; Solana
// RPC nodes return a JSON-RPC error body for bad params but still answer
// with 200, so answering at all is itself the signal of liveness.
type JSONRPCProbe struct {
	client *http.Client
	url    string
	method string
}

// NewJSONRPCProbe builds a JSONRPCProbe calling method with no params.
func NewJSONRPCProbe(url, method string) *JSONRPCProbe {
	return &JSONRPCProbe{client: &http.Client{Timeout: 8 * time.Second}, url: url, method: method}
}

func (p *JSONRPCProbe) Probe(ctx context.Context) error {
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":[]}`, p.method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe %s: status %d", p.url, resp.StatusCode)
	}
	return nil
}
