package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxLookupResponseBytes = 1 << 20 // 1 MiB safety cap

// Location is the only part of a lookup response the pipeline depends on.
// Richer payloads are ignored.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// IsZero reports whether no field was resolved.
func (l Location) IsZero() bool {
	return l.Country == "" && l.City == ""
}

// Lookup resolves an address to a location or reports an error. Callers treat
// every error, including timeouts, as "no location".
type Lookup interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

// HTTPLookup queries a remote JSON geolocation endpoint, with the address
// appended as the final path segment.
type HTTPLookup struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPLookup(baseURL string, timeout time.Duration) *HTTPLookup {
	return &HTTPLookup{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPLookup) Lookup(ctx context.Context, ip string) (Location, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint := h.BaseURL + "/" + url.PathEscape(ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Location{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	limited := io.LimitReader(resp.Body, maxLookupResponseBytes)
	payload, err := io.ReadAll(limited)
	if err != nil {
		return Location{}, fmt.Errorf("read response: %w", err)
	}

	var location Location
	if err := json.Unmarshal(payload, &location); err != nil {
		return Location{}, fmt.Errorf("decode response: %w", err)
	}

	return location, nil
}
