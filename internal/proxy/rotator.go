// Package proxy holds the outbound proxy endpoints used by the store
// probe and hands them out round robin.
package proxy

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Endpoint is one proxy, addressed per target scheme. Both URLs are the
// same for every supported proxy type.
type Endpoint struct {
	HTTP  string `json:"http"`
	HTTPS string `json:"https"`
}

// String returns the proxy URL.
func (e Endpoint) String() string {
	if e.HTTP != "" {
		return e.HTTP
	}
	return e.HTTPS
}

// ParseEndpoint accepts http://, https://, socks5:// and socks5h:// URLs,
// with optional credentials. A bare host:port is treated as http.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("empty proxy url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("proxy url %q has no host", raw)
	}
	// Unknown schemes are kept as given; the transport rejects them later.
	return Endpoint{HTTP: raw, HTTPS: raw}, nil
}

// ParseList parses each configuration string, splitting on commas and
// skipping blanks. Order is preserved.
func ParseList(sources ...string) ([]Endpoint, error) {
	var endpoints []Endpoint
	for _, src := range sources {
		for _, part := range strings.Split(src, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			ep, err := ParseEndpoint(part)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints, nil
}

// Info is a snapshot of the rotator for display.
type Info struct {
	Enabled     bool   `json:"enabled"`
	Total       int    `json:"total_proxies"`
	Cursor      int    `json:"current_index"`
	Override    string `json:"manual_proxy,omitempty"`
	HasOverride bool   `json:"has_manual_proxy"`
}

// Rotator hands out proxies: the manual override when one is set,
// otherwise the configured list in round robin order.
type Rotator struct {
	mu       sync.Mutex
	proxies  []Endpoint
	cursor   int
	override *Endpoint
}

// NewRotator creates a rotator over the given endpoints.
func NewRotator(endpoints []Endpoint) *Rotator {
	return &Rotator{proxies: append([]Endpoint(nil), endpoints...)}
}

// Next returns the proxy for the next request, or nil for a direct one.
// The override does not consume a rotation slot.
func (r *Rotator) Next() *Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.override != nil {
		ep := *r.override
		return &ep
	}
	if len(r.proxies) == 0 {
		return nil
	}
	ep := r.proxies[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.proxies)
	return &ep
}

// SetOverride pins every request to raw. An empty raw clears the pin.
func (r *Rotator) SetOverride(raw string) error {
	if strings.TrimSpace(raw) == "" {
		r.mu.Lock()
		r.override = nil
		r.mu.Unlock()
		return nil
	}
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.override = &ep
	r.mu.Unlock()
	return nil
}

// Info returns a snapshot for display.
func (r *Rotator) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := Info{
		Enabled: len(r.proxies) > 0 || r.override != nil,
		Total:   len(r.proxies),
		Cursor:  r.cursor,
	}
	if r.override != nil {
		info.Override = r.override.String()
		info.HasOverride = true
	}
	return info
}
