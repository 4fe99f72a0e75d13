package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// NewTransport builds a transport that sends requests through ep, or
// directly when ep is nil.
func NewTransport(ep *Endpoint, timeout time.Duration) (*http.Transport, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = nil
	base.TLSHandshakeTimeout = timeout
	base.ResponseHeaderTimeout = timeout

	if ep == nil {
		return base, nil
	}

	u, err := url.Parse(ep.String())
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		base.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		forward := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
		dialer, err := xproxy.FromURL(u, forward)
		if err != nil {
			return nil, fmt.Errorf("socks dialer: %w", err)
		}
		cd, ok := dialer.(xproxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer for %s does not support contexts", u.Redacted())
		}
		base.DialContext = cd.DialContext
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return base, nil
}

// IsProxyError reports whether err happened while reaching the proxy
// rather than the target.
func IsProxyError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "proxyconnect" || strings.HasPrefix(opErr.Op, "socks") {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "proxyconnect") || strings.Contains(msg, "socks connect")
}
