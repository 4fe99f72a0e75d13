// Package httpprobe checks one storefront URL with a single GET and
// classifies the outcome.
package httpprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/storewatch/internal/classifier"
	"github.com/user/storewatch/internal/delay"
	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/proxy"
	"github.com/user/storewatch/pkg/metrics"
	"github.com/user/storewatch/pkg/utils"
)

// DefaultUserAgent is sent with every probe.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	defaultTimeout       = 10 * time.Second
	minVerifyDelay       = time.Second
	maxBodyBytes         = 10 << 20
	directClientKey      = ""
	maxRedirectsToFollow = 10
)

var errProxySetup = errors.New("proxy setup failed")

// Config holds probe settings. Zero values fall back to defaults.
type Config struct {
	Timeout     time.Duration
	VerifyDelay time.Duration
	UserAgent   string
}

// Probe performs classified checks. Each probe owns its rotator; share a
// Probe between goroutines only if they may share a rotation.
type Probe struct {
	cfg        Config
	classifier *classifier.Classifier
	rotator    *proxy.Rotator
	delay      *delay.Policy
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New creates a probe.
func New(cfg Config, c *classifier.Classifier, r *proxy.Rotator, d *delay.Policy, m *metrics.Metrics, logger *zap.Logger) *Probe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.VerifyDelay < minVerifyDelay {
		cfg.VerifyDelay = minVerifyDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Probe{
		cfg:        cfg,
		classifier: c,
		rotator:    r,
		delay:      d,
		metrics:    m,
		logger:     logger,
		clients:    make(map[string]*http.Client),
	}
}

// Check runs one classified GET against rawURL. It never returns an error:
// failures are folded into the label.
func (p *Probe) Check(ctx context.Context, rawURL string) (res entity.ProbeResult) {
	target := utils.NormalizeStoreURL(rawURL)
	res = entity.ProbeResult{URL: target, Region: p.delay.RandomRegion()}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("probe panicked", zap.String("url", target), zap.Any("panic", r))
			res.Label = entity.LabelOf(entity.StatusUnknown)
			res.HTTPStatus = 0
			res.Err = fmt.Errorf("%w: %v", classifier.ErrInternal, r)
		}
		res.ResponseTime = time.Since(start)
		p.metrics.ObserveProbe(string(res.Label.Status), res.Proxy != "", res.ResponseTime)
	}()

	ep := p.rotator.Next()
	if ep != nil {
		res.Proxy = utils.RedactURL(ep.String())
	}

	code, body, err := p.fetch(ctx, target, ep)
	if err != nil && ep != nil && (proxy.IsProxyError(err) || errors.Is(err, errProxySetup)) {
		p.logger.Warn("proxy failed, retrying direct",
			zap.String("url", target), zap.String("proxy", res.Proxy), zap.Error(err))
		p.metrics.IncProxyFallback()
		res.FellBack = true
		code, body, err = p.fetch(ctx, target, nil)
		if err != nil {
			res.Label = entity.LabelOf(entity.StatusDead)
			res.Err = err
			return res
		}
	}
	if err != nil {
		res.Label = classifier.ClassifyError(err)
		res.Err = err
		p.logger.Debug("probe failed", zap.String("url", target), zap.String("label", res.Label.String()), zap.Error(err))
		return res
	}

	res.HTTPStatus = code
	res.Label = p.classifier.Classify(code, body)
	if classifier.DetectStorefront(body) {
		res.Storefront = true
		p.metrics.IncStorefront()
	}
	return res
}

// Verify checks rawURL and, when the first result is DEAD, waits and
// returns a second check instead.
func (p *Probe) Verify(ctx context.Context, rawURL string) entity.ProbeResult {
	first := p.Check(ctx, rawURL)
	if first.Label.Status != entity.StatusDead {
		return first
	}

	t := time.NewTimer(p.cfg.VerifyDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return first
	case <-t.C:
	}

	second := p.Check(ctx, rawURL)
	p.logger.Debug("re-checked dead store",
		zap.String("url", second.URL), zap.String("label", second.Label.String()))
	return second
}

// Pause waits one policy delay between two batch items.
func (p *Probe) Pause(ctx context.Context) error {
	return p.delay.Wait(ctx)
}

func (p *Probe) fetch(ctx context.Context, target string, ep *proxy.Endpoint) (int, string, error) {
	client, err := p.client(ep)
	if err != nil {
		return 0, "", &classifier.TransportError{Err: fmt.Errorf("%w: %v", errProxySetup, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", &classifier.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, "", &classifier.TransportError{Err: fmt.Errorf("read body: %w", err)}
	}
	return resp.StatusCode, string(body), nil
}

func (p *Probe) client(ep *proxy.Endpoint) (*http.Client, error) {
	key := directClientKey
	if ep != nil {
		key = ep.String()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	tr, err := proxy.NewTransport(ep, p.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	c := &http.Client{
		Transport: tr,
		Timeout:   p.cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirectsToFollow {
				return fmt.Errorf("stopped after %d redirects", maxRedirectsToFollow)
			}
			return nil
		},
	}
	p.clients[key] = c
	return c, nil
}
