package httpprobe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/storewatch/internal/adapter/httpprobe"
	"github.com/user/storewatch/internal/classifier"
	"github.com/user/storewatch/internal/delay"
	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/proxy"
	"github.com/user/storewatch/pkg/metrics"
)

func newProbe(t *testing.T, proxies string, cfg httpprobe.Config) (*httpprobe.Probe, *metrics.Metrics) {
	t.Helper()
	eps, err := proxy.ParseList(proxies)
	require.NoError(t, err)
	pol, err := delay.New(delay.Config{MinDelay: 0, MaxDelay: 0}, delay.WithSeed(1))
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	return httpprobe.New(cfg, classifier.New(), proxy.NewRotator(eps), pol, m, zap.NewNop()), m
}

// closedURL returns the address of a server that is no longer listening.
func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func TestCheck_Classifies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><script src="https://cdn.shopify.com/x.js"></script></html>`))
	})
	mux.HandleFunc("/unpaid", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<h1>Sorry, this store is currently unavailable.</h1>`))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/live", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, m := newProbe(t, "", httpprobe.Config{})

	testCases := []struct {
		path       string
		want       entity.Label
		code       int
		storefront bool
	}{
		{"/live", entity.LabelOf(entity.StatusLive), 200, true},
		{"/unpaid", entity.LabelOf(entity.StatusUnpaid), 200, false},
		{"/missing", entity.LabelOf(entity.StatusDead), 404, false},
		{"/forbidden", entity.LabelOf(entity.StatusUnpaid), 403, false},
		{"/teapot", entity.Label{Status: entity.StatusUnknown, Code: 418}, 418, false},
		{"/broken", entity.LabelOf(entity.StatusUnknown), 502, false},
		{"/moved", entity.LabelOf(entity.StatusLive), 200, true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			res := p.Check(context.Background(), srv.URL+tc.path)
			assert.Equal(t, tc.want, res.Label)
			assert.Equal(t, tc.code, res.HTTPStatus)
			assert.Equal(t, tc.storefront, res.Storefront)
			assert.Contains(t, delay.RegionZones, res.Region)
			assert.NoError(t, res.Err)
			assert.Empty(t, res.Proxy)
		})
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProbesTotal.WithLabelValues("LIVE")))
}

func TestCheck_SendsUserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.UserAgent())
	}))
	defer srv.Close()

	p, _ := newProbe(t, "", httpprobe.Config{})
	p.Check(context.Background(), srv.URL)
	assert.Equal(t, httpprobe.DefaultUserAgent, got.Load())
}

func TestCheck_UnreachableIsDead(t *testing.T) {
	p, _ := newProbe(t, "", httpprobe.Config{Timeout: time.Second})

	res := p.Check(context.Background(), closedURL(t))
	assert.Equal(t, entity.StatusDead, res.Label.Status)
	assert.Error(t, res.Err)
	assert.Zero(t, res.HTTPStatus)
}

func TestCheck_TimeoutIsDead(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p, _ := newProbe(t, "", httpprobe.Config{Timeout: 100 * time.Millisecond})
	res := p.Check(context.Background(), srv.URL)
	assert.Equal(t, entity.StatusDead, res.Label.Status)
}

func TestCheck_DeadProxyFallsBackToDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("welcome"))
	}))
	defer srv.Close()

	p, m := newProbe(t, closedURL(t), httpprobe.Config{Timeout: time.Second})

	res := p.Check(context.Background(), srv.URL)
	assert.Equal(t, entity.StatusLive, res.Label.Status)
	assert.True(t, res.FellBack)
	assert.NotEmpty(t, res.Proxy)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProxyFallbacksTotal))
}

func TestCheck_DeadProxyAndDeadTarget(t *testing.T) {
	p, _ := newProbe(t, closedURL(t), httpprobe.Config{Timeout: time.Second})

	res := p.Check(context.Background(), closedURL(t))
	assert.Equal(t, entity.StatusDead, res.Label.Status)
	assert.True(t, res.FellBack)
}

func TestCheck_UnsupportedProxySchemeFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p, _ := newProbe(t, "ftp://p1:21", httpprobe.Config{})

	res := p.Check(context.Background(), srv.URL)
	assert.Equal(t, entity.StatusLive, res.Label.Status)
	assert.True(t, res.FellBack)
}

func TestCheck_ProxyIsUsed(t *testing.T) {
	var proxied atomic.Int32
	// An HTTP proxy receives absolute-form requests for http targets.
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied.Add(1)
		assert.Equal(t, "shop.invalid", r.URL.Host)
		_, _ = w.Write([]byte("via proxy"))
	}))
	defer proxySrv.Close()

	p, _ := newProbe(t, proxySrv.URL, httpprobe.Config{})
	res := p.Check(context.Background(), "http://shop.invalid/")
	assert.Equal(t, entity.StatusLive, res.Label.Status)
	assert.False(t, res.FellBack)
	assert.Equal(t, int32(1), proxied.Load())
}

func TestCheck_SchemelessHostStartingWithHTTP(t *testing.T) {
	var connectHost atomic.Value
	// An HTTP proxy sees CONNECT host:443 for https targets.
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodConnect {
			connectHost.Store(r.Host)
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer proxySrv.Close()

	p, _ := newProbe(t, proxySrv.URL, httpprobe.Config{Timeout: time.Second})
	res := p.Check(context.Background(), "httpbin-shop.invalid")

	assert.Equal(t, "https://httpbin-shop.invalid", res.URL)
	assert.Equal(t, "httpbin-shop.invalid:443", connectHost.Load())
	if res.Err != nil {
		assert.NotContains(t, res.Err.Error(), "unsupported protocol scheme")
	}
}

func TestVerify_RechecksDead(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("back"))
	}))
	defer srv.Close()

	p, _ := newProbe(t, "", httpprobe.Config{VerifyDelay: time.Millisecond})

	start := time.Now()
	res := p.Verify(context.Background(), srv.URL)
	assert.Equal(t, entity.StatusLive, res.Label.Status)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestVerify_KeepsNonDead(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p, _ := newProbe(t, "", httpprobe.Config{})
	res := p.Verify(context.Background(), srv.URL)
	assert.Equal(t, entity.StatusUnpaid, res.Label.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestVerify_CancelledKeepsFirst(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p, _ := newProbe(t, "", httpprobe.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := p.Verify(ctx, srv.URL)
	assert.Equal(t, entity.StatusDead, res.Label.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPause(t *testing.T) {
	p, _ := newProbe(t, "", httpprobe.Config{})
	assert.NoError(t, p.Pause(context.Background()))
}
