package proxy_test

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/storewatch/internal/proxy"
)

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"http", "http://p1:8080", "http://p1:8080", false},
		{"credentials", "http://user:pass@p1:8080", "http://user:pass@p1:8080", false},
		{"socks5", "socks5://p2:1080", "socks5://p2:1080", false},
		{"socks5h", " socks5h://p3:1080 ", "socks5h://p3:1080", false},
		{"bare host", "p4:3128", "http://p4:3128", false},
		{"empty", "   ", "", true},
		{"no host", "http://", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ep, err := proxy.ParseEndpoint(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, ep.HTTP)
			assert.Equal(t, tc.want, ep.HTTPS)
		})
	}
}

func TestParseList(t *testing.T) {
	eps, err := proxy.ParseList("http://a:1, ,http://b:2", "", "socks5://c:3")
	require.NoError(t, err)
	require.Len(t, eps, 3)
	assert.Equal(t, "http://a:1", eps[0].String())
	assert.Equal(t, "http://b:2", eps[1].String())
	assert.Equal(t, "socks5://c:3", eps[2].String())

	eps, err = proxy.ParseList("")
	require.NoError(t, err)
	assert.Empty(t, eps)
}

func TestRotator_RoundRobin(t *testing.T) {
	eps, err := proxy.ParseList("http://p1:1,http://p2:2,http://p3:3")
	require.NoError(t, err)
	r := proxy.NewRotator(eps)

	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, r.Next().String())
	}
	assert.Equal(t, []string{"http://p1:1", "http://p2:2", "http://p3:3", "http://p1:1"}, got)
}

func TestRotator_Empty(t *testing.T) {
	r := proxy.NewRotator(nil)
	assert.Nil(t, r.Next())
	assert.False(t, r.Info().Enabled)
}

func TestRotator_OverrideWins(t *testing.T) {
	eps, err := proxy.ParseList("http://p1:1,http://p2:2")
	require.NoError(t, err)
	r := proxy.NewRotator(eps)

	require.NoError(t, r.SetOverride("http://manual:9"))
	for i := 0; i < 3; i++ {
		assert.Equal(t, "http://manual:9", r.Next().String())
	}
	info := r.Info()
	assert.True(t, info.HasOverride)
	assert.Equal(t, "http://manual:9", info.Override)
	assert.Equal(t, 0, info.Cursor)

	// Clearing resumes rotation where it stopped.
	require.NoError(t, r.SetOverride(""))
	assert.Equal(t, "", r.Info().Override)
	assert.Equal(t, "http://p1:1", r.Next().String())
}

func TestRotator_OverrideInvalid(t *testing.T) {
	r := proxy.NewRotator(nil)
	assert.Error(t, r.SetOverride("http://"))
	assert.Nil(t, r.Next())
}

func TestRotator_Concurrent(t *testing.T) {
	eps, err := proxy.ParseList("http://p1:1,http://p2:2")
	require.NoError(t, err)
	r := proxy.NewRotator(eps)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[string]int{}
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep := r.Next()
			mu.Lock()
			counts[ep.String()]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counts["http://p1:1"])
	assert.Equal(t, 50, counts["http://p2:2"])
}

func TestNewTransport(t *testing.T) {
	tr, err := proxy.NewTransport(nil, time.Second)
	require.NoError(t, err)
	assert.Nil(t, tr.Proxy)

	ep, _ := proxy.ParseEndpoint("http://p1:8080")
	tr, err = proxy.NewTransport(&ep, time.Second)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodGet, "https://shop.example", nil)
	u, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "p1:8080", u.Host)

	ep, _ = proxy.ParseEndpoint("socks5h://p2:1080")
	tr, err = proxy.NewTransport(&ep, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, tr.DialContext)

	ep, _ = proxy.ParseEndpoint("ftp://p3:21")
	_, err = proxy.NewTransport(&ep, time.Second)
	assert.Error(t, err)
}

func TestIsProxyError(t *testing.T) {
	assert.True(t, proxy.IsProxyError(&net.OpError{Op: "proxyconnect", Net: "tcp", Err: errors.New("refused")}))
	assert.True(t, proxy.IsProxyError(&net.OpError{Op: "socks connect", Net: "tcp", Err: errors.New("refused")}))
	assert.False(t, proxy.IsProxyError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}))
	assert.False(t, proxy.IsProxyError(errors.New("no such host")))
}
