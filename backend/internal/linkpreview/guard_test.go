package linkpreview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocked(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.1.2.3", true},
		{"172.16.0.9", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"0.0.0.0", true},
		{"100.64.0.1", true},
		{"::ffff:127.0.0.1", true},
		{"93.184.216.34", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, blocked(netip.MustParseAddr(tt.addr)), tt.addr)
	}
}

func TestGuardedClient_RefusesLoopback(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>internal</title></head></html>`))
	}))
	defer server.Close()

	f := NewFetcher(NewGuardedClient(time.Second))
	_, err := f.Fetch(context.Background(), server.URL+"/admin")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.Zero(t, hits.Load())

	assert.Nil(t, f.Preview(context.Background(), "see "+server.URL))
	assert.Zero(t, hits.Load())
}

func TestCheckRedirect(t *testing.T) {
	redirect := func(target string) error {
		req, err := http.NewRequest(http.MethodGet, target, nil)
		require.NoError(t, err)
		return checkRedirect(req, []*http.Request{{}})
	}

	assert.ErrorIs(t, redirect("http://169.254.169.254/latest/meta-data"), ErrBlockedAddress)
	assert.ErrorIs(t, redirect("http://localhost:8080/"), ErrBlockedAddress)
	assert.ErrorIs(t, redirect("http://[::1]/"), ErrBlockedAddress)
	assert.Error(t, redirect("file:///etc/passwd"))
	assert.NoError(t, redirect("https://example.com/next"))

	req, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	require.NoError(t, err)
	assert.Error(t, checkRedirect(req, make([]*http.Request, maxRedirects)))
}
