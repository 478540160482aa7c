package storage

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresigner() *Presigner {
	return NewPresigner(Config{
		Endpoint:  "http://localhost:9000/",
		Region:    "us-east-1",
		Bucket:    "circlenet-media",
		AccessKey: "minio",
		SecretKey: "minio-secret",
		TTL:       15 * time.Minute,
	})
}

func TestPresignPut(t *testing.T) {
	p := newTestPresigner()

	signed, err := p.PresignPut(context.Background(), "profiles/u-1/avatar/abc", "image/png")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, signed.Method)
	assert.Equal(t, "profiles/u-1/avatar/abc", signed.Key)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/circlenet-media/profiles/u-1/avatar/abc", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), signed.ExpiresAt, time.Minute)
}

func TestPresignGet(t *testing.T) {
	p := newTestPresigner()

	signed, err := p.PresignGet(context.Background(), "profiles/u-1/cover/xyz")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, signed.Method)
	assert.Contains(t, signed.URL, "/circlenet-media/profiles/u-1/cover/xyz")
}
