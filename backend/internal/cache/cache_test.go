package cache

import (
	"context"
	"testing"
	"time"

	"circlenet/backend/internal/metrics"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis, *metrics.Collector) {
	t.Helper()

	mr := miniredis.RunT(t)
	collector := metrics.NewCollector("cache_test")
	client, err := Connect(context.Background(), "redis://"+mr.Addr(), collector)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })
	return client, mr, collector
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-url", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeCache))
}

func TestJSONRoundTripAndMetrics(t *testing.T) {
	client, mr, collector := setupTestClient(t)
	ctx := context.Background()

	var out []string
	hit, err := client.GetJSON(ctx, "feed:1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, client.SetJSON(ctx, "feed:1", []string{"a", "b"}, time.Minute))
	hit, err = client.GetJSON(ctx, "feed:1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a", "b"}, out)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.CacheMisses))

	mr.FastForward(2 * time.Minute)
	hit, err = client.GetJSON(ctx, "feed:1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestVersionBump(t *testing.T) {
	client, _, _ := setupTestClient(t)
	ctx := context.Background()

	v, err := client.Version(ctx, "opportunities")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	require.NoError(t, client.Bump(ctx, "opportunities"))
	require.NoError(t, client.Bump(ctx, "opportunities"))
	v, err = client.Version(ctx, "opportunities")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestOTP_IssueAndVerify(t *testing.T) {
	client, mr, _ := setupTestClient(t)
	ctx := context.Background()
	otp := NewOTPStore(client, 10*time.Minute, 5)

	require.NoError(t, otp.Issue(ctx, "verify", "Ann@Example.com", "123456"))
	stored, err := mr.Get("otp:verify:ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", stored)

	err = otp.Verify(ctx, "verify", "ann@example.com", "000000")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	require.NoError(t, otp.Verify(ctx, "verify", "ann@example.com", "123456"))
	assert.False(t, mr.Exists("otp:verify:ann@example.com"))

	// consumed
	err = otp.Verify(ctx, "verify", "ann@example.com", "123456")
	assert.Equal(t, "verification code expired or was never requested", apperrors.MessageOf(err))
}

func TestOTP_Expires(t *testing.T) {
	client, mr, _ := setupTestClient(t)
	ctx := context.Background()
	otp := NewOTPStore(client, time.Minute, 5)

	require.NoError(t, otp.Issue(ctx, "reset", "bob@example.com", "654321"))
	mr.FastForward(2 * time.Minute)

	err := otp.Verify(ctx, "reset", "bob@example.com", "654321")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestOTP_AttemptLimitBurnsCode(t *testing.T) {
	client, mr, _ := setupTestClient(t)
	ctx := context.Background()
	otp := NewOTPStore(client, 10*time.Minute, 5)

	require.NoError(t, otp.Issue(ctx, "verify", "c@example.com", "111111"))
	for i := 1; i < MaxOTPAttempts; i++ {
		err := otp.Verify(ctx, "verify", "c@example.com", "999999")
		assert.Equal(t, "invalid verification code", apperrors.MessageOf(err))
	}
	err := otp.Verify(ctx, "verify", "c@example.com", "999999")
	assert.Equal(t, "too many incorrect attempts, request a new code", apperrors.MessageOf(err))
	assert.False(t, mr.Exists("otp:verify:c@example.com"))

	// the right code no longer works either
	err = otp.Verify(ctx, "verify", "c@example.com", "111111")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestOTP_SendQuota(t *testing.T) {
	client, mr, _ := setupTestClient(t)
	ctx := context.Background()
	otp := NewOTPStore(client, 10*time.Minute, 2)

	require.NoError(t, otp.Issue(ctx, "verify", "d@example.com", "1"))
	require.NoError(t, otp.Issue(ctx, "verify", "d@example.com", "2"))

	err := otp.Issue(ctx, "verify", "d@example.com", "3")
	require.Error(t, err)
	var limited *apperrors.ErrRateLimited
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfter, time.Duration(0))

	// other purposes have their own quota
	require.NoError(t, otp.Issue(ctx, "reset", "d@example.com", "4"))

	mr.FastForward(61 * time.Minute)
	require.NoError(t, otp.Issue(ctx, "verify", "d@example.com", "5"))
}

func TestFeedKey(t *testing.T) {
	type filter struct {
		Category string
		Limit    int
	}
	a, err := FeedKey("service", 3, filter{Category: "design", Limit: 20})
	require.NoError(t, err)
	b, err := FeedKey("service", 3, filter{Category: "design", Limit: 20})
	require.NoError(t, err)
	c, err := FeedKey("service", 4, filter{Category: "design", Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^feed:service:v3:[0-9a-f]{24}$`, a)
}
