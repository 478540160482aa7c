package cache

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/redis/go-redis/v9"
)

const (
	sendWindow = time.Hour

	// MaxOTPAttempts is the number of wrong guesses after which a code is burnt
	MaxOTPAttempts = 5
)

// OTPStore keeps one-time codes with send quotas and attempt counters
type OTPStore struct {
	client   *Client
	ttl      time.Duration
	maxSends int
}

// NewOTPStore creates a code store. Codes live for ttl and at most
// maxSendsPerHour codes are issued per email and purpose.
func NewOTPStore(client *Client, ttl time.Duration, maxSendsPerHour int) *OTPStore {
	return &OTPStore{client: client, ttl: ttl, maxSends: maxSendsPerHour}
}

func otpKey(purpose, email string) string {
	return "otp:" + purpose + ":" + strings.ToLower(email)
}

func sendsKey(purpose, email string) string {
	return "otp_sends:" + purpose + ":" + strings.ToLower(email)
}

func attemptsKey(purpose, email string) string {
	return "otp_attempts:" + purpose + ":" + strings.ToLower(email)
}

// Issue stores code for the email and purpose, replacing any previous code
// and resetting the attempt counter. It fails with a rate_limited error once
// the hourly send quota is used up.
func (s *OTPStore) Issue(ctx context.Context, purpose, email, code string) error {
	rdb := s.client.rdb

	sends, err := rdb.Incr(ctx, sendsKey(purpose, email)).Result()
	if err != nil {
		return apperrors.NewCacheFailed("count otp sends", err)
	}
	if sends == 1 {
		if err := rdb.Expire(ctx, sendsKey(purpose, email), sendWindow).Err(); err != nil {
			return apperrors.NewCacheFailed("expire otp sends", err)
		}
	}
	if int(sends) > s.maxSends {
		retryAfter, err := rdb.TTL(ctx, sendsKey(purpose, email)).Result()
		if err != nil || retryAfter < 0 {
			retryAfter = sendWindow
		}
		return apperrors.NewRateLimited("verification code", retryAfter)
	}

	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, otpKey(purpose, email), code, s.ttl)
		pipe.Del(ctx, attemptsKey(purpose, email))
		return nil
	})
	if err != nil {
		return apperrors.NewCacheFailed("store otp", err)
	}
	return nil
}

// Verify checks code and consumes it on success. Every wrong guess counts
// towards MaxOTPAttempts; reaching it deletes the stored code.
func (s *OTPStore) Verify(ctx context.Context, purpose, email, code string) error {
	rdb := s.client.rdb

	stored, err := rdb.Get(ctx, otpKey(purpose, email)).Result()
	if errors.Is(err, redis.Nil) {
		return apperrors.Validation("verification code expired or was never requested")
	}
	if err != nil {
		return apperrors.NewCacheFailed("get otp", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1 {
		if err := rdb.Del(ctx, otpKey(purpose, email), attemptsKey(purpose, email)).Err(); err != nil {
			return apperrors.NewCacheFailed("consume otp", err)
		}
		return nil
	}

	attempts, err := rdb.Incr(ctx, attemptsKey(purpose, email)).Result()
	if err != nil {
		return apperrors.NewCacheFailed("count otp attempts", err)
	}
	if attempts == 1 {
		_ = rdb.Expire(ctx, attemptsKey(purpose, email), s.ttl).Err()
	}
	if attempts >= MaxOTPAttempts {
		_ = rdb.Del(ctx, otpKey(purpose, email), attemptsKey(purpose, email)).Err()
		return apperrors.Validation("too many incorrect attempts, request a new code")
	}
	return apperrors.Validation("invalid verification code")
}
