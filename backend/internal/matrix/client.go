package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"circlenet/backend/internal/metrics"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const maxResponseBytes = 4 << 20

// Config holds homeserver connection settings
type Config struct {
	HomeserverURL     string
	RegistrationToken string
	HTTPClient        *http.Client
	Timeout           time.Duration
}

// Client talks to a Matrix homeserver over the client-server API. All calls
// pass through one circuit breaker; 4xx responses do not count as failures.
type Client struct {
	baseURL           string
	registrationToken string
	httpClient        *http.Client
	breaker           *gobreaker.CircuitBreaker
	metrics           *metrics.Collector
	logger            *zap.Logger
}

// NewClient creates a homeserver client
func NewClient(cfg Config, collector *metrics.Collector) (*Client, error) {
	if cfg.HomeserverURL == "" {
		return nil, apperrors.NewConfigMissingRequired("MATRIX_HOMESERVER_URL")
	}
	if _, err := url.Parse(cfg.HomeserverURL); err != nil {
		return nil, fmt.Errorf("invalid homeserver URL %q: %w", cfg.HomeserverURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	log := logger.Named("matrix")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "matrix-homeserver",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			var matrixErr *MatrixError
			if errors.As(err, &matrixErr) {
				return matrixErr.StatusCode < 500
			}
			return err == nil
		},
	})

	return &Client{
		baseURL:           strings.TrimRight(cfg.HomeserverURL, "/"),
		registrationToken: cfg.RegistrationToken,
		httpClient:        httpClient,
		breaker:           breaker,
		metrics:           collector,
		logger:            log,
	}, nil
}

// Session returns an authenticated handle for an existing access token
func (c *Client) Session(userID, accessToken string) *Session {
	return &Session{client: c, userID: userID, accessToken: accessToken}
}

// Register creates an account using the registration-token UIAA flow. The
// first attempt returns 401 with a session id; the second completes the
// m.login.registration_token stage.
func (c *Client) Register(ctx context.Context, username, password string) (*AuthResponse, error) {
	if username == "" || password == "" {
		return nil, apperrors.Validation("matrix username and password are required")
	}

	first := map[string]interface{}{
		"username":                    username,
		"password":                    password,
		"initial_device_display_name": "circlenet",
	}
	body, err := c.do(ctx, "register", http.MethodPost, "/_matrix/client/v3/register", "", first, nil)
	if err == nil {
		return decodeAuth(body)
	}

	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) || matrixErr.StatusCode != http.StatusUnauthorized {
		return nil, apperrors.NewMatrixRequestFailed("register", err)
	}

	var uiaa struct {
		Session string `json:"session"`
	}
	if jsonErr := json.Unmarshal(body, &uiaa); jsonErr != nil || uiaa.Session == "" {
		return nil, apperrors.NewMatrixRequestFailed("register", fmt.Errorf("registration challenge missing session id"))
	}

	complete := map[string]interface{}{
		"username":                    username,
		"password":                    password,
		"initial_device_display_name": "circlenet",
		"auth": map[string]interface{}{
			"type":    "m.login.registration_token",
			"token":   c.registrationToken,
			"session": uiaa.Session,
		},
	}
	body, err = c.do(ctx, "register", http.MethodPost, "/_matrix/client/v3/register", "", complete, nil)
	if err != nil {
		return nil, apperrors.NewMatrixRequestFailed("register", err)
	}

	auth, err := decodeAuth(body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Registered matrix account",
		zap.String("matrix_user_id", auth.UserID),
		zap.String("device_id", auth.DeviceID),
	)
	return auth, nil
}

func decodeAuth(body []byte) (*AuthResponse, error) {
	var auth AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, apperrors.NewMatrixRequestFailed("register", fmt.Errorf("parse response: %w", err))
	}
	return &auth, nil
}

// do performs one request through the breaker. On a homeserver error the
// response body is returned alongside the *MatrixError.
func (c *Client) do(ctx context.Context, op, method, path, accessToken string, payload interface{}, query url.Values) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, path, accessToken, payload, query)
	})
	c.metrics.ObserveMatrix(op, err)

	body, _ := result.([]byte)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("Matrix request rejected by circuit breaker", zap.String("operation", op))
		}
		return body, err
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path, accessToken string, payload interface{}, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	matrixErr := &MatrixError{StatusCode: resp.StatusCode}
	if jsonErr := json.Unmarshal(body, matrixErr); jsonErr != nil {
		matrixErr.Code = "M_UNKNOWN"
		matrixErr.Message = strings.TrimSpace(string(body))
	}
	return body, matrixErr
}
