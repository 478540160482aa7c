package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"circlenet/backend/internal/agentic"
	"circlenet/backend/internal/auth"
	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/metrics"
	"circlenet/backend/internal/store"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	AuthService
	signup auth.SignupInput
	meFor  string
	err    error
}

func (s *stubAuth) Signup(_ context.Context, in auth.SignupInput) (string, error) {
	s.signup = in
	return "u-new", s.err
}

func (s *stubAuth) Login(_ context.Context, identifier, _ string) (*auth.TokenPair, *store.Account, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return &auth.TokenPair{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"},
		&store.Account{ID: "u1", Username: identifier, IsVerified: true}, nil
}

func (s *stubAuth) Me(_ context.Context, userID string) (*auth.Me, error) {
	s.meFor = userID
	return &auth.Me{Account: &store.Account{ID: userID, Username: "alice"}}, nil
}

type stubProfiles struct {
	ProfileService
	deletedKind graph.ProfileItemKind
	deletedUID  string
}

func (s *stubProfiles) DeleteItem(_ context.Context, _ string, kind graph.ProfileItemKind, uid string) error {
	s.deletedKind, s.deletedUID = kind, uid
	return nil
}

type stubOpportunities struct {
	OpportunityService
	filter graph.OpportunityFilter
}

func (s *stubOpportunities) Feed(_ context.Context, viewerUID string, filter graph.OpportunityFilter) ([]graph.Opportunity, error) {
	s.filter = filter
	return []graph.Opportunity{{UID: "o1", Role: "Engineer"}}, nil
}

type stubAgents struct {
	AgentService
	moderation agentic.ModerationInput
	err        error
}

func (s *stubAgents) ModerateUser(_ context.Context, _, _, _ string, in agentic.ModerationInput) error {
	s.moderation = in
	return s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type fixture struct {
	router *gin.Engine
	tokens *auth.TokenManager
	auth   *stubAuth
	deps   Deps
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewTokenManager("test-secret", "circlenet-test", time.Hour, 24*time.Hour)
	require.NoError(t, err)

	f := &fixture{tokens: tokens, auth: &stubAuth{}}
	f.deps = Deps{
		Tokens:        tokens,
		Auth:          f.auth,
		Profiles:      &stubProfiles{},
		Opportunities: &stubOpportunities{},
		Agents:        &stubAgents{},
		Health:        map[string]Pinger{"neo4j": stubPinger{}, "redis": stubPinger{}},
	}
	f.router = NewRouter(f.deps, opts)
	return f
}

func (f *fixture) bearer(t *testing.T, uid string) string {
	t.Helper()
	pair, err := f.tokens.Issue(uid, "alice")
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]interface{}{"neo4j": "ok", "redis": "ok"}, body["checks"])
}

func TestHealth_Degraded(t *testing.T) {
	f := newFixture(t, Options{})
	f.deps.Health["redis"] = stubPinger{err: errors.New("connection refused")}
	router := NewRouter(f.deps, Options{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["checks"].(map[string]interface{})["redis"])
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "authorization header required", resp.Message)

	w = f.do(http.MethodGet, "/api/v1/me", "Bearer not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	refresh, err := f.tokens.Issue("u1", "alice")
	require.NoError(t, err)
	w = f.do(http.MethodGet, "/api/v1/me", "Bearer "+refresh.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodGet, "/api/v1/me", f.bearer(t, "u1"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", f.auth.meFor)
}

func TestSignup_Validation(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username":   "alice",
		"email":      "not-an-email",
		"first_name": "Alice",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "validation failed", resp.Message)
	assert.Contains(t, resp.Errors, "email must be a valid email address")
	assert.Contains(t, resp.Errors, "password is required")

	w = f.do(http.MethodPost, "/api/v1/auth/signup", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignup(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username":   "alice",
		"email":      "alice@example.com",
		"password":   "correct horse",
		"first_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]interface{}{"user_id": "u-new"}, resp.Data)
	assert.Equal(t, "alice@example.com", f.auth.signup.Email)
}

func TestSignup_ConflictMapsTo409(t *testing.T) {
	f := newFixture(t, Options{})
	f.auth.err = apperrors.Conflict("username already taken")

	w := f.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username":   "alice",
		"email":      "alice@example.com",
		"password":   "correct horse",
		"first_name": "Alice",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "username already taken", decode(t, w).Message)
}

func TestAuthRateLimit(t *testing.T) {
	f := newFixture(t, Options{RateLimitRPS: 0.01, RateLimitBurst: 2})
	body := map[string]string{"identifier": "alice", "password": "pw"}

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/auth/login", "", body).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/auth/login", "", body).Code)

	w := f.do(http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// other routes are not limited
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", f.bearer(t, "u1"), nil).Code)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.Validation("bad"), http.StatusBadRequest},
		{apperrors.NewNotFound("user", "x"), http.StatusNotFound},
		{apperrors.Conflict("dup"), http.StatusConflict},
		{apperrors.Unauthorized("no"), http.StatusUnauthorized},
		{apperrors.Forbidden("no"), http.StatusForbidden},
		{apperrors.NewRateLimited("otp", time.Minute), http.StatusTooManyRequests},
		{apperrors.NewMatrixRequestFailed("send", errors.New("boom")), http.StatusBadGateway},
		{apperrors.NewStorageFailed("presign", errors.New("boom")), http.StatusBadGateway},
		{apperrors.NewAgentLLMFailed("m", 1, false, errors.New("boom")), http.StatusBadGateway},
		{apperrors.NewGraphQueryFailed("q", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}

func TestFail_HidesBackendDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	fail(c, apperrors.NewGraphQueryFailed("GetUser", errors.New("bolt: connection reset at 10.0.0.3")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.3")
	assert.Equal(t, "internal server error", decode(t, w).Message)
}

func TestFail_RetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	fail(c, apperrors.NewRateLimited("otp", 1500*time.Millisecond))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestDeleteProfileItem(t *testing.T) {
	f := newFixture(t, Options{})
	profiles := f.deps.Profiles.(*stubProfiles)
	token := f.bearer(t, "u1")

	w := f.do(http.MethodDelete, "/api/v1/profile/achievements/a1", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, graph.KindAchievement, profiles.deletedKind)
	assert.Equal(t, "a1", profiles.deletedUID)

	w = f.do(http.MethodDelete, "/api/v1/profile/hobbies/h1", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpportunityFeed_Filter(t *testing.T) {
	f := newFixture(t, Options{})
	opps := f.deps.Opportunities.(*stubOpportunities)
	token := f.bearer(t, "u1")

	w := f.do(http.MethodGet, "/api/v1/opportunities?job_type=contract&remote=true&skill=go&limit=5&q=backend", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "contract", opps.filter.JobType)
	assert.Equal(t, "go", opps.filter.Skill)
	assert.Equal(t, "backend", opps.filter.Text)
	assert.Equal(t, 5, opps.filter.Limit)
	require.NotNil(t, opps.filter.Remote)
	assert.True(t, *opps.filter.Remote)

	w = f.do(http.MethodGet, "/api/v1/opportunities?remote=maybe", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/opportunities?limit=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentModerate(t *testing.T) {
	f := newFixture(t, Options{})
	agents := f.deps.Agents.(*stubAgents)
	token := f.bearer(t, "owner")

	w := f.do(http.MethodPost, "/api/v1/communities/c1/agents/a1/moderate", token, map[string]string{
		"action":     "mute",
		"target_uid": "bob",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mute", agents.moderation.Action)
	assert.Equal(t, "bob", agents.moderation.TargetUID)

	w = f.do(http.MethodPost, "/api/v1/communities/c1/agents/a1/moderate", token, map[string]string{
		"action":     "delete",
		"target_uid": "bob",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Errors, "action must be one of: kick ban unban mute unmute")

	agents.err = apperrors.Forbidden("agent lacks the moderate_users permission in this community")
	w = f.do(http.MethodPost, "/api/v1/communities/c1/agents/a1/moderate", token, map[string]string{
		"action":     "kick",
		"target_uid": "bob",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Options{AllowedOrigins: []string{"https://app.circlenet.test/"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/me", nil)
	req.Header.Set("Origin", "https://app.circlenet.test")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.circlenet.test", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/me", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	collector := metrics.NewCollector("circlenet_test")
	f := newFixture(t, Options{Collector: collector})

	f.do(http.MethodGet, "/health", "", nil)
	w := f.do(http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `circlenet_test_http_requests_total{method="GET",route="/health",status="OK"} 1`))
}

func TestNoRoute(t *testing.T) {
	f := newFixture(t, Options{})
	w := f.do(http.MethodGet, "/api/v2/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, decode(t, w).Success)
}
