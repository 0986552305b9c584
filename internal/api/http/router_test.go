package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	httptransport "github.com/spec-kit/auth-service/internal/api/http"
	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/persistence"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/service"
)

type appOptions struct {
	openAdmin bool
	rateLimit config.RateLimitConfig
}

func newTestApp(t *testing.T, opts appOptions) *fiber.App {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "auth.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, persistence.RunSQLiteMigrations(db.DB, logger))

	mr := miniredis.RunT(t)
	rdb := &persistence.Redis{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(rdb.Close)

	svc, err := service.NewAuthService(config.AuthConfig{
		JWTSecret:         "router-test-secret-0123456789abcdefghij",
		TokenTTLSeconds:   600,
		BcryptCost:        bcrypt.MinCost,
		RevocationEnabled: true,
	}, service.AuthDependencies{
		UserRepo:    repository.NewSQLiteUserRepository(db.DB),
		SessionRepo: repository.NewSessionRepository(rdb.Client),
		Logger:      logger,
	})
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:                handlers.NewHealthHandler("auth-service", "test", db, rdb, metrics),
		Auth:                  handlers.NewAuthHandler(svc),
		Users:                 handlers.NewUsersHandler(svc),
		AuthMiddleware:        auth.NewAuthMiddleware(svc, metrics),
		RateLimit:             opts.rateLimit,
		OpenAdminRegistration: opts.openAdmin,
		Logger:                logger,
	})
	return app
}

func defaultOptions() appOptions {
	return appOptions{openAdmin: true, rateLimit: config.RateLimitConfig{
		LoginRequestsPerMinute:    1000,
		LoginBurst:                1000,
		RegisterRequestsPerMinute: 1000,
		RegisterBurst:             1000,
	}}
}

type response struct {
	status int
	body   []byte
	header http.Header
}

func (r response) decode(t *testing.T) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(r.body, &out), string(r.body))
	return out
}

func (r response) data(t *testing.T) map[string]any {
	t.Helper()
	data, ok := r.decode(t)["data"].(map[string]any)
	require.True(t, ok, string(r.body))
	return data
}

func (r response) errorCode(t *testing.T) string {
	t.Helper()
	errBody, ok := r.decode(t)["error"].(map[string]any)
	require.True(t, ok, string(r.body))
	code, _ := errBody["code"].(string)
	return code
}

// withoutRequestID returns the error body minus its per-request id.
func withoutRequestID(t *testing.T, r response) map[string]any {
	t.Helper()
	errBody, ok := r.decode(t)["error"].(map[string]any)
	require.True(t, ok, string(r.body))
	assert.NotEmpty(t, errBody["request_id"])
	delete(errBody, "request_id")
	return errBody
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, body: raw, header: resp.Header}
}

func registerUser(t *testing.T, app *fiber.App, path, username, password string) int64 {
	t.Helper()
	resp := call(t, app, http.MethodPost, path, "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
		"balance":  100,
	})
	require.Equal(t, http.StatusCreated, resp.status, string(resp.body))
	return int64(resp.data(t)["id"].(float64))
}

func login(t *testing.T, app *fiber.App, username, password string) string {
	t.Helper()
	resp := call(t, app, http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.status, string(resp.body))
	return resp.data(t)["token"].(string)
}

func TestAuthFlow(t *testing.T) {
	app := newTestApp(t, defaultOptions())

	aliceID := registerUser(t, app, "/auth/register", "alice", "secret123")
	token := login(t, app, "alice", "secret123")

	me := call(t, app, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, me.status)
	assert.Equal(t, "alice", me.data(t)["subject"])
	assert.Equal(t, []any{"ROLE_USER"}, me.data(t)["roles"])

	byID := call(t, app, http.MethodGet, fmt.Sprintf("/auth/getById?userId=%d", aliceID), "", nil)
	require.Equal(t, http.StatusOK, byID.status)
	assert.Equal(t, "alice", byID.data(t)["username"])
	assert.NotContains(t, string(byID.body), "password")

	forbidden := call(t, app, http.MethodGet, "/users/getAll", token, nil)
	assert.Equal(t, http.StatusForbidden, forbidden.status)
	assert.Equal(t, "INSUFFICIENT_ROLE", forbidden.errorCode(t))

	logout := call(t, app, http.MethodPost, "/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, logout.status)

	revoked := call(t, app, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, revoked.status)
	assert.Equal(t, "REVOKED", revoked.errorCode(t))
}

func TestLoginFailuresLookIdentical(t *testing.T) {
	app := newTestApp(t, defaultOptions())
	registerUser(t, app, "/auth/register", "alice", "secret123")

	wrongPassword := call(t, app, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wrongpass"})
	unknownUser := call(t, app, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "secret123"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.status)
	assert.Equal(t, wrongPassword.status, unknownUser.status)
	assert.Equal(t, withoutRequestID(t, wrongPassword), withoutRequestID(t, unknownUser))
	assert.Equal(t, "INVALID_CREDENTIALS", unknownUser.errorCode(t))
	assert.Equal(t, `Bearer realm="auth-service"`, unknownUser.header.Get(fiber.HeaderWWWAuthenticate))

	missing := call(t, app, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, missing.status)
}

func TestAdminEndpoints(t *testing.T) {
	app := newTestApp(t, defaultOptions())
	aliceID := registerUser(t, app, "/auth/register", "alice", "secret123")
	registerUser(t, app, "/auth/registerAdmin", "carol", "adminpass")
	aliceToken := login(t, app, "alice", "secret123")
	adminToken := login(t, app, "carol", "adminpass")

	list := call(t, app, http.MethodGet, "/users/getAll", adminToken, nil)
	require.Equal(t, http.StatusOK, list.status)
	users, ok := list.decode(t)["data"].([]any)
	require.True(t, ok)
	assert.Len(t, users, 2)

	metrics := call(t, app, http.MethodGet, "/health/metrics", adminToken, nil)
	require.Equal(t, http.StatusOK, metrics.status)
	assert.Contains(t, metrics.data(t), "auth_decisions")

	deleted := call(t, app, http.MethodDelete, fmt.Sprintf("/users/%d", aliceID), adminToken, nil)
	assert.Equal(t, http.StatusNoContent, deleted.status)

	gone := call(t, app, http.MethodGet, fmt.Sprintf("/auth/getById?userId=%d", aliceID), "", nil)
	assert.Equal(t, http.StatusNotFound, gone.status)
	assert.Equal(t, "USER_NOT_FOUND", gone.errorCode(t))

	stale := call(t, app, http.MethodGet, "/auth/me", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, stale.status)

	again := call(t, app, http.MethodDelete, fmt.Sprintf("/users/%d", aliceID), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, again.status)

	badID := call(t, app, http.MethodDelete, "/users/abc", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, badID.status)
}

func TestRegistrationErrors(t *testing.T) {
	app := newTestApp(t, defaultOptions())
	registerUser(t, app, "/auth/register", "alice", "secret123")

	dup := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{"username": "alice", "email": "x@example.com", "password": "p"})
	assert.Equal(t, http.StatusConflict, dup.status)
	assert.Equal(t, "USERNAME_TAKEN", dup.errorCode(t))

	dupEmail := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{"username": "alice2", "email": "alice@example.com", "password": "p"})
	assert.Equal(t, http.StatusConflict, dupEmail.status)
	assert.Equal(t, "EMAIL_TAKEN", dupEmail.errorCode(t))

	invalid := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{"username": "dave"})
	assert.Equal(t, http.StatusBadRequest, invalid.status)
	assert.Equal(t, "INVALID_INPUT", invalid.errorCode(t))

	tooLong := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "erin",
		"email":    "erin@example.com",
		"password": strings.Repeat("x", auth.MaxPasswordBytes+1),
	})
	assert.Equal(t, http.StatusBadRequest, tooLong.status)
	assert.Equal(t, "INVALID_INPUT", tooLong.errorCode(t))

	badQuery := call(t, app, http.MethodGet, "/auth/getById?userId=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, badQuery.status)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	app := newTestApp(t, defaultOptions())

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/auth/logout"},
		{http.MethodPost, "/auth/password/change"},
		{http.MethodGet, "/users/getAll"},
		{http.MethodGet, "/health/metrics"},
	} {
		resp := call(t, app, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.status, route.path)
	}

	resp := call(t, app, http.MethodGet, "/auth/me", "not.a.token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, "MALFORMED", resp.errorCode(t))
}

func TestPasswordChange(t *testing.T) {
	app := newTestApp(t, defaultOptions())
	registerUser(t, app, "/auth/register", "alice", "secret123")
	token := login(t, app, "alice", "secret123")

	wrong := call(t, app, http.MethodPost, "/auth/password/change", token, map[string]string{"current_password": "nope", "new_password": "fresh-pass"})
	assert.Equal(t, http.StatusUnauthorized, wrong.status)

	ok := call(t, app, http.MethodPost, "/auth/password/change", token, map[string]string{"current_password": "secret123", "new_password": "fresh-pass"})
	assert.Equal(t, http.StatusNoContent, ok.status)

	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/auth/me", token, nil).status)
	login(t, app, "alice", "fresh-pass")
}

func TestClosedAdminRegistration(t *testing.T) {
	opts := defaultOptions()
	opts.openAdmin = false
	app := newTestApp(t, opts)

	resp := call(t, app, http.MethodPost, "/auth/registerAdmin", "", map[string]string{"username": "mallory", "email": "m@example.com", "password": "p"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	registerUser(t, app, "/auth/register", "alice", "secret123")
	token := login(t, app, "alice", "secret123")
	resp = call(t, app, http.MethodPost, "/auth/registerAdmin", token, map[string]string{"username": "mallory", "email": "m@example.com", "password": "p"})
	assert.Equal(t, http.StatusForbidden, resp.status)
}

func TestLoginRateLimited(t *testing.T) {
	app := newTestApp(t, appOptions{openAdmin: true, rateLimit: config.RateLimitConfig{LoginRequestsPerMinute: 2, LoginBurst: 2}})

	creds := map[string]string{"username": "bob", "password": "whatever"}
	for i := 0; i < 2; i++ {
		resp := call(t, app, http.MethodPost, "/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.status)
	}

	limited := call(t, app, http.MethodPost, "/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, limited.status)
	assert.Equal(t, "RATE_LIMITED", limited.errorCode(t))
	assert.NotEmpty(t, limited.header.Get(fiber.HeaderRetryAfter))
}

func TestRegisterRateLimitedIndependently(t *testing.T) {
	app := newTestApp(t, appOptions{openAdmin: true, rateLimit: config.RateLimitConfig{
		LoginRequestsPerMinute:    1000,
		LoginBurst:                1000,
		RegisterRequestsPerMinute: 1,
		RegisterBurst:             1,
	}})

	registerUser(t, app, "/auth/register", "alice", "secret123")
	limited := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusTooManyRequests, limited.status)
	assert.Equal(t, "RATE_LIMITED", limited.errorCode(t))

	login(t, app, "alice", "secret123")
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, defaultOptions())

	live := call(t, app, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, live.status)

	ready := call(t, app, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, ready.status, string(ready.body))
	assert.Equal(t, "ready", ready.decode(t)["status"])
	assert.NotEmpty(t, live.header.Get("X-Request-ID"))
}
