//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"go-auth-service/internal/app"
	"go-auth-service/internal/config"
	"go-auth-service/internal/logger"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Fields  map[string][]string `json:"fields"`
	} `json:"error"`
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// logBuffer collects the JSON log output; the log mail driver writes reset
// links there.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var resetLinkPattern = regexp.MustCompile(`/reset-password/([^/\s"\\]+)/([^/\s"\\]+)/`)

// lastResetLink returns the uid and token of the most recent reset email.
func (b *logBuffer) lastResetLink(t *testing.T) (string, string) {
	t.Helper()

	matches := resetLinkPattern.FindAllStringSubmatch(b.String(), -1)
	require.NotEmpty(t, matches, "no reset link logged")
	last := matches[len(matches)-1]
	return last[1], last[2]
}

func startDatabase(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("auth_it"),
		postgres.WithUsername("auth"),
		postgres.WithPassword("auth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func newTestServer(t *testing.T) (*httptest.Server, *logBuffer) {
	t.Helper()

	cfg := &config.Config{
		ServerPort:              "0",
		ServerReadHeaderTimeout: 10 * time.Second,
		ServerWriteTimeout:      30 * time.Second,
		ServerIdleTimeout:       time.Minute,
		RequestTimeout:          30 * time.Second,
		DatabaseURL:             startDatabase(t),
		DBMaxConns:              5,
		DBMinConns:              1,
		DBAutoMigrate:           true,
		TokenCleanup:            time.Hour,
		JWTSecret:               "integration-secret",
		JWTIssuer:               "go-auth-service",
		JWTAccessTTL:            15 * time.Minute,
		JWTRefreshTTL:           24 * time.Hour,
		ResetTokenSecret:        "integration-reset-secret",
		ResetTokenTTL:           time.Hour,
		FrontendURL:             "http://localhost:3000",
		PasswordHasher:          "bcrypt",
		BcryptCost:              4,
		PasswordMinLength:       8,
		PasswordMinCharClasses:  3,
		MailDriver:              "log",
		MailFrom:                "no-reply@example.com",
		MailRetryAttempts:       1,
		MailRetryBaseDelay:      10 * time.Millisecond,
		CORSOrigins:             []string{"*"},
		LogLevel:                "info",
		LogFormat:               "json",
	}
	require.NoError(t, cfg.Validate())

	logs := &logBuffer{}
	application, err := app.New(context.Background(), cfg, logger.New(logs, cfg.LogLevel, cfg.LogFormat))
	require.NoError(t, err)
	t.Cleanup(application.Close)

	server := httptest.NewServer(application.Handler())
	t.Cleanup(server.Close)

	return server, logs
}

func newAuthRequest(t *testing.T, method string, url string, body []byte, accessToken string) *http.Request {
	t.Helper()

	req := mustNewRequest(t, method, url, body)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return req
}

func doRequest(t *testing.T, req *http.Request) *http.Response {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func doJSON(t *testing.T, method string, url string, payload any) *http.Response {
	t.Helper()
	return doRequest(t, mustNewRequest(t, method, url, mustJSON(t, payload)))
}

func doAuthJSONRequest(t *testing.T, method string, url string, payload any, accessToken string) *http.Response {
	t.Helper()

	var body []byte
	if payload != nil {
		body = mustJSON(t, payload)
	}
	return doRequest(t, newAuthRequest(t, method, url, body, accessToken))
}

func mustNewRequest(t *testing.T, method string, url string, body []byte) *http.Request {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req
}

func mustJSON(t *testing.T, payload any) []byte {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

// decode reads the envelope and, when dst is non-nil, its data.
func decode(t *testing.T, resp *http.Response, dst any) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if dst != nil {
		require.True(t, env.Success)
		require.NoError(t, json.Unmarshal(env.Data, dst))
	}
	return env
}

func login(t *testing.T, baseURL string, username string, password string) (*http.Response, tokenPair) {
	t.Helper()

	resp := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/token", map[string]string{
		"username": username,
		"password": password,
	})
	var pair tokenPair
	if resp.StatusCode == http.StatusOK {
		decode(t, resp, &pair)
	}
	return resp, pair
}
