package gatewayhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiro-gateway/gateway/pkg/credential"
	"github.com/kiro-gateway/gateway/pkg/gatewayconfig"
	"github.com/kiro-gateway/gateway/pkg/upstream"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &gatewayconfig.Config{ClientSecret: "secret-123"}
	pool := credential.New(nil, nil, zap.NewNop(), 0, 0)
	t.Cleanup(pool.Destroy)
	client := upstream.NewClient(upstream.Config{Endpoint: "http://example.invalid"}, zap.NewNop())
	return New(cfg, pool, client, zap.NewNop())
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	app := testServer(t).Router()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMessages_RejectsMissingAuth(t *testing.T) {
	app := testServer(t).Router()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMessages_AcceptsXAPIKey(t *testing.T) {
	app := testServer(t).Router()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/count_tokens", nil)
	req.Header.Set("x-api-key", "secret-123")
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	// Empty body fails BodyParser (400), but auth itself must pass (not 401).
	assert.NotEqual(t, http.StatusUnauthorized, resp.StatusCode)
}
