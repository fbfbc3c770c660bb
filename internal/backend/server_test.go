package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hubconnect/config"
	"hubconnect/internal/backend/database"
	"hubconnect/internal/backend/models"
	"hubconnect/internal/backend/providers"
	"hubconnect/internal/backend/services"
	"hubconnect/internal/backend/vault"
	"hubconnect/internal/crypto"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "server.db")
	cfg.Encryption.Passphrase = "server test passphrase"
	cfg.Server.HTTPListen = "127.0.0.1:0"
	cfg.Server.GRPCListen = "127.0.0.1:0"
	cfg.Server.TrustedUserHeader = "X-User-ID"
	return cfg
}

func TestBuildAdapters(t *testing.T) {
	cfg := testConfig(t)
	github := cfg.Providers["github"]
	github.Enabled = true
	github.ClientID = "client"
	github.ClientSecret = "secret"
	github.RedirectURI = "https://app.example.com/callback"
	cfg.Providers["github"] = github

	registry, err := BuildAdapters(cfg)
	require.NoError(t, err)
	assert.Equal(t, models.AllProviders, registry.Kinds())

	gitlab, ok := registry.Get(models.ProviderGitLab)
	require.True(t, ok)
	_, retargetable := gitlab.(providers.Retargetable)
	assert.True(t, retargetable)

	assert.Equal(t, []models.ProviderKind{models.ProviderGitHub}, OAuthProviders(cfg))
}

func TestBuildAdaptersRejectsBadGitLabURL(t *testing.T) {
	cfg := testConfig(t)
	gitlab := cfg.Providers["gitlab"]
	gitlab.BaseURL = "::not a url"
	cfg.Providers["gitlab"] = gitlab

	_, err := BuildAdapters(cfg)
	assert.Error(t, err)
}

func TestSetupRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)

	db, err := database.NewGormDB(cfg.Database, zap.NewNop(), false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	cipher, err := crypto.NewCipher(cfg.Encryption.Passphrase)
	require.NoError(t, err)
	adapters, err := BuildAdapters(cfg)
	require.NoError(t, err)
	connections := services.NewConnectionService(adapters, vault.New(cipher), db, db, zap.NewNop())

	router := SetupRouter(cfg.Server, connections, nil, db, zap.NewNop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/integrations", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	user, err := db.CreateUser(context.Background(), "octo@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/github/auth-url", nil)
	req.Header.Set(cfg.Server.TrustedUserHeader, user.ID)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "OAuth is disabled for every provider")
}

func TestRunMigrations(t *testing.T) {
	cfg := testConfig(t)

	require.NoError(t, NewServer(cfg, zap.NewNop(), false).RunMigrations())

	db, err := database.NewGormDB(cfg.Database, zap.NewNop(), false)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateUser(context.Background(), "octo@example.com")
	assert.NoError(t, err)
}

func TestServerStartAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	server := NewServer(cfg, zap.NewNop(), false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerStartFailsOnBusyPort(t *testing.T) {
	cfg := testConfig(t)

	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()
	cfg.Server.HTTPListen = busy.Listener.Addr().String()

	err := NewServer(cfg, zap.NewNop(), false).Start(context.Background())
	assert.Error(t, err)
}

func TestEnsureUser(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	created, isNew, err := NewServer(cfg, zap.NewNop(), false).EnsureUser(ctx, " Octo@Example.com ")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "octo@example.com", created.Email)

	again, isNew, err := NewServer(cfg, zap.NewNop(), false).EnsureUser(ctx, "octo@example.com")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, again.ID)

	_, _, err = NewServer(cfg, zap.NewNop(), false).EnsureUser(ctx, "  ")
	assert.Error(t, err)
}
