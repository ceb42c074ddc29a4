package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_BackendFlagOverride(t *testing.T) {
	flagConfig = t.TempDir()
	flagBackend = "http://flag.example.com"
	t.Cleanup(func() { flagBackend = ""; flagConfig = "." })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://flag.example.com", cfg.Backend.URL)
}

func TestHealthCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		w.Write([]byte(`{"status": "ok", "model": "cad-designer-1"}`))
	}))
	defer server.Close()

	flagConfig = t.TempDir()
	flagBackend = server.URL
	t.Cleanup(func() { flagBackend = ""; flagConfig = "." })

	healthCmd.SetContext(context.Background())
	err := runHealth(healthCmd, nil)
	assert.NoError(t, err)
}

func TestHealthCommand_BackendDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	flagConfig = t.TempDir()
	flagBackend = server.URL
	t.Cleanup(func() { flagBackend = ""; flagConfig = "." })

	healthCmd.SetContext(context.Background())
	err := runHealth(healthCmd, nil)
	assert.Error(t, err)
}
