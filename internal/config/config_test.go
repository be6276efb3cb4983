package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("URSHOP_SECRET_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8081", cfg.BaseURL)
	require.Equal(t, 30*time.Second, cfg.Timeout)
	require.Equal(t, 20, cfg.PageSize)
	require.Equal(t, BackendMemory, cfg.Secrets.Backend)
	require.False(t, cfg.IsDev())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("URSHOP_BASE_URL", "https://shop.example")
	t.Setenv("URSHOP_TIMEOUT", "5s")
	t.Setenv("URSHOP_PAGE_SIZE", "50")
	t.Setenv("URSHOP_SECRET_BACKEND", "sqlite")
	t.Setenv("URSHOP_SECRET_PATH", "/tmp/urshop.db")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsDev())
	require.Equal(t, "https://shop.example", cfg.BaseURL)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, 50, cfg.PageSize)
	require.Equal(t, "/tmp/urshop.db", cfg.Secrets.Path)
}

func TestLoad_BadValues(t *testing.T) {
	t.Setenv("URSHOP_SECRET_BACKEND", "memory")
	t.Setenv("URSHOP_TIMEOUT", "soon")
	t.Setenv("URSHOP_PAGE_SIZE", "many")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "URSHOP_TIMEOUT")
	require.Contains(t, err.Error(), "URSHOP_PAGE_SIZE")
}

func TestValidate(t *testing.T) {
	base := Config{BaseURL: "http://x", Timeout: time.Second, PageSize: 10}

	tests := []struct {
		name    string
		secrets SecretsConfig
		wantErr string
	}{
		{name: "memory", secrets: SecretsConfig{Backend: BackendMemory}},
		{name: "file without passphrase", secrets: SecretsConfig{Backend: BackendFile, Path: "/tmp/s"}, wantErr: "PASSPHRASE"},
		{name: "file", secrets: SecretsConfig{Backend: BackendFile, Path: "/tmp/s", Passphrase: "p"}},
		{name: "postgres without dsn", secrets: SecretsConfig{Backend: BackendPostgres}, wantErr: "URSHOP_SECRET_DSN"},
		{name: "unknown", secrets: SecretsConfig{Backend: "etcd"}, wantErr: "unknown secret backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Secrets = tt.secrets
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadMock_RequiresSecretOutsideDev(t *testing.T) {
	t.Setenv("ENV", "")
	_, err := LoadMock()
	require.ErrorContains(t, err, "MOCKSHOP_JWT_SECRET")

	t.Setenv("ENV", "dev")
	cfg, err := LoadMock()
	require.NoError(t, err)
	require.Equal(t, ":8081", cfg.Addr)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
}
