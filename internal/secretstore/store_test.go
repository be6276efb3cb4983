package secretstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/erauner12/urshop-admin/internal/config"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "access", "A1"))
	require.NoError(t, s.Set(ctx, "refresh", "R1"))

	v, err := s.Get(ctx, "access")
	require.NoError(t, err)
	require.Equal(t, "A1", v)

	// Overwrite replaces the value
	require.NoError(t, s.Set(ctx, "access", "A2"))
	v, err = s.Get(ctx, "access")
	require.NoError(t, err)
	require.Equal(t, "A2", v)

	require.NoError(t, s.Delete(ctx, "access"))
	_, err = s.Get(ctx, "access")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error
	require.NoError(t, s.Delete(ctx, "access"))

	v, err = s.Get(ctx, "refresh")
	require.NoError(t, err)
	require.Equal(t, "R1", v)
}

func TestMemory(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	exerciseStore(t, s)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets")
	s, err := NewFile(path, "correct horse")
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "secrets")

	s, err := NewFile(path, "pass")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))

	reopened, err := NewFile(path, "pass")
	require.NoError(t, err)
	v, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestFile_IsEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "secrets")

	s, err := NewFile(path, "pass")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "refresh", "super-secret-refresh-token"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "super-secret-refresh-token")
}

func TestFile_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "secrets")

	s, err := NewFile(path, "right")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))

	_, err = NewFile(path, "wrong")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestFile_RequiresPassphrase(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "secrets"), "")
	require.Error(t, err)
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "secrets.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.SecretsConfig
	}{
		{name: "memory", cfg: config.SecretsConfig{Backend: config.BackendMemory}},
		{name: "file", cfg: config.SecretsConfig{Backend: config.BackendFile, Path: filepath.Join(dir, "f", "secrets"), Passphrase: "p"}},
		{name: "sqlite", cfg: config.SecretsConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "s", "secrets.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(ctx, tt.cfg)
			require.NoError(t, err)
			defer s.Close()
			exerciseStore(t, s)
		})
	}

	_, err := Open(ctx, config.SecretsConfig{Backend: "etcd"})
	require.Error(t, err)
}
