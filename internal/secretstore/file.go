package secretstore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	// scrypt parameters recommended for interactive logins
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// File implements Store as a single file sealed with NaCl secretbox.
// The file layout is salt || nonce || box, where box seals a JSON object of
// all secrets. Every write replaces the file atomically.
type File struct {
	mu   sync.Mutex
	path string
	salt [saltSize]byte
	key  [keySize]byte
}

// NewFile opens (or prepares to create) the sealed file at path.
// A wrong passphrase is reported here when the file already exists.
func NewFile(path, passphrase string) (*File, error) {
	if passphrase == "" {
		return nil, errors.New("secretstore: file backend requires a passphrase")
	}

	f := &File{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if _, err := io.ReadFull(rand.Reader, f.salt[:]); err != nil {
			return nil, fmt.Errorf("secretstore: failed to generate salt: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("secretstore: failed to read %s: %w", path, err)
	default:
		if len(raw) < saltSize+nonceSize+secretbox.Overhead {
			return nil, fmt.Errorf("secretstore: %s is truncated", path)
		}
		copy(f.salt[:], raw[:saltSize])
	}

	if err := f.deriveKey(passphrase); err != nil {
		return nil, err
	}

	// Fail fast on a wrong passphrase instead of on first Get.
	if raw != nil {
		if _, err := f.open(raw); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func (f *File) deriveKey(passphrase string) error {
	k, err := scrypt.Key([]byte(passphrase), f.salt[:], scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return fmt.Errorf("secretstore: failed to derive key: %w", err)
	}
	copy(f.key[:], k)
	return nil
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		return err
	}
	secrets[key] = value
	return f.save(secrets)
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := secrets[key]; !ok {
		return nil
	}
	delete(secrets, key)
	return f.save(secrets)
}

func (f *File) Close() error { return nil }

// load reads and opens the file (caller must hold mu).
func (f *File) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: failed to read %s: %w", f.path, err)
	}
	return f.open(raw)
}

func (f *File) open(raw []byte) (map[string]string, error) {
	if len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("secretstore: %s is truncated", f.path)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])

	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, &f.key)
	if !ok {
		return nil, ErrDecrypt
	}

	secrets := make(map[string]string)
	if err := json.Unmarshal(plain, &secrets); err != nil {
		return nil, fmt.Errorf("secretstore: corrupt secrets file: %w", err)
	}
	return secrets, nil
}

// save seals secrets and replaces the file (caller must hold mu).
func (f *File) save(secrets map[string]string) error {
	plain, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("secretstore: failed to encode secrets: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("secretstore: failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, f.salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plain, &nonce, &f.key)

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("secretstore: failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".secrets-*")
	if err != nil {
		return fmt.Errorf("secretstore: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	// CreateTemp opens with mode 0600, which the rename preserves.
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("secretstore: failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("secretstore: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("secretstore: failed to replace %s: %w", f.path, err)
	}
	return nil
}
