package certs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func fileMode(t *testing.T, path string) os.FileMode {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Mode().Perm()
}

func TestFileStoreSave(t *testing.T) {
	for _, atomicWrites := range []bool{false, true} {
		dir := t.TempDir()
		certPath := filepath.Join(dir, "server.pem")
		keyPath := filepath.Join(dir, "server.key")
		require.NoError(t, os.WriteFile(certPath, []byte("OLD CERT WITH MORE BYTES"), 0o644))

		store := NewFileStore(certPath, keyPath, atomicWrites)
		require.NoError(t, store.Save(Credential{Cert: "CERT1", CertKey: "KEY1\n"}))

		assert.Equal(t, "CERT1", readFile(t, certPath))
		assert.Equal(t, "KEY1\n", readFile(t, keyPath))
		assert.Equal(t, os.FileMode(0o600), fileMode(t, keyPath), "atomic=%v", atomicWrites)
	}
}

func TestFileStoreModes(t *testing.T) {
	for _, atomicWrites := range []bool{false, true} {
		dir := t.TempDir()
		certPath := filepath.Join(dir, "server.pem")
		keyPath := filepath.Join(dir, "server.key")

		store := NewFileStore(certPath, keyPath, atomicWrites)
		require.NoError(t, store.Save(Credential{Cert: "CERT1", CertKey: "KEY1"}))

		assert.Equal(t, os.FileMode(0o644), fileMode(t, certPath), "new certificate, atomic=%v", atomicWrites)
		assert.Equal(t, os.FileMode(0o600), fileMode(t, keyPath), "new key, atomic=%v", atomicWrites)

		// an operator's chosen mode survives the next update
		require.NoError(t, os.Chmod(certPath, 0o640))
		require.NoError(t, store.Save(Credential{Cert: "CERT2", CertKey: "KEY2"}))

		assert.Equal(t, "CERT2", readFile(t, certPath))
		assert.Equal(t, os.FileMode(0o640), fileMode(t, certPath), "replaced certificate, atomic=%v", atomicWrites)
	}
}

func TestFileStoreCertWriteFails(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "server.key")
	store := NewFileStore(filepath.Join(dir, "missing", "server.pem"), keyPath, false)

	err := store.Save(Credential{Cert: "CERT1", CertKey: "KEY1"})

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "certificate", writeErr.Which)
	_, statErr := os.Stat(keyPath)
	assert.True(t, os.IsNotExist(statErr), "key must not be written after the certificate failed")
}

func TestFileStoreKeyWriteFails(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.pem")
	store := NewFileStore(certPath, filepath.Join(dir, "missing", "server.key"), true)

	err := store.Save(Credential{Cert: "CERT1", CertKey: "KEY1"})

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "key", writeErr.Which)
	assert.Contains(t, err.Error(), "unable to write key")
	// the pair is not transactional
	assert.Equal(t, "CERT1", readFile(t, certPath))
}
