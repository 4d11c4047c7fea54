package certs_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfserv.net/certsync/addr"
	"selfserv.net/certsync/certs"
	"selfserv.net/certsync/selfserv"
)

func TestFixedAddressUpdatesOnce(t *testing.T) {
	var pings atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pings.Add(1)
		assert.Equal(t, "token abc123", r.Header.Get("Authorization"))
		assert.Equal(t, "203.0.113.5", r.FormValue("ip"))
		w.Write([]byte(`{"cert":"CERT1","cert_key":"KEY1"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.pem")
	keyPath := filepath.Join(dir, "server.key")

	updater := certs.NewUpdater(
		addr.Fixed(netip.MustParseAddr("203.0.113.5")),
		selfserv.NewClient(srv.URL),
		certs.NewFileStore(certPath, keyPath, true),
		"abc123",
		zerolog.Nop(),
	)

	outcome, err := updater.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, certs.Updated, outcome)

	cert, err := os.ReadFile(certPath)
	require.NoError(t, err)
	assert.Equal(t, "CERT1", string(cert))
	key, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, "KEY1", string(key))

	outcome, err = updater.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, certs.Skipped, outcome)
	assert.EqualValues(t, 1, pings.Load())
}

func TestRejectedTokenKeepsLooping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pings atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pings.Add(1) >= 2 {
			cancel()
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad token"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.pem")
	keyPath := filepath.Join(dir, "server.key")

	var logs bytes.Buffer
	updater := certs.NewUpdater(
		addr.Fixed(netip.MustParseAddr("203.0.113.5")),
		selfserv.NewClient(srv.URL),
		certs.NewFileStore(certPath, keyPath, false),
		"abc123",
		zerolog.New(&logs),
		certs.WithInterval(time.Millisecond),
	)

	// the second tick only happens if the first failure did not stop the loop
	err := updater.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 2, pings.Load())
	assert.Contains(t, logs.String(), "401")
	assert.NotContains(t, logs.String(), "abc123")
	assert.NoFileExists(t, certPath)
	assert.NoFileExists(t, keyPath)
	assert.False(t, updater.State().IsSet())
}
