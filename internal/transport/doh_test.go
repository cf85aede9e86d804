package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jroosing/hydradns/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoH_Send(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/dns-message", r.Header.Get("content-type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02}, body)

		w.Header().Set("content-type", "application/dns-message")
		_, _ = w.Write([]byte{0xAA, 0xBB})
	}))
	defer srv.Close()

	d := transport.NewDoH()
	// Reuse the test server's client (trusts its ephemeral cert) instead of
	// the dialer's default transport, which would reject the self-signed cert.
	d = transport.NewDoHWithClient(srv.Client())

	ep := transport.Endpoint{Scheme: transport.SchemeHTTPS, URL: srv.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := d.Send(ctx, []byte{0x01, 0x02}, ep)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, resp)
}

func TestDoH_Send_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := transport.NewDoHWithClient(srv.Client())
	ep := transport.Endpoint{Scheme: transport.SchemeHTTPS, URL: srv.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := d.Send(ctx, []byte{0x00}, ep)
	assert.Error(t, err)
}
