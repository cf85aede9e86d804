package transport_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/jroosing/hydradns/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestCert(t *testing.T, sni string) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: sni},
		DNSNames:     []string{sni},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func startEchoDoT(t *testing.T, cert tls.Certificate, response []byte) string {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				var lenBuf [2]byte
				if _, err := conn.Read(lenBuf[:]); err != nil {
					return
				}
				n := binary.BigEndian.Uint16(lenBuf[:])
				buf := make([]byte, n)
				if _, err := conn.Read(buf); err != nil {
					return
				}
				var out [2]byte
				binary.BigEndian.PutUint16(out[:], uint16(len(response)))
				_, _ = conn.Write(out[:])
				_, _ = conn.Write(response)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestDoT_Send(t *testing.T) {
	const sni = "dot.example.test"
	cert := generateTestCert(t, sni)
	addr := startEchoDoT(t, cert, []byte{0x99})

	pool := x509.NewCertPool()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	pool.AddCert(leaf)

	d := &transport.DoT{TLSConfig: &tls.Config{RootCAs: pool}}
	ep := transport.Endpoint{Scheme: transport.SchemeTLS, Addr: addr, SNI: sni}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := d.Send(ctx, []byte{0x00}, ep)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x99}, resp)
}

func TestDoT_Send_BadSNI_Fails(t *testing.T) {
	cert := generateTestCert(t, "dot.example.test")
	addr := startEchoDoT(t, cert, []byte{0x99})

	pool := x509.NewCertPool()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	pool.AddCert(leaf)

	d := &transport.DoT{TLSConfig: &tls.Config{RootCAs: pool}}
	// Wrong SNI: verification should fail against the cert's DNSNames.
	ep := transport.Endpoint{Scheme: transport.SchemeTLS, Addr: addr, SNI: "wrong.example.test"}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err = d.Send(ctx, []byte{0x00}, ep)
	assert.Error(t, err)
}
