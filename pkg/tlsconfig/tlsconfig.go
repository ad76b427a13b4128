// Package tlsconfig builds mutual-TLS configurations for the gRPC and HTTP
// listeners and for command-line clients.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertificates is returned when the CA file holds no PEM certificate
var ErrNoCertificates = errors.New("no certificates in CA file")

// Files locates a key pair and the CA that signs the peers
type Files struct {
	Cert string
	Key  string
	CA   string
}

// Enabled reports whether a certificate was configured
func (f Files) Enabled() bool {
	return f.Cert != ""
}

// LoadServerTLS creates a tls.Config for a server requiring client certs (mTLS).
func LoadServerTLS(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, pool, err := load(certFile, keyFile, caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadClientTLS creates a tls.Config for a client that presents a cert (mTLS).
func LoadClientTLS(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, pool, err := load(certFile, keyFile, caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Server loads f with LoadServerTLS
func (f Files) Server() (*tls.Config, error) {
	return LoadServerTLS(f.Cert, f.Key, f.CA)
}

// Client loads f with LoadClientTLS
func (f Files) Client() (*tls.Config, error) {
	return LoadClientTLS(f.Cert, f.Key, f.CA)
}

func load(certFile, keyFile, caFile string) (tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("load key pair: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("read CA cert: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return tls.Certificate{}, nil, fmt.Errorf("%s: %w", caFile, ErrNoCertificates)
	}
	return cert, pool, nil
}
