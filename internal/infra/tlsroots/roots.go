package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNoCertsFound is returned when no certificates are found in a PEM file.
	ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

	// ErrKeyPairIncomplete is returned when only one of cert and key is set.
	ErrKeyPairIncomplete = errors.New("tlsroots: cert_file and key_file must be set together")
)

// Config selects the TLS material for a node connection.
type Config struct {
	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string
	// CertFile and KeyFile are a client certificate for nodes behind
	// mutual TLS.
	CertFile string
	KeyFile  string
	// Insecure disables server certificate verification.
	Insecure bool
}

// Enabled reports whether cfg changes the default TLS behaviour.
func (c Config) Enabled() bool {
	return c.CAFile != "" || c.CertFile != "" || c.Insecure
}

// Validate checks that the client key pair is complete.
func (c Config) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return ErrKeyPairIncomplete
	}
	return nil
}

// Pool manages a pool of trusted root certificates.
type Pool struct {
	certPool *x509.CertPool
}

// NewPool creates a new certificate pool with system roots.
// If system roots cannot be loaded, it creates an empty pool.
func NewPool() *Pool {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	return &Pool{certPool: pool}
}

// NewEmptyPool creates a new empty certificate pool without system roots.
func NewEmptyPool() *Pool {
	return &Pool{certPool: x509.NewCertPool()}
}

// AddCertFile adds certificates from a PEM file.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
	}
	if err := p.AddCertPEM(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// AddCertPEM adds every CERTIFICATE block of pemData.
func (p *Pool) AddCertPEM(pemData []byte) error {
	var added int
	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		p.certPool.AddCert(cert)
		added++
	}

	if added == 0 {
		return ErrNoCertsFound
	}
	return nil
}

// Pool returns the underlying x509.CertPool.
func (p *Pool) Pool() *x509.CertPool {
	return p.certPool
}

// ClientConfig builds the TLS config described by cfg. It returns nil
// when cfg enables nothing, so callers keep Go's defaults. The returned
// watcher, if any, serves the client certificate; the caller starts and
// stops it.
func ClientConfig(cfg Config, opts ...WatcherOption) (*tls.Config, *Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if !cfg.Enabled() {
		return nil, nil, nil
	}

	tc := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.Insecure {
		tc.InsecureSkipVerify = true //nolint:gosec // opt-in for self-signed dev nodes
	}
	if cfg.CAFile != "" {
		pool := NewPool()
		if err := pool.AddCertFile(cfg.CAFile); err != nil {
			return nil, nil, err
		}
		tc.RootCAs = pool.Pool()
	}

	var w *Watcher
	if cfg.CertFile != "" {
		var err error
		if w, err = NewWatcher(cfg.CertFile, cfg.KeyFile, opts...); err != nil {
			return nil, nil, err
		}
		tc.GetClientCertificate = w.GetClientCertificate
	}
	return tc, w, nil
}
