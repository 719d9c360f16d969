// Package tlsconfig builds a *tls.Config from the SPI's caller-owned
// TlsConfig bundle, and offers a live certificate reloader for
// servers that rotate their certificate without restarting: cert/key/CA
// loading from PEM files, with CertReloader hooked into
// tls.Config.GetCertificate.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/ghostkellz/zrpc/spi"
)

// Build translates a *spi.TlsConfig into a standard library *tls.Config.
// A nil input returns nil (no TLS), matching adapters that allow plaintext
// dial/listen for local testing.
func Build(cfg *spi.TlsConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, nil
	}
	out := &tls.Config{
		ServerName: cfg.ServerName,
		NextProtos: cfg.ALPN,
	}
	if cfg.HasCert {
		out.Certificates = []tls.Certificate{cfg.Cert}
	}
	if cfg.CA != nil {
		out.RootCAs = cfg.CA.RootCAs
		out.ClientCAs = cfg.CA.ClientCAs
	}
	if cfg.RequireClientCert {
		out.ClientAuth = tls.RequireAndVerifyClientCert
	}
	out.InsecureSkipVerify = !cfg.VerifyPeer && cfg.ServerName == ""
	return out, nil
}

// LoadCertPool reads a PEM file of one or more certificates into a pool,
// for use as cfg.CA.RootCAs / ClientCAs.
func LoadCertPool(pemPath string) (*x509.CertPool, error) {
	pemBytes, err := os.ReadFile(pemPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading CA file %s", pemPath)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, errors.Errorf("no certificates found in %s", pemPath)
	}
	return pool, nil
}

// CertReloader loads and reloads an X.509 key pair from disk, hooked into
// tls.Config.GetCertificate so a server can rotate its certificate without
// restarting.
type CertReloader struct {
	mu          sync.Mutex
	certificate *tls.Certificate
	certPath    string
	keyPath     string
}

// NewCertReloader loads the certificate once at construction time to fail
// fast on a bad path, then is ready to serve and reload.
func NewCertReloader(certPath, keyPath string) (*CertReloader, error) {
	cr := &CertReloader{certPath: certPath, keyPath: keyPath}
	if err := cr.Reload(); err != nil {
		return nil, err
	}
	return cr, nil
}

// Cert implements tls.Config.GetCertificate.
func (cr *CertReloader) Cert(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.certificate, nil
}

// Reload re-reads the certificate and key from disk. On failure the
// previously loaded certificate is kept in service.
func (cr *CertReloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(cr.certPath, cr.keyPath)
	if err != nil {
		return errors.Wrap(err, "parsing X509 key pair")
	}
	cr.mu.Lock()
	cr.certificate = &cert
	cr.mu.Unlock()
	return nil
}
