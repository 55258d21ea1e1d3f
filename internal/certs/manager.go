// Package certs owns the TLS certificate lifecycle for the local HTTPS
// listener: generate or load the self-signed localhost bundle, persist it
// under the per-user app directory, and manage its trust state in the OS
// certificate store where the platform has one.
package certs

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCertMissing   = errors.New("certificate not found")
	ErrCertInvalid   = errors.New("certificate files are invalid")
	ErrInstallFailed = errors.New("certificate installation failed")
	ErrCancelled     = errors.New("operation cancelled")
	ErrNotSupported  = errors.New("certificate store management is not supported on this platform")
)

const (
	certFileName = "localhost.crt"
	keyFileName  = "localhost.key"
	certValidity = 10 * 365 * 24 * time.Hour
)

var pemCertHeader = []byte("-----BEGIN CERTIFICATE-----")

// Bundle is a loaded certificate/key pair ready to serve TLS.
type Bundle struct {
	CertPEM     []byte
	KeyPEM      []byte
	Certificate tls.Certificate
}

type Manager struct {
	dir      string
	trustTTL time.Duration
	log      *zap.Logger

	trustMu      sync.Mutex
	trusted      bool
	trustChecked time.Time
}

func NewManager(dir string, trustTTL time.Duration, log *zap.Logger) *Manager {
	if trustTTL <= 0 {
		trustTTL = 30 * time.Second
	}
	return &Manager{
		dir:      dir,
		trustTTL: trustTTL,
		log:      log,
	}
}

func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) CertPath() string {
	return filepath.Join(m.dir, certFileName)
}

func (m *Manager) KeyPath() string {
	return filepath.Join(m.dir, keyFileName)
}

// EnsureCertificate loads the persisted bundle if it is well-formed,
// otherwise generates a fresh self-signed pair for localhost and the
// loopback addresses. Persistence failures are logged, not fatal: the
// in-memory bundle still serves this process lifetime.
func (m *Manager) EnsureCertificate() (*Bundle, error) {
	if bundle, err := m.load(); err == nil {
		m.log.Debug("loaded existing certificate", zap.String("path", m.CertPath()))
		return bundle, nil
	} else if !errors.Is(err, ErrCertMissing) {
		m.log.Warn("persisted certificate is invalid, regenerating", zap.Error(err))
	}

	certPEM, keyPEM, err := generateSelfSigned()
	if err != nil {
		return nil, err
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("generated certificate does not parse: %w", err)
	}

	if err := m.persist(certPEM, keyPEM); err != nil {
		m.log.Warn("failed to persist certificate, serving from memory only", zap.Error(err))
	} else {
		m.log.Info("generated new self-signed certificate", zap.String("path", m.CertPath()))
	}

	return &Bundle{CertPEM: certPEM, KeyPEM: keyPEM, Certificate: cert}, nil
}

// Regenerate removes the persisted files so the next EnsureCertificate call
// produces a fresh pair.
func (m *Manager) Regenerate() error {
	if err := os.Remove(m.CertPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove certificate: %w", err)
	}
	if err := os.Remove(m.KeyPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key: %w", err)
	}
	m.InvalidateTrust()
	m.log.Info("certificate files removed, next start regenerates them")
	return nil
}

// Exists reports whether both certificate files are present on disk.
func (m *Manager) Exists() bool {
	_, certErr := os.Stat(m.CertPath())
	_, keyErr := os.Stat(m.KeyPath())
	return certErr == nil && keyErr == nil
}

// Valid reports whether the persisted files are non-empty and PEM-framed.
func (m *Manager) Valid() bool {
	cert, certErr := os.ReadFile(m.CertPath())
	key, keyErr := os.ReadFile(m.KeyPath())
	if certErr != nil || keyErr != nil {
		return false
	}
	return len(cert) > 0 && len(key) > 0 && bytes.HasPrefix(cert, pemCertHeader)
}

func (m *Manager) load() (*Bundle, error) {
	certPEM, err := os.ReadFile(m.CertPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCertMissing
		}
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	keyPEM, err := os.ReadFile(m.KeyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCertMissing
		}
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	if len(certPEM) == 0 || len(keyPEM) == 0 || !bytes.HasPrefix(certPEM, pemCertHeader) {
		return nil, ErrCertInvalid
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertInvalid, err)
	}

	return &Bundle{CertPEM: certPEM, KeyPEM: keyPEM, Certificate: cert}, nil
}

func (m *Manager) persist(certPEM, keyPEM []byte) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := os.WriteFile(m.CertPath(), certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(m.KeyPath(), keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

func generateSelfSigned() (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "localhost",
			Organization: []string{"AnyMobile Print Helper"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}
