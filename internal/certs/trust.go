package certs

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Indirections over the platform store query so the cache logic is
// exercisable on every platform.
var (
	trustStoreSupported = storeSupported
	storeIsTrustedFn    = storeIsTrusted
)

// IsTrusted reports whether the local certificate is present in an OS trust
// store. The check spawns an external process on platforms that have one, so
// the result is cached for the TTL window; Install and Remove invalidate the
// cache. Platforms without explicit trust-store semantics always report
// trusted. Check failures report not trusted: trust is advisory UI state,
// never a gate on serving traffic.
func (m *Manager) IsTrusted() bool {
	if !trustStoreSupported {
		return true
	}

	m.trustMu.Lock()
	defer m.trustMu.Unlock()

	if !m.trustChecked.IsZero() && time.Since(m.trustChecked) < m.trustTTL {
		return m.trusted
	}

	trusted, err := storeIsTrustedFn()
	if err != nil {
		m.log.Warn("trust check failed", zap.Error(err))
		trusted = false
	}

	m.trusted = trusted
	m.trustChecked = time.Now()
	return trusted
}

// InvalidateTrust drops the cached trust state so the next IsTrusted call
// queries the store again.
func (m *Manager) InvalidateTrust() {
	m.trustMu.Lock()
	m.trustChecked = time.Time{}
	m.trustMu.Unlock()
}

// Install adds the persisted certificate to the per-user root store, or to
// the machine-wide store via an elevation prompt when elevated is set.
func (m *Manager) Install(elevated bool) error {
	if !storeSupported {
		return ErrNotSupported
	}

	if !m.Exists() {
		return fmt.Errorf("%w: restart the application to regenerate it", ErrCertMissing)
	}

	var err error
	if elevated {
		err = storeInstallMachine(m.CertPath())
	} else {
		err = storeInstallUser(m.CertPath())
	}
	if err != nil {
		return err
	}

	m.InvalidateTrust()
	m.log.Info("certificate installed to trust store", zap.Bool("elevated", elevated))
	return nil
}

// Remove purges matching certificates from the per-user root store.
func (m *Manager) Remove() error {
	if !storeSupported {
		return ErrNotSupported
	}

	if err := storeRemove(); err != nil {
		return err
	}

	m.InvalidateTrust()
	m.log.Info("certificate removed from trust store")
	return nil
}
