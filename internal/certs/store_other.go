//go:build !windows

package certs

// macOS and Linux browsers run their own trust flow for self-signed local
// certificates; the bridge never touches a system store there.
const storeSupported = false

func storeIsTrusted() (bool, error) {
	return true, nil
}

func storeInstallUser(certPath string) error {
	return ErrNotSupported
}

func storeInstallMachine(certPath string) error {
	return ErrNotSupported
}

func storeRemove() error {
	return ErrNotSupported
}
