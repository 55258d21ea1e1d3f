//go:build windows

package certs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

const storeSupported = true

// storeIsTrusted looks for a localhost certificate in the per-user or
// machine-wide trusted root store.
func storeIsTrusted() (bool, error) {
	const script = `
$user = Get-ChildItem -Path Cert:\CurrentUser\Root | Where-Object { $_.Subject -like "*localhost*" }
$machine = Get-ChildItem -Path Cert:\LocalMachine\Root | Where-Object { $_.Subject -like "*localhost*" }
if ($user -or $machine) { "true" } else { "false" }
`
	out, err := runPowerShell(script)
	if err != nil {
		return false, fmt.Errorf("trust store query failed: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(out), "true"), nil
}

// storeInstallUser imports the PEM certificate into CurrentUser\Root. No
// elevation needed; Windows may still show its own confirmation dialog for
// root-store additions.
func storeInstallUser(certPath string) error {
	script := fmt.Sprintf(`
$ErrorActionPreference = 'Stop'
try {
    $pem = Get-Content '%s' -Raw
    $base64 = $pem -replace '-----BEGIN CERTIFICATE-----', '' -replace '-----END CERTIFICATE-----', '' -replace '\s', ''
    $bytes = [Convert]::FromBase64String($base64)
    $cert = [System.Security.Cryptography.X509Certificates.X509Certificate2]::new($bytes)
    $store = New-Object System.Security.Cryptography.X509Certificates.X509Store("Root", "CurrentUser")
    $store.Open("ReadWrite")
    $store.Add($cert)
    $store.Close()
    Write-Host "SUCCESS"
} catch {
    Write-Host "ERROR: $_"
    exit 1
}
`, certPath)

	out, err := runPowerShell(script)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	if !strings.Contains(out, "SUCCESS") {
		return fmt.Errorf("%w: %s", ErrInstallFailed, strings.TrimSpace(out))
	}
	return nil
}

// storeInstallMachine imports into LocalMachine\Root via an elevated child
// PowerShell; the user sees a UAC prompt and may decline.
func storeInstallMachine(certPath string) error {
	script := fmt.Sprintf(`
$ErrorActionPreference = 'Stop'
$pem = Get-Content '%s' -Raw
$base64 = $pem -replace '-----BEGIN CERTIFICATE-----', '' -replace '-----END CERTIFICATE-----', '' -replace '\s', ''
$bytes = [Convert]::FromBase64String($base64)
$cert = [System.Security.Cryptography.X509Certificates.X509Certificate2]::new($bytes)
$store = New-Object System.Security.Cryptography.X509Certificates.X509Store("Root", "LocalMachine")
$store.Open("ReadWrite")
$store.Add($cert)
$store.Close()
`, certPath)

	scriptPath := filepath.Join(os.TempDir(), "install_cert.ps1")
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return fmt.Errorf("%w: failed to write elevation script: %v", ErrInstallFailed, err)
	}
	defer os.Remove(scriptPath)

	elevate := fmt.Sprintf(
		`Start-Process powershell -Verb RunAs -ArgumentList '-ExecutionPolicy Bypass -NoProfile -File "%s"' -Wait`,
		scriptPath)

	// No hidden window here: hiding the parent also hides the UAC prompt.
	cmd := exec.Command("powershell", "-Command", elevate)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		// Start-Process -Verb RunAs fails when the user declines the prompt.
		if strings.Contains(msg, "canceled") || strings.Contains(msg, "cancelled") {
			return ErrCancelled
		}
		return fmt.Errorf("%w: %s", ErrInstallFailed, msg)
	}
	return nil
}

// storeRemove purges localhost certificates from CurrentUser\Root.
func storeRemove() error {
	const script = `
$ErrorActionPreference = 'Stop'
try {
    $certs = Get-ChildItem -Path Cert:\CurrentUser\Root | Where-Object { $_.Subject -like "*localhost*" }
    foreach ($cert in $certs) {
        $store = New-Object System.Security.Cryptography.X509Certificates.X509Store("Root", "CurrentUser")
        $store.Open("ReadWrite")
        $store.Remove($cert)
        $store.Close()
    }
    Write-Host "SUCCESS"
} catch {
    Write-Host "ERROR: $_"
}
`
	out, err := runPowerShell(script)
	if err != nil {
		return fmt.Errorf("failed to remove certificate: %w", err)
	}
	if !strings.Contains(out, "SUCCESS") {
		return fmt.Errorf("failed to remove certificate: %s", strings.TrimSpace(out))
	}
	return nil
}

func runPowerShell(script string) (string, error) {
	cmd := exec.Command("powershell", "-ExecutionPolicy", "Bypass", "-NoProfile", "-Command", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}
