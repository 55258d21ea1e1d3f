// Package tools locates external helper binaries and provisions them on
// demand: probe well-known locations first, then download a pinned release
// artifact and run its installer under a bounded wait.
package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrDownloadFailed = errors.New("tool download failed")
	ErrInstallTimeout = errors.New("installer timed out")
	ErrInstallFailed  = errors.New("tool installation failed")
	ErrDigestMismatch = errors.New("downloaded artifact digest mismatch")
)

type ID string

const (
	Ghostscript ID = "ghostscript"
	SumatraPDF  ID = "sumatrapdf"
)

// Tool describes one provisionable helper. LocalPaths are relative to the
// provisioner's tool directory, SystemPaths are absolute well-known install
// locations; both are probed before PATH. A Tool with an empty DownloadURL
// can only be found, never provisioned.
type Tool struct {
	ID          ID
	ExeName     string
	LocalPaths  []string
	SystemPaths []string
	DownloadURL string
	// SHA256 is the hex digest of the release artifact. Empty skips
	// verification with a logged warning.
	SHA256 string
	// Installer marks the artifact as a silent installer to execute rather
	// than the executable itself.
	Installer     bool
	InstallerArgs func(destDir string) []string
	// InstallDir is the directory (relative to the tool directory) handed
	// to the installer as its destination.
	InstallDir string
}

type Provisioner struct {
	dir              string
	client           *http.Client
	installerTimeout time.Duration
	log              *zap.Logger

	mu       sync.Mutex
	inFlight map[ID]*sync.Mutex
}

func NewProvisioner(dir string, downloadTimeout, installerTimeout time.Duration, log *zap.Logger) *Provisioner {
	if downloadTimeout <= 0 {
		downloadTimeout = 5 * time.Minute
	}
	if installerTimeout <= 0 {
		installerTimeout = 120 * time.Second
	}
	return &Provisioner{
		dir:              dir,
		client:           &http.Client{Timeout: downloadTimeout},
		installerTimeout: installerTimeout,
		log:              log,
		inFlight:         make(map[ID]*sync.Mutex),
	}
}

// Lookup probes the fixed search order without provisioning: tool directory,
// well-known system locations, PATH.
func (p *Provisioner) Lookup(t Tool) (string, bool) {
	for _, rel := range t.LocalPaths {
		path := filepath.Join(p.dir, rel)
		if fileExists(path) {
			return path, true
		}
	}

	for _, path := range t.SystemPaths {
		if fileExists(path) {
			return path, true
		}
	}

	if t.ExeName != "" {
		if path, err := exec.LookPath(t.ExeName); err == nil {
			return path, true
		}
	}

	return "", false
}

// Ensure returns the path to a ready executable, downloading and installing
// the tool if no probe location has it.
func (p *Provisioner) Ensure(ctx context.Context, t Tool) (string, error) {
	if path, ok := p.Lookup(t); ok {
		return path, nil
	}

	// One provisioning run per tool; late arrivals wait and re-probe.
	lock := p.toolLock(t.ID)
	lock.Lock()
	defer lock.Unlock()

	if path, ok := p.Lookup(t); ok {
		return path, nil
	}

	if t.DownloadURL == "" {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, t.ID)
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create tool directory: %w", err)
	}

	p.log.Info("provisioning tool",
		zap.String("tool", string(t.ID)),
		zap.String("url", t.DownloadURL))

	if !t.Installer {
		// Portable executable: download straight to its final path.
		dest := filepath.Join(p.dir, t.LocalPaths[0])
		if err := p.download(ctx, t, dest); err != nil {
			return "", err
		}
		return dest, nil
	}

	installerPath := filepath.Join(p.dir, fmt.Sprintf("%s_installer.exe", t.ID))
	if err := p.download(ctx, t, installerPath); err != nil {
		return "", err
	}
	defer os.Remove(installerPath)

	destDir := filepath.Join(p.dir, t.InstallDir)
	var args []string
	if t.InstallerArgs != nil {
		args = t.InstallerArgs(destDir)
	}

	if err := p.runInstaller(ctx, t.ID, installerPath, args); err != nil {
		return "", err
	}

	// Some installers report completion before the last files land.
	time.Sleep(2 * time.Second)

	if path, ok := p.Lookup(t); ok {
		p.log.Info("tool installed", zap.String("tool", string(t.ID)), zap.String("path", path))
		return path, nil
	}

	return "", fmt.Errorf("%w: %s executable not found after install", ErrInstallFailed, t.ID)
}

func (p *Provisioner) download(ctx context.Context, t Tool, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d from %s", ErrDownloadFailed, resp.StatusCode, t.DownloadURL)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	tmp := dest + ".partial"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(f, hasher), resp.Body)
	closeErr := f.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, closeErr)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if t.SHA256 == "" {
		p.log.Warn("no digest pinned for tool artifact, skipping verification",
			zap.String("tool", string(t.ID)),
			zap.String("sha256", digest))
	} else if !strings.EqualFold(digest, t.SHA256) {
		os.Remove(tmp)
		return fmt.Errorf("%w: got %s, want %s", ErrDigestMismatch, digest, t.SHA256)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	p.log.Info("tool artifact downloaded",
		zap.String("tool", string(t.ID)),
		zap.Int64("bytes", written))
	return nil
}

func (p *Provisioner) toolLock(id ID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.inFlight[id]
	if !ok {
		lock = &sync.Mutex{}
		p.inFlight[id] = lock
	}
	return lock
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
