package tools

import (
	"os"
	"path/filepath"
)

// Ghostscript versions probed under Program Files, newest first.
var ghostscriptVersions = []string{
	"gs10.04.0", "gs10.03.1", "gs10.03.0", "gs10.02.1", "gs10.02.0",
	"gs10.01.2", "gs10.00.0", "gs9.56.1", "gs9.55.0",
}

// GhostscriptTool describes the rasterizer used by the high-fidelity print
// path. Its NSIS installer takes /S (silent) and /D= (destination); the
// destination is kept inside the app's tool directory so no admin rights are
// needed for the files, though the installer itself may prompt.
func GhostscriptTool(sha256 string) Tool {
	var system []string
	for _, base := range programFilesDirs() {
		for _, version := range ghostscriptVersions {
			system = append(system,
				filepath.Join(base, "gs", version, "bin", "gswin64c.exe"),
				filepath.Join(base, "gs", version, "bin", "gswin32c.exe"),
			)
		}
	}

	return Tool{
		ID:      Ghostscript,
		ExeName: "gswin64c.exe",
		LocalPaths: []string{
			filepath.Join("gs", "bin", "gswin64c.exe"),
			filepath.Join("gs", "gs10.04.0", "bin", "gswin64c.exe"),
		},
		SystemPaths: system,
		DownloadURL: "https://github.com/ArtifexSoftware/ghostpdl-downloads/releases/download/gs10040/gs10040w64.exe",
		SHA256:      sha256,
		Installer:   true,
		InstallDir:  "gs",
		InstallerArgs: func(destDir string) []string {
			return []string{"/S", "/D=" + destDir}
		},
	}
}

// SumatraTool describes the portable PDF printer used by the generic path.
// The release artifact is the executable itself; no installer runs.
func SumatraTool(sha256 string) Tool {
	return Tool{
		ID:          SumatraPDF,
		ExeName:     "SumatraPDF.exe",
		LocalPaths:  []string{"SumatraPDF.exe"},
		DownloadURL: "https://www.sumatrapdfreader.org/dl/rel/3.5.2/SumatraPDF-3.5.2-64.exe",
		SHA256:      sha256,
	}
}

func programFilesDirs() []string {
	dirs := make([]string, 0, 2)
	if v := os.Getenv("ProgramFiles"); v != "" {
		dirs = append(dirs, v)
	} else {
		dirs = append(dirs, `C:\Program Files`)
	}
	if v := os.Getenv("ProgramFiles(x86)"); v != "" {
		dirs = append(dirs, v)
	} else {
		dirs = append(dirs, `C:\Program Files (x86)`)
	}
	return dirs
}
