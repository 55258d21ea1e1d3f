//go:build windows

package printing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/anymobile/print-helper/internal/config"
	"github.com/anymobile/print-helper/internal/tools"
)

// windowsBackend implements the full fallback chain: Ghostscript raster plus
// GDI submission with a mutated device profile, SumatraPDF direct printing,
// and the shell print verb when no tool can be provisioned.
type windowsBackend struct {
	prov      *tools.Provisioner
	gs        tools.Tool
	sumatra   tools.Tool
	renderDPI int
	mediaType uint32
	log       *zap.Logger
}

func NewBackend(prov *tools.Provisioner, cfg config.DispatchConfig, toolsCfg config.ToolsConfig, log *zap.Logger) Backend {
	return &windowsBackend{
		prov:      prov,
		gs:        tools.GhostscriptTool(toolsCfg.GhostscriptSHA256),
		sumatra:   tools.SumatraTool(toolsCfg.SumatraSHA256),
		renderDPI: cfg.RenderDPI,
		mediaType: cfg.MediaType,
		log:       log,
	}
}

type winPrinter struct {
	Name          string `json:"Name"`
	Default       *bool  `json:"Default"`
	PrinterStatus *int   `json:"PrinterStatus"`
}

func (b *windowsBackend) ListPrinters(ctx context.Context) []Printer {
	out, err := runHidden(ctx, "powershell", "-Command",
		"Get-Printer | Select-Object Name, Default, PrinterStatus | ConvertTo-Json")
	if err != nil {
		b.log.Warn("printer enumeration failed", zap.Error(err))
		return []Printer{}
	}

	trimmed := strings.TrimSpace(out)
	var raw []winPrinter
	switch {
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			b.log.Warn("failed to parse printer list", zap.Error(err))
			return []Printer{}
		}
	case strings.HasPrefix(trimmed, "{"):
		var one winPrinter
		if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
			b.log.Warn("failed to parse printer entry", zap.Error(err))
			return []Printer{}
		}
		raw = []winPrinter{one}
	default:
		return []Printer{}
	}

	printers := make([]Printer, 0, len(raw))
	for _, p := range raw {
		status := StatusUnknown
		if p.PrinterStatus != nil {
			switch *p.PrinterStatus {
			case 0:
				status = StatusReady
			case 1:
				status = StatusBusy
			}
		} else {
			status = StatusReady
		}
		isDefault := p.Default != nil && *p.Default
		printers = append(printers, Printer{Name: p.Name, IsDefault: isDefault, Status: status})
	}
	return printers
}

func (b *windowsBackend) Print(ctx context.Context, job Job, scratchPath string) (string, error) {
	printer := job.Printer
	if printer == "" {
		printer = b.defaultPrinter(ctx)
	}

	if gsPath, ok := b.prov.Lookup(b.gs); ok && printer != "" {
		err := b.printGhostscript(ctx, gsPath, scratchPath, printer, job.Copies)
		if err == nil {
			return "ghostscript-gdi", nil
		}
		b.log.Warn("high-fidelity path failed, falling back to SumatraPDF",
			zap.String("job_id", job.ID),
			zap.Error(err))
	} else if printer == "" {
		b.log.Warn("no default printer resolved, skipping high-fidelity path",
			zap.String("job_id", job.ID))
	} else {
		b.log.Warn("ghostscript not installed, using SumatraPDF (lower quality)",
			zap.String("job_id", job.ID))
	}

	sumatraPath, err := b.prov.Ensure(ctx, b.sumatra)
	if err != nil {
		b.log.Warn("SumatraPDF unavailable, using shell print action",
			zap.String("job_id", job.ID),
			zap.Error(err))
		if err := b.printShell(ctx, scratchPath); err != nil {
			return "shell-print", err
		}
		return "shell-print", nil
	}

	if err := b.printSumatra(ctx, sumatraPath, scratchPath, job.Printer, job.Copies); err != nil {
		return "sumatrapdf", err
	}
	return "sumatrapdf", nil
}

func (b *windowsBackend) defaultPrinter(ctx context.Context) string {
	out, err := runHidden(ctx, "powershell", "-Command",
		`(Get-WmiObject -Query "SELECT * FROM Win32_Printer WHERE Default=$true").Name`)
	if err != nil {
		b.log.Warn("failed to resolve default printer", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(out)
}

// printGhostscript renders the PDF to an uncompressed high-resolution bitmap
// and submits it through GDI with a mutated device profile, so the driver
// honors resolution, media type and copy count.
func (b *windowsBackend) printGhostscript(ctx context.Context, gsPath, pdfPath, printer string, copies int) error {
	pngPath := filepath.Join(os.TempDir(), fmt.Sprintf("print_%s.png", uuid.NewString()))

	args := []string{
		"-dBATCH",
		"-dNOPAUSE",
		"-dNOSAFER",
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%d", b.renderDPI),
		"-dTextAlphaBits=4",
		"-dGraphicsAlphaBits=4",
		fmt.Sprintf("-sOutputFile=%s", pngPath),
		pdfPath,
	}

	out, err := runHidden(ctx, gsPath, args...)
	if err != nil {
		return fmt.Errorf("ghostscript render failed: %v: %s", err, strings.TrimSpace(out))
	}
	if _, statErr := os.Stat(pngPath); statErr != nil {
		return fmt.Errorf("ghostscript did not produce raster output")
	}
	defer os.Remove(pngPath)

	b.log.Info("rendered PDF for high-fidelity print",
		zap.String("printer", printer),
		zap.Int("dpi", b.renderDPI))

	return b.printImageWithProfile(pngPath, printer, copies)
}

func (b *windowsBackend) printSumatra(ctx context.Context, sumatraPath, pdfPath, printer string, copies int) error {
	var args []string
	if printer != "" {
		args = append(args, "-print-to", printer)
	} else {
		args = append(args, "-print-to-default")
	}
	args = append(args,
		"-print-settings", fmt.Sprintf("%dx,noscale", copies),
		"-silent",
		pdfPath,
	)

	b.log.Info("submitting to SumatraPDF", zap.Strings("args", args))

	out, err := runHidden(ctx, sumatraPath, args...)
	if err != nil {
		return fmt.Errorf("sumatra print failed: %v: %s", err, strings.TrimSpace(out))
	}
	return nil
}

// printShell hands the document to the OS default print action for PDFs.
// Fidelity depends entirely on whatever application claims the verb.
func (b *windowsBackend) printShell(ctx context.Context, pdfPath string) error {
	script := fmt.Sprintf(`Start-Process -FilePath '%s' -Verb Print -WindowStyle Hidden -Wait:$false`, pdfPath)
	out, err := runHidden(ctx, "powershell", "-Command", script)
	if err != nil {
		return fmt.Errorf("shell print action failed: %v: %s", err, strings.TrimSpace(out))
	}
	return nil
}

func runHidden(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}
