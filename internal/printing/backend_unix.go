//go:build !windows

package printing

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/anymobile/print-helper/internal/config"
	"github.com/anymobile/print-helper/internal/tools"
)

// unixBackend drives CUPS. lp handles PDF natively, so there is no separate
// raster path here: quality is requested through printer options on the
// single submission, and DEVMODE-style profiles do not exist.
type unixBackend struct {
	log *zap.Logger
}

func NewBackend(prov *tools.Provisioner, cfg config.DispatchConfig, toolsCfg config.ToolsConfig, log *zap.Logger) Backend {
	return &unixBackend{log: log}
}

func (b *unixBackend) ListPrinters(ctx context.Context) []Printer {
	out, err := exec.CommandContext(ctx, "lpstat", "-p", "-d").Output()
	if err != nil {
		b.log.Warn("lpstat failed", zap.Error(err))
		return []Printer{}
	}
	return parseLpstat(string(out))
}

func (b *unixBackend) Print(ctx context.Context, job Job, scratchPath string) (string, error) {
	args := []string{
		"-n", strconv.Itoa(job.Copies),
		"-o", "fit-to-page=false",
		"-o", "scaling=100",
	}

	if job.Printer != "" {
		for _, opt := range cupsQualityOptions(job.Printer) {
			args = append(args, "-o", opt)
		}
		args = append(args, "-d", job.Printer)
	}

	args = append(args, scratchPath)

	b.log.Info("submitting to lp",
		zap.String("job_id", job.ID),
		zap.Strings("args", args))

	out, err := exec.CommandContext(ctx, "lp", args...).CombinedOutput()
	if err != nil {
		return "cups-lp", fmt.Errorf("lp command failed: %v: %s", err, strings.TrimSpace(string(out)))
	}

	return "cups-lp", nil
}

// parseLpstat normalizes `lpstat -p -d` output. Lines look like:
//
//	printer Office_Laser is idle.  enabled since ...
//	printer Epson_ET is now printing Epson_ET-42.
//	system default destination: Office_Laser
func parseLpstat(out string) []Printer {
	printers := make([]Printer, 0, 4)
	defaultName := ""

	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "printer "):
			parts := strings.Fields(line)
			if len(parts) < 2 {
				continue
			}
			status := StatusUnknown
			if strings.Contains(line, "idle") {
				status = StatusReady
			} else if strings.Contains(line, "printing") {
				status = StatusBusy
			}
			printers = append(printers, Printer{Name: parts[1], Status: status})
		case strings.HasPrefix(line, "system default destination:"):
			defaultName = strings.TrimSpace(strings.TrimPrefix(line, "system default destination:"))
		}
	}

	for i := range printers {
		if printers[i].Name == defaultName {
			printers[i].IsDefault = true
		}
	}

	return printers
}
