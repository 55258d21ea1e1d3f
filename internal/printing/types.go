package printing

import (
	"context"
	"errors"
)

var (
	ErrNoDocument    = errors.New("no document provided")
	ErrPrintCommand  = errors.New("print command failed")
	ErrDeviceProfile = errors.New("device profile unavailable")
	ErrNoPrinters    = errors.New("no printers available")
)

// Printer status vocabulary. Platform enumerators normalize whatever the OS
// reports into these three values.
const (
	StatusReady   = "ready"
	StatusBusy    = "busy"
	StatusUnknown = "unknown"
)

// Printer describes one system printer at enumeration time. Descriptors are
// rebuilt on every call and carry no identity beyond the name.
type Printer struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	Status    string `json:"status"`
}

// Job is a single print request. The document bytes live only for the
// duration of dispatch; the scratch copy on disk outlives the submission
// call because some backends read it asynchronously.
type Job struct {
	ID      string
	Printer string // empty means the system default
	Copies  int
}

// Backend is the platform print capability: enumerate printers and submit a
// scratch PDF to one of them. Print returns the name of the path actually
// used (for example "ghostscript-gdi" or "cups-lp") so callers can record
// what fidelity the job got.
type Backend interface {
	ListPrinters(ctx context.Context) []Printer
	Print(ctx context.Context, job Job, scratchPath string) (string, error)
}
