package printing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anymobile/print-helper/internal/history"
)

// Dispatcher turns an abstract print request into a backend submission. It
// owns the scratch-file lifecycle and serializes device reconfiguration per
// printer; everything OS-specific lives behind the Backend.
type Dispatcher struct {
	backend   Backend
	store     *history.Store
	log       *zap.Logger
	retention time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDispatcher(backend Backend, store *history.Store, retention time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		backend:   backend,
		store:     store,
		log:       log,
		retention: retention,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Dispatch persists the document to a scratch file, submits it through the
// backend and returns the job identifier once the print command has been
// issued. It does not wait for the printer to finish. The scratch file is
// removed by a background sweep after a grace period because some backends
// read it after the initiating call returns.
func (d *Dispatcher) Dispatch(ctx context.Context, document []byte, printerName string, copies int) (string, error) {
	if len(document) == 0 {
		return "", ErrNoDocument
	}
	if copies < 1 {
		copies = 1
	}

	job := Job{
		ID:      uuid.NewString(),
		Printer: printerName,
		Copies:  copies,
	}

	scratchPath := filepath.Join(os.TempDir(), fmt.Sprintf("print_%s.pdf", job.ID))
	if err := os.WriteFile(scratchPath, document, 0o600); err != nil {
		return "", fmt.Errorf("failed to persist scratch document: %w", err)
	}

	d.log.Info("dispatching print job",
		zap.String("job_id", job.ID),
		zap.String("printer", printerName),
		zap.Int("copies", copies),
		zap.Int("bytes", len(document)))

	if err := d.store.RecordSubmitted(ctx, history.Record{
		ID:          job.ID,
		Printer:     printerName,
		Copies:      copies,
		SizeBytes:   int64(len(document)),
		Status:      history.StatusSubmitted,
		SubmittedAt: time.Now(),
	}); err != nil {
		d.log.Warn("failed to record job history", zap.String("job_id", job.ID), zap.Error(err))
	}

	// At most one device reconfiguration sequence per printer at a time.
	// The OS spooler serializes the physical device; this only protects the
	// fetch/mutate/validate round trip.
	unlock := d.lockPrinter(printerName)
	backendName, err := d.backend.Print(ctx, job, scratchPath)
	unlock()

	if err != nil {
		d.scheduleCleanup(job.ID, scratchPath)
		if herr := d.store.MarkFailed(context.WithoutCancel(ctx), job.ID, backendName, err.Error()); herr != nil {
			d.log.Warn("failed to record job failure", zap.String("job_id", job.ID), zap.Error(herr))
		}
		return "", fmt.Errorf("%w: %v", ErrPrintCommand, err)
	}

	d.scheduleCleanup(job.ID, scratchPath)
	if herr := d.store.MarkCompleted(context.WithoutCancel(ctx), job.ID, backendName); herr != nil {
		d.log.Warn("failed to record job completion", zap.String("job_id", job.ID), zap.Error(herr))
	}

	d.log.Info("print job submitted",
		zap.String("job_id", job.ID),
		zap.String("backend", backendName))

	return job.ID, nil
}

func (d *Dispatcher) lockPrinter(name string) func() {
	d.mu.Lock()
	lock, ok := d.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[name] = lock
	}
	d.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (d *Dispatcher) scheduleCleanup(jobID, scratchPath string) {
	time.AfterFunc(d.retention, func() {
		if err := os.Remove(scratchPath); err != nil && !os.IsNotExist(err) {
			d.log.Warn("failed to remove scratch document",
				zap.String("job_id", jobID),
				zap.String("path", scratchPath),
				zap.Error(err))
		}
	})
}
