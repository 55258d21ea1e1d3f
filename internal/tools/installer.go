package tools

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// installState tracks an installer run through its bounded wait.
type installState int

const (
	stateStarting installState = iota
	stateRunning
	stateCompleted
	stateTimedOut
	stateFailed
)

func (s installState) String() string {
	switch s {
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	case stateCompleted:
		return "completed"
	case stateTimedOut:
		return "timed_out"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// runInstaller executes a silent installer and polls for completion up to the
// configured timeout, killing the child if it overruns. The installer is not
// run with a hidden window: installers that need privilege escalation must be
// able to show the elevation prompt.
func (p *Provisioner) runInstaller(ctx context.Context, id ID, installerPath string, args []string) error {
	state := stateStarting

	cmd := exec.Command(installerPath, args...)
	if err := cmd.Start(); err != nil {
		state = stateFailed
		p.log.Error("installer failed to start",
			zap.String("tool", string(id)),
			zap.String("state", state.String()),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	state = stateRunning
	p.log.Info("installer running",
		zap.String("tool", string(id)),
		zap.Strings("args", args))

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	deadline := time.NewTimer(p.installerTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for state == stateRunning {
		select {
		case err := <-done:
			if err != nil {
				state = stateFailed
				p.log.Error("installer exited with error",
					zap.String("tool", string(id)),
					zap.Error(err))
				return fmt.Errorf("%w: %v", ErrInstallFailed, err)
			}
			state = stateCompleted
		case <-deadline.C:
			state = stateTimedOut
			_ = cmd.Process.Kill()
			<-done
			p.log.Error("installer timed out",
				zap.String("tool", string(id)),
				zap.Duration("timeout", p.installerTimeout))
			return fmt.Errorf("%w after %s", ErrInstallTimeout, p.installerTimeout)
		case <-ctx.Done():
			state = stateFailed
			_ = cmd.Process.Kill()
			<-done
			return fmt.Errorf("%w: %v", ErrInstallFailed, ctx.Err())
		case <-ticker.C:
			// Still running; the tick bounds how long we block between
			// checks and gives the log a heartbeat at debug level.
			p.log.Debug("waiting for installer",
				zap.String("tool", string(id)),
				zap.String("state", state.String()))
		}
	}

	p.log.Info("installer completed", zap.String("tool", string(id)))
	return nil
}
