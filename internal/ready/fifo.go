// Package ready tells orchestration scripts that a process reached its serving state by
// writing a line into a named pipe the script is blocked reading.
package ready

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

const defaultPayload = "READY\n"

// SignalFifoCtx writes payload to the FIFO at path.
//   - The open uses O_NONBLOCK so a missing reader never blocks the caller.
//   - ENXIO (no reader yet) is retried until ctx is done or timeout elapses.
//   - Any other open error gives up immediately.
//
// An empty path is a no-op; timeout <= 0 means 8s.
func SignalFifoCtx(ctx context.Context, path string, payload string, timeout time.Duration) error {
	if path == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if payload == "" {
		payload = defaultPayload
	}
	lg := obs.Logger("ready")

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	tick := time.NewTicker(80 * time.Millisecond)
	defer tick.Stop()

	for {
		fd, err := syscall.Open(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err == nil {
			f := os.NewFile(uintptr(fd), path)
			_, werr := f.WriteString(payload)
			_ = f.Close()
			return werr
		}

		if errors.Is(err, syscall.ENXIO) {
			select {
			case <-ctx.Done():
				lg.Warn().Str("path", path).Err(ctx.Err()).Msg("canceled before fifo ready")
				return ctx.Err()
			case <-deadline.C:
				lg.Warn().Str("path", path).Dur("timeout", timeout).Msg("timeout waiting fifo reader")
				return os.ErrDeadlineExceeded
			case <-tick.C:
				continue
			}
		}

		lg.Error().Str("path", path).Err(err).Msg("fifo open failed")
		return err
	}
}

// Once signals a FIFO at most once, in the background.
type Once struct {
	Path    string
	Payload string
	Timeout time.Duration

	once sync.Once
}

func (o *Once) Signal(ctx context.Context) {
	if o == nil || o.Path == "" {
		return
	}
	o.once.Do(func() {
		go func() { _ = SignalFifoCtx(ctx, o.Path, o.Payload, o.Timeout) }()
	})
}
