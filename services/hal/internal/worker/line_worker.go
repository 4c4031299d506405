// services/hal/internal/worker/line_worker.go
package worker

import (
	"context"
	"time"

	"github.com/marklacroix/dht/services/hal/internal/halcore"
)

// LineWorker serializes access to one sensor line. Single-wire reads
// are timing-critical and cannot overlap, so every job touching a line
// runs on that line's worker goroutine.
type LineWorker struct {
	cfg  halcore.WorkerConfig
	reqQ chan halcore.ReadReq
}

func New(cfg halcore.WorkerConfig) *LineWorker {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = 16
	}
	return &LineWorker{
		cfg:  cfg,
		reqQ: make(chan halcore.ReadReq, cfg.InputQueueSize),
	}
}

// Submit enqueues without blocking. Priority requests get a short grace
// period before giving up; periodic ones drop on a full queue and get
// picked up next cycle.
func (w *LineWorker) Submit(req halcore.ReadReq) bool {
	select {
	case w.reqQ <- req:
		return true
	default:
		if req.Prio {
			select {
			case w.reqQ <- req:
				return true
			case <-time.After(5 * time.Millisecond):
			}
		}
		return false
	}
}

func (w *LineWorker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-w.reqQ:
				jctx, cancel := context.WithTimeout(ctx, w.cfg.ReadTimeout)
				req.Job.Run(jctx)
				cancel()
			}
		}
	}()
}
