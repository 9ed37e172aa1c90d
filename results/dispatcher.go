package results

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/VForWaTer/tool-vforwater-loader/metrics"
	"golang.org/x/sync/errgroup"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// Dispatcher writes result tables on a bounded pool. Failures are logged as they happen and
// collected for Wait, so one failing file does not stop the others.
type Dispatcher struct {
	directory string
	group     errgroup.Group

	lock    sync.Mutex
	errs    []error
	written []string
}

func NewDispatcher(directory string, workers int) *Dispatcher {
	dispatcher := &Dispatcher{directory: directory}
	dispatcher.group.SetLimit(max(workers, 1))
	return dispatcher
}

// Submit schedules a write of <name>.parquet, blocking while the pool is full. Once ctx is
// cancelled, no new writes are started; writes already running complete.
func (dispatcher *Dispatcher) Submit(ctx context.Context, name string, table db.ResultTable) {
	path := filepath.Join(dispatcher.directory, name+FileExtension)

	dispatcher.group.Go(func() error {
		if err := ctx.Err(); err != nil {
			dispatcher.fail(wrap.Errorf(err, "write of '%s' not started", path))
			return nil
		}

		start := time.Now()
		if err := WriteParquet(path, table); err != nil {
			metrics.ResultFilesWrittenTotal.WithLabelValues(metrics.StatusError).Inc()
			log.ErrorCause(err, "failed to write result file", slog.String("path", path))
			dispatcher.fail(err)
			return nil
		}

		metrics.ResultFilesWrittenTotal.WithLabelValues(metrics.StatusSuccess).Inc()
		log.Info(
			"wrote result file",
			slog.String("path", path),
			slog.Int("rows", table.Len()),
			slog.Duration("duration", time.Since(start)),
		)

		dispatcher.lock.Lock()
		dispatcher.written = append(dispatcher.written, path)
		dispatcher.lock.Unlock()
		return nil
	})
}

func (dispatcher *Dispatcher) fail(err error) {
	dispatcher.lock.Lock()
	defer dispatcher.lock.Unlock()
	dispatcher.errs = append(dispatcher.errs, err)
}

// Wait blocks until every submitted write has finished, and returns the paths written.
func (dispatcher *Dispatcher) Wait() (written []string, err error) {
	_ = dispatcher.group.Wait()

	dispatcher.lock.Lock()
	defer dispatcher.lock.Unlock()

	written = append(written, dispatcher.written...)
	if len(dispatcher.errs) != 0 {
		return written, wrap.Errors(
			fmt.Sprintf("%d result file writes failed", len(dispatcher.errs)), dispatcher.errs...,
		)
	}
	return written, nil
}
