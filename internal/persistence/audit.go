// internal/persistence/audit.go
package persistence

import (
	"sync"
	"time"

	"collision-hub/internal/interfaces"
	"collision-hub/internal/models"
	"collision-hub/internal/utils"

	"github.com/sourcegraph/conc"
)

// AuditWriter batches command log entries into Postgres. It implements
// dispatch.AuditSink.
type AuditWriter struct {
	db         interfaces.DatabaseService
	batchSize  int
	flushEvery time.Duration

	mu      sync.Mutex
	closed  bool
	entries chan models.CommandLog
	worker  conc.WaitGroup
}

func NewAuditWriter(db interfaces.DatabaseService, batchSize int, flushEvery time.Duration) *AuditWriter {
	if batchSize < 1 {
		batchSize = 100
	}
	if flushEvery <= 0 {
		flushEvery = time.Second
	}
	w := &AuditWriter{
		db:         db,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		entries:    make(chan models.CommandLog, batchSize*4),
	}
	w.worker.Go(w.run)
	return w
}

// RecordCommand queues one entry. When the buffer is full the entry is
// dropped; the audit log never slows delivery down.
func (w *AuditWriter) RecordCommand(entry models.CommandLog) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.entries <- entry:
	default:
		utils.ForDevice(entry.DeviceID).Warn("Audit buffer full, dropping command log entry")
	}
}

// Close flushes everything queued so far.
func (w *AuditWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.entries)
	w.mu.Unlock()
	w.worker.Wait()
}

func (w *AuditWriter) run() {
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	batch := make([]models.CommandLog, 0, w.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.db.CreateCommandLogs(batch); err != nil {
			utils.Logger.WithError(err).WithField("entries", len(batch)).Error("Failed to write command audit log")
		}
		batch = make([]models.CommandLog, 0, w.batchSize)
	}

	for {
		select {
		case e, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
