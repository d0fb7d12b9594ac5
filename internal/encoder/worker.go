package encoder

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/reelwright/hevcsup/internal/bus"
	"github.com/reelwright/hevcsup/internal/probe"
	"github.com/reelwright/hevcsup/internal/store"
	"github.com/reelwright/hevcsup/internal/transcoder"
)

// Tuning knobs for the scheduling loop (§4.5, step-numbered comments
// below refer to that section).
var (
	pausedPollInterval = time.Second
	emptyQueueInterval = 10 * time.Second
	loopCooldown       = time.Second
)

// Worker is the single-slot, long-lived encoder. One Worker runs at a
// time system-wide; it drains the queue file by file until stopped.
type Worker struct {
	store      *store.DB
	probe      probe.Interface
	transcoder transcoder.Interface
	bus        *bus.Bus
	scratchDir string

	fileSort        store.FileSort
	libraryPriority store.LibraryPriority

	mu            sync.Mutex
	running       bool
	paused        bool
	currentCancel context.CancelFunc
	currentFileID int64
}

// New builds a Worker. scratchDir is the local filesystem directory used
// for step (a) of the pipeline (SUPERVISOR_SCRATCH_DIR, defaulting to the
// OS temp dir).
func New(db *store.DB, p probe.Interface, t transcoder.Interface, b *bus.Bus, scratchDir string, fileSort store.FileSort, libraryPriority store.LibraryPriority) *Worker {
	return &Worker{
		store:           db,
		probe:           p,
		transcoder:      t,
		bus:             b,
		scratchDir:      scratchDir,
		fileSort:        fileSort,
		libraryPriority: libraryPriority,
	}
}

// Start runs the scheduling loop until ctx is cancelled or Stop is called.
// Intended to be run in its own goroutine by the app wiring layer.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	for {
		w.mu.Lock()
		running := w.running
		paused := w.paused
		w.mu.Unlock()

		if !running || ctx.Err() != nil {
			return
		}
		if paused {
			sleep(ctx, pausedPollInterval)
			continue
		}

		f, err := w.store.PickQueued(w.fileSort, w.libraryPriority)
		if err != nil || f == nil {
			sleep(ctx, emptyQueueInterval)
			continue
		}

		w.processOne(ctx, f)
		sleep(ctx, loopCooldown)
	}
}

// Stop signals the loop to terminate after its current iteration.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Pause halts dequeuing new work without interrupting a file in flight.
func (w *Worker) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

// Resume clears a prior Pause.
func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
}

// CancelCurrent signals the in-flight transcode to terminate gracefully.
// Returns true iff a file was actually in flight.
func (w *Worker) CancelCurrent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentCancel == nil {
		return false
	}
	w.currentCancel()
	return true
}

func (w *Worker) processOne(ctx context.Context, f *store.File) {
	if err := w.store.StartEncoding(f.ID); err != nil {
		return
	}

	fileCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.currentCancel = cancel
	w.currentFileID = f.ID
	w.mu.Unlock()

	w.publish(f.ID, 0, "encoding_start")

	result := w.runPipeline(fileCtx, f)

	w.mu.Lock()
	w.currentCancel = nil
	w.currentFileID = 0
	w.mu.Unlock()
	cancel()

	w.finish(f, result)
}

func (w *Worker) finish(f *store.File, result pipelineResult) {
	if err := w.store.CompleteEncoding(f.ID, result.status, result.newSize, result.errMessage); err != nil {
		return
	}

	delta := store.StatsDelta{SpaceSaved: result.spaceSaved}
	switch result.status {
	case store.FileStatusFinished:
		delta.FilesFinished = 1
	case store.FileStatusRejected:
		delta.FilesRejected = 1
	case store.FileStatusErrored:
		delta.FilesErrored = 1
	case store.FileStatusCancelled:
		// §4.5(e): cancellation accounts nothing to stats.
	}
	if delta.FilesFinished+delta.FilesRejected+delta.FilesErrored > 0 {
		_ = w.store.RecordOutcome(time.Now(), delta)
	}
	_ = w.store.RecordLastLibraryServed(f.LibraryID)

	if result.status == store.FileStatusFinished && result.spaceSaved > 0 {
		log.Printf("encoder: %s finished, saved %s", f.FilePath, humanize.Bytes(uint64(result.spaceSaved)))
	}

	w.publish(f.ID, 100, "encoding_complete")
}

func (w *Worker) publish(fileID int64, pct float64, event string) {
	if w.bus == nil {
		return
	}
	evtType := bus.EventEncodingProgress
	if event == "encoding_complete" {
		evtType = bus.EventEncodingComplete
	}
	w.bus.Publish(bus.Event{
		Type: evtType,
		Payload: &bus.EncodingProgressPayload{
			FileID:      fileID,
			PercentDone: pct,
			Status:      event,
		},
	})
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
