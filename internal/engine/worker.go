package engine

import (
	"log/slog"
	"sync"
)

// worker runs every storage command on a single goroutine, FIFO, so two
// commands never touch the database concurrently. Queries embed their own
// reply channel in the closure and block the caller until it's filled;
// mutations fire observers on the shared event channel before returning.
// There is no cancellation: once a command is queued it runs to completion,
// matching the cooperative, non-preemptive model the store's single
// connection already assumes.
type worker struct {
	cmds        chan func()
	events      chan Event
	done        chan struct{}
	wg          sync.WaitGroup
	log         *slog.Logger
	synchronous bool
}

// eventBufferSize bounds how far the event stream can lag behind the
// commands producing it before publish starts dropping events rather than
// stalling the worker goroutine.
const eventBufferSize = 256

// newWorker starts the background goroutine that owns every command unless
// synchronous is true, in which case submit runs each command inline on the
// caller's own goroutine instead of posting to the channel — a deterministic
// test-only mode that trades the async contract for predictable ordering in
// assertions.
func newWorker(log *slog.Logger, synchronous bool) *worker {
	w := &worker{
		cmds:        make(chan func(), 64),
		events:      make(chan Event, eventBufferSize),
		done:        make(chan struct{}),
		log:         log,
		synchronous: synchronous,
	}
	if !synchronous {
		w.wg.Add(1)
		go w.run()
	}
	return w
}

func (w *worker) run() {
	defer w.wg.Done()
	for {
		select {
		case cmd := <-w.cmds:
			cmd()
		case <-w.done:
			w.drain()
			return
		}
	}
}

// drain runs every command still queued at shutdown rather than abandoning
// them, so a Close racing a just-submitted mutation still completes it.
func (w *worker) drain() {
	for {
		select {
		case cmd := <-w.cmds:
			cmd()
		default:
			return
		}
	}
}

// submit queues cmd and blocks until a worker slot accepts it. Callers that
// need a result close over a reply channel and receive from it after
// submit returns.
func (w *worker) submit(cmd func()) {
	if w.synchronous {
		cmd()
		return
	}
	select {
	case w.cmds <- cmd:
	case <-w.done:
	}
}

// publish broadcasts ev to Events(). If no one is reading fast enough to
// keep the buffer from filling, the event is dropped and logged rather than
// blocking the worker goroutine, which would otherwise wedge every queued
// command behind a slow subscriber.
func (w *worker) publish(ev Event) {
	select {
	case w.events <- ev:
	default:
		w.log.Warn("event dropped, subscriber too slow", slog.String("event", eventName(ev)))
	}
}

func (w *worker) stop() {
	select {
	case <-w.done:
		return
	default:
	}
	close(w.done)
	if !w.synchronous {
		w.wg.Wait()
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case DataInserted:
		return "DataInserted"
	case DataRemoved:
		return "DataRemoved"
	case DataUpdated:
		return "DataUpdated"
	case DataImported:
		return "DataImported"
	case DataSynced:
		return "DataSynced"
	case DataOutdated:
		return "DataOutdated"
	case HistoryRequestCompleted:
		return "HistoryRequestCompleted"
	case StatsDataAvailable:
		return "StatsDataAvailable"
	case SyncDataAvailable:
		return "SyncDataAvailable"
	case SyncStatsAvailable:
		return "SyncStatsAvailable"
	case SizeChanged:
		return "SizeChanged"
	case CategoriesChanged:
		return "CategoriesChanged"
	case UndoCountChanged:
		return "UndoCountChanged"
	case Error:
		return "Error"
	default:
		return "unknown"
	}
}
