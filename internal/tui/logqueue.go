package tui

import (
	"sync"

	"github.com/glabrego/canto-ng/internal/logging"
)

type queuedRecord struct {
	err bool
	msg string
}

// logQueue is the sink the log tee writes to. Records can come from any
// goroutine; they wait here until the UI loop drains them into the message
// vars.
type logQueue struct {
	mu      sync.Mutex
	records []queuedRecord
	notify  chan struct{}
}

func newLogQueue() *logQueue {
	return &logQueue{notify: make(chan struct{}, 1)}
}

func (q *logQueue) Info(msg string)  { q.push(queuedRecord{msg: msg}) }
func (q *logQueue) Error(msg string) { q.push(queuedRecord{err: true, msg: msg}) }

func (q *logQueue) push(r queuedRecord) {
	q.mu.Lock()
	q.records = append(q.records, r)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain hands every queued record to sink, oldest first.
func (q *logQueue) drain(sink logging.Sink) int {
	q.mu.Lock()
	records := q.records
	q.records = nil
	q.mu.Unlock()
	for _, r := range records {
		if r.err {
			sink.Error(r.msg)
		} else {
			sink.Info(r.msg)
		}
	}
	return len(records)
}
