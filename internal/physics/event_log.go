package physics

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"sphere-field/internal/physics/mpsc"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize    = 4096                   // ring capacity
	MaxEventsPerSec    = 10000                  // global rate limit
	BatchFlushSize     = 256                    // events per batch write
	BatchFlushInterval = 100 * time.Millisecond // how often to flush
)

// EventLog is a bounded, rate-limited JSONL log of contacts. Pipeline
// workers emit into a lock-free ring; one writer goroutine drains it.
type EventLog struct {
	queue   *mpsc.Queue[ContactEvent]
	limiter *rate.Limiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	out   io.Writer
	file  *os.File
	outMu sync.Mutex

	sequence atomic.Uint64
	total    atomic.Uint64
	dropped  atomic.Uint64
	written  atomic.Uint64
}

// NewEventLog creates a stopped event log. eventsPerSec <= 0 uses
// MaxEventsPerSec.
func NewEventLog(eventsPerSec int) *EventLog {
	if eventsPerSec <= 0 {
		eventsPerSec = MaxEventsPerSec
	}
	burst := eventsPerSec / 10
	if burst < 1 {
		burst = 1
	}
	return &EventLog{
		queue:    mpsc.New[ContactEvent](EventBufferSize),
		limiter:  rate.NewLimiter(rate.Limit(eventsPerSec), burst),
		stopChan: make(chan struct{}),
	}
}

// Start opens filePath for append and starts the writer. An empty path
// keeps events in memory only; they are still counted and drained.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		el.file = file
		el.out = file
	}
	el.startWriter()
	return nil
}

// StartWriter starts the log writing to w instead of a file.
func (el *EventLog) StartWriter(w io.Writer) {
	if el.running.Load() {
		return
	}
	el.out = w
	el.startWriter()
}

func (el *EventLog) startWriter() {
	el.running.Store(true)
	el.writerWg.Add(1)
	go el.writerLoop()
}

// Stop flushes pending events and closes the file. Safe to call twice.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.outMu.Lock()
		if el.file != nil {
			el.file.Close()
		}
		el.outMu.Unlock()
	})
}

// Emit queues ev and reports false when it was rate limited, the ring was
// full, or the log is not running.
func (el *EventLog) Emit(ev ContactEvent) bool {
	if el == nil || !el.running.Load() {
		return false
	}
	if !el.limiter.Allow() {
		el.dropped.Add(1)
		return false
	}
	ev.Sequence = el.sequence.Add(1)
	if !el.queue.TryPush(ev) {
		el.dropped.Add(1)
		return false
	}
	el.total.Add(1)
	return true
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]ContactEvent, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			for {
				batch = el.queue.Drain(batch[:0], BatchFlushSize)
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.queue.Drain(batch[:0], BatchFlushSize)
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// flushBatch appends events as newline-delimited JSON.
func (el *EventLog) flushBatch(batch []ContactEvent) {
	el.outMu.Lock()
	defer el.outMu.Unlock()

	el.written.Add(uint64(len(batch)))
	if el.out == nil {
		return
	}
	w := bufio.NewWriter(el.out)
	enc := json.NewEncoder(w)
	for _, ev := range batch {
		if err := enc.Encode(ev); err != nil {
			continue
		}
	}
	w.Flush()
}

// EventLogStats reports log throughput.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Written uint64 `json:"written"`
	Pending int    `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns counters for monitoring.
func (el *EventLog) Stats() EventLogStats {
	if el == nil {
		return EventLogStats{}
	}
	return EventLogStats{
		Total:   el.total.Load(),
		Dropped: el.dropped.Load(),
		Written: el.written.Load(),
		Pending: el.queue.Len(),
		Running: el.running.Load(),
	}
}
