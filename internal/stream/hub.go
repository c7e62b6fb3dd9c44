// Package stream fans out live job output to SSE subscribers, with a
// bounded per-job buffer so reconnecting clients can replay what they
// missed.
package stream

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/mgeist/codereel/internal/logger"
)

const (
	// maxBufferLines caps the per-job replay buffer. Events older than the
	// cap are unrecoverable for very stale subscribers; that is a deliberate
	// bounded-memory trade-off.
	maxBufferLines = 500

	// subscriberQueueSize is the per-subscriber channel capacity. A
	// subscriber that falls this far behind starts losing events.
	subscriberQueueSize = 100

	// DefaultGracePeriod is how long a finished job's buffer and
	// subscribers are kept alive so slow clients can catch the tail.
	DefaultGracePeriod = 5 * time.Minute
)

// Subscriber is one connected client of a job's stream.
type Subscriber struct {
	ch chan Event
}

// Events returns the channel delivering this subscriber's events.
// The channel is closed when the subscriber is removed or the job's
// stream is cleaned up.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

type jobEntry struct {
	lines       []Event
	counter     int64
	complete    bool
	subscribers map[*Subscriber]struct{}
	cleanup     *time.Timer
}

// Hub manages per-job event buffers and subscriber fan-out.
type Hub struct {
	mu    sync.Mutex
	jobs  map[string]*jobEntry
	grace time.Duration
}

// NewHub creates a hub with the default post-completion grace period.
func NewHub() *Hub {
	return &Hub{
		jobs:  make(map[string]*jobEntry),
		grace: DefaultGracePeriod,
	}
}

// getOrCreate returns the entry for a job, creating it lazily so output
// can be broadcast before any subscriber connects. Called with lock held.
func (h *Hub) getOrCreate(jobID string) *jobEntry {
	entry, ok := h.jobs[jobID]
	if !ok {
		entry = &jobEntry{subscribers: make(map[*Subscriber]struct{})}
		h.jobs[jobID] = entry
	}
	return entry
}

// nextEvent assigns the next sequence number for a job. Called with lock held.
func (e *jobEntry) nextEvent(typ EventType, data string) Event {
	e.counter++
	return Event{
		ID:        strconv.FormatInt(e.counter, 10),
		Type:      typ,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Broadcast appends an event to the job's buffer and pushes it to every
// currently registered subscriber. Subscribers that cannot keep up are
// skipped rather than blocking the producer.
func (h *Hub) Broadcast(jobID string, typ EventType, data string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := h.getOrCreate(jobID)
	event := entry.nextEvent(typ, data)

	entry.lines = append(entry.lines, event)
	if len(entry.lines) > maxBufferLines {
		entry.lines = entry.lines[len(entry.lines)-maxBufferLines:]
	}

	for sub := range entry.subscribers {
		select {
		case sub.ch <- event:
		default:
			// Subscriber queue full, drop for this subscriber
		}
	}
}

// Subscribe registers a new subscriber for a job. The subscriber
// immediately receives a connected event and, if buffered events exist
// beyond lastEventID, a single history event whose payload is the
// serialized batch of missed events. A reconnect cancels any pending
// cleanup so the job's stream stays alive.
func (h *Hub) Subscribe(jobID, lastEventID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := h.getOrCreate(jobID)

	if entry.cleanup != nil {
		entry.cleanup.Stop()
		entry.cleanup = nil
	}

	sub := &Subscriber{ch: make(chan Event, subscriberQueueSize)}

	sub.ch <- entry.nextEvent(EventConnected, "Connected to job "+jobID)

	if missed := entry.missedSince(lastEventID); len(missed) > 0 {
		payload, err := json.Marshal(missed)
		if err != nil {
			logger.Warn("Failed to serialize history batch", "job_id", jobID, "error", err)
		} else {
			sub.ch <- entry.nextEvent(EventHistory, string(payload))
		}
	}

	entry.subscribers[sub] = struct{}{}
	return sub
}

// missedSince returns the buffered events with id > lastEventID. An empty
// or unparsable cursor replays the whole buffer. Called with lock held.
func (e *jobEntry) missedSince(lastEventID string) []Event {
	var after int64
	if lastEventID != "" {
		if n, err := strconv.ParseInt(lastEventID, 10, 64); err == nil {
			after = n
		}
	}

	var missed []Event
	for _, line := range e.lines {
		id, err := strconv.ParseInt(line.ID, 10, 64)
		if err != nil {
			continue
		}
		if id > after {
			missed = append(missed, line)
		}
	}
	return missed
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// after Cleanup has already discarded the job.
func (h *Hub) Unsubscribe(jobID string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.jobs[jobID]
	if !ok {
		return
	}
	if _, registered := entry.subscribers[sub]; !registered {
		return
	}
	delete(entry.subscribers, sub)
	close(sub.ch)
}

// Complete broadcasts the job's terminal status and schedules teardown of
// the stream after the grace period, leaving slow clients time to catch
// the tail of output.
func (h *Hub) Complete(jobID, status string) {
	h.Broadcast(jobID, EventStatus, status)

	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.jobs[jobID]
	if !ok {
		return
	}
	entry.complete = true

	if entry.cleanup != nil {
		entry.cleanup.Stop()
	}
	entry.cleanup = time.AfterFunc(h.grace, func() {
		h.Cleanup(jobID)
	})
}

// Cleanup cancels any pending teardown timer, closes all subscriber
// channels and discards the job's buffer.
func (h *Hub) Cleanup(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.jobs[jobID]
	if !ok {
		return
	}
	if entry.cleanup != nil {
		entry.cleanup.Stop()
	}
	for sub := range entry.subscribers {
		close(sub.ch)
	}
	delete(h.jobs, jobID)
}

// IsComplete reports whether the job's stream has seen its terminal status.
func (h *Hub) IsComplete(jobID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.jobs[jobID]
	return ok && entry.complete
}

// ClientCount returns the number of connected subscribers for a job.
func (h *Hub) ClientCount(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.jobs[jobID]
	if !ok {
		return 0
	}
	return len(entry.subscribers)
}

// HasBuffer reports whether a job has any buffered output.
func (h *Hub) HasBuffer(jobID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.jobs[jobID]
	return ok && len(entry.lines) > 0
}
