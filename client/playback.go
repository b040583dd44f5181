package client

import (
	"sync"
)

// PlaybackSink is the slice of the audio device the queue feeds.
type PlaybackSink interface {
	Play(chunk []byte) error
	ClearPlayback()
}

// PlaybackQueue is the ordered buffer between the transport's receive path
// and the audio device. A single consumer goroutine writes chunks to the sink
// in enqueue order; DrainAndStop flushes stale audio when a new turn takes
// over the output.
type PlaybackQueue struct {
	sink PlaybackSink

	mu           sync.Mutex
	chunks       [][]byte
	consumed     int
	closed       bool
	idleWaiters  []chan struct{}
	updateSignal chan struct{}

	consumerDone chan struct{}
}

func NewPlaybackQueue(sink PlaybackSink) *PlaybackQueue {
	q := &PlaybackQueue{
		sink:         sink,
		updateSignal: make(chan struct{}, 1),
		consumerDone: make(chan struct{}),
	}
	go q.consume()
	return q
}

func (q *PlaybackQueue) Enqueue(chunk []byte) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.chunks = append(q.chunks, chunk)
	q.mu.Unlock()
	q.signalUpdate()
}

// DrainAndStop discards every pending chunk and clears whatever the sink has
// buffered. Playback resumes with the next Enqueue.
func (q *PlaybackQueue) DrainAndStop() {
	q.mu.Lock()
	q.chunks = nil
	q.consumed = 0
	q.mu.Unlock()

	q.sink.ClearPlayback()
	q.signalUpdate()
}

// WaitIdle blocks until the queue has handed every pending chunk to the sink.
func (q *PlaybackQueue) WaitIdle() {
	q.mu.Lock()
	if q.consumed >= len(q.chunks) || q.closed {
		q.mu.Unlock()
		return
	}
	waiter := make(chan struct{})
	q.idleWaiters = append(q.idleWaiters, waiter)
	q.mu.Unlock()

	<-waiter
}

// Close stops the consumer after the pending chunks drain.
func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.signalUpdate()
	<-q.consumerDone
}

func (q *PlaybackQueue) consume() {
	defer close(q.consumerDone)

	for {
		q.mu.Lock()
		if q.consumed < len(q.chunks) {
			chunk := q.chunks[q.consumed]
			q.consumed++
			q.mu.Unlock()

			if err := q.sink.Play(chunk); err != nil {
				logger.Warn("failed to play audio chunk", "error", err)
			}
			continue
		}

		// Queue drained; release anyone waiting for idle.
		for _, waiter := range q.idleWaiters {
			close(waiter)
		}
		q.idleWaiters = nil

		if q.closed {
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		<-q.updateSignal
	}
}

func (q *PlaybackQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
