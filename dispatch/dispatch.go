// Package dispatch turns utterances into transcript fragments via the
// transcription backend without blocking frame ingestion.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"scribe/assemble"
	"scribe/config"
	"scribe/segment"
	"scribe/stt"
)

const queueDepth = 1024

type Dispatcher struct {
	recognizer stt.Recognizer
	sink       func(assemble.Fragment)

	mu       sync.Mutex
	closed   bool
	queue    chan segment.Utterance
	inFlight atomic.Int64

	retries int
	backoff time.Duration
	timeout time.Duration

	workers   sync.WaitGroup
	closeOnce sync.Once
	log       *log.Logger
}

// New starts cfg.Concurrency workers. The worker count is the bound on
// simultaneous backend calls; excess submissions queue in FIFO order.
func New(
	recognizer stt.Recognizer,
	cfg config.Capture,
	sink func(assemble.Fragment),
	logger *log.Logger,
) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	d := &Dispatcher{
		recognizer: recognizer,
		sink:       sink,
		queue:      make(chan segment.Utterance, queueDepth),
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
		timeout:    timeout,
		log:        logger,
	}

	d.workers.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go d.work()
	}

	return d
}

// Submit enqueues an utterance for transcription and returns without
// waiting for the backend. A submission racing Close is resolved out of
// band; it still produces its terminal fragment.
func (d *Dispatcher) Submit(u segment.Utterance) {
	d.inFlight.Add(1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("submission after close, resolving out of band",
			"utterance", u.ID, "speaker", u.Speaker)
		go func() {
			d.sink(d.resolve(u))
			d.inFlight.Add(-1)
		}()
		return
	}
	d.queue <- u
	d.mu.Unlock()
}

// InFlight counts utterances submitted but not yet resolved to a
// terminal fragment, queued ones included.
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

// Close stops accepting submissions. Queued and in-flight work still
// runs to completion; committed backend calls are never thrown away.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
}

// Drain blocks until every submitted utterance has produced its
// terminal fragment, or the context expires.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for u := range d.queue {
		d.sink(d.resolve(u))
		d.inFlight.Add(-1)
	}
}

// resolve produces exactly one terminal fragment per utterance: the
// transcription on success, a failed fragment with empty text when
// retries are exhausted or the failure is permanent.
func (d *Dispatcher) resolve(u segment.Utterance) assemble.Fragment {
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(d.backoff << (attempt - 1))
		}

		text, err := d.transcribe(u)
		if err == nil {
			return assemble.Fragment{
				Speaker: u.Speaker,
				Start:   u.Start,
				End:     u.End,
				Text:    text,
				Status:  assemble.StatusOK,
			}
		}

		lastErr = err
		if !stt.IsTransient(err) {
			break
		}

		d.log.Warn("transient backend failure, retrying",
			"utterance", u.ID, "attempt", attempt+1, "error", err)
	}

	d.log.Error("utterance failed",
		"utterance", u.ID, "speaker", u.Speaker, "error", lastErr)

	return assemble.Fragment{
		Speaker: u.Speaker,
		Start:   u.Start,
		End:     u.End,
		Text:    "",
		Status:  assemble.StatusFailed,
	}
}

func (d *Dispatcher) transcribe(u segment.Utterance) (string, error) {
	// Detached from any session context: a stop cancels frame intake,
	// never committed backend calls. The per-call timeout is the cap.
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.recognizer.Transcribe(ctx, u.Payload)
}
