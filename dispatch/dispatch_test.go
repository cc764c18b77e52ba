package dispatch

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"scribe/assemble"
	"scribe/config"
	"scribe/segment"
	"scribe/stt"
)

type fakeRecognizer struct {
	fn func(ctx context.Context, audio []byte) (string, error)
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f.fn(ctx, audio)
}

type fragmentSink struct {
	mu        sync.Mutex
	fragments []assemble.Fragment
	arrived   chan struct{}
}

func newFragmentSink() *fragmentSink {
	return &fragmentSink{arrived: make(chan struct{}, 1024)}
}

func (s *fragmentSink) add(f assemble.Fragment) {
	s.mu.Lock()
	s.fragments = append(s.fragments, f)
	s.mu.Unlock()
	s.arrived <- struct{}{}
}

func (s *fragmentSink) waitFor(t *testing.T, n int) []assemble.Fragment {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-s.arrived:
		case <-deadline:
			t.Fatalf("timed out waiting for fragment %d of %d", i+1, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]assemble.Fragment, len(s.fragments))
	copy(out, s.fragments)
	return out
}

func utterance(id string) segment.Utterance {
	now := time.Now()
	return segment.Utterance{
		ID:      id,
		Speaker: "speaker",
		Start:   now,
		End:     now.Add(time.Second),
		Payload: []byte("audio"),
	}
}

func captureConfig(concurrency, retries int, backoff time.Duration) config.Capture {
	return config.Capture{
		Concurrency: concurrency,
		Retries:     retries,
		Backoff:     backoff,
		CallTimeout: 5 * time.Second,
	}
}

func TestConcurrencyBound(t *testing.T) {
	const limit = 5
	const total = 50

	var current, peak atomic.Int64
	rec := &fakeRecognizer{fn: func(ctx context.Context, audio []byte) (string, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return "ok", nil
	}}

	sink := newFragmentSink()
	d := New(rec, captureConfig(limit, 0, 0), sink.add, log.New(io.Discard))

	for i := 0; i < total; i++ {
		d.Submit(utterance(string(rune('a' + i%26))))
	}

	fragments := sink.waitFor(t, total)
	if len(fragments) != total {
		t.Fatalf("got %d fragments, want %d", len(fragments), total)
	}
	if p := peak.Load(); p > limit {
		t.Errorf("peak concurrent backend calls %d, limit %d", p, limit)
	}
	if n := d.InFlight(); n != 0 {
		t.Errorf("in-flight after completion: %d, want 0", n)
	}

	d.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestTransientFailureRetried(t *testing.T) {
	var calls atomic.Int64
	rec := &fakeRecognizer{fn: func(ctx context.Context, audio []byte) (string, error) {
		if calls.Add(1) < 3 {
			return "", stt.Transient(errors.New("backend hiccup"))
		}
		return "third time lucky", nil
	}}

	sink := newFragmentSink()
	d := New(rec, captureConfig(1, 3, time.Millisecond), sink.add, log.New(io.Discard))
	defer d.Close()

	d.Submit(utterance("u1"))
	fragments := sink.waitFor(t, 1)

	if fragments[0].Status != assemble.StatusOK {
		t.Fatalf("got status %s, want ok", fragments[0].Status)
	}
	if fragments[0].Text != "third time lucky" {
		t.Errorf("got text %q", fragments[0].Text)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("backend called %d times, want 3", n)
	}
}

func TestPermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int64
	rec := &fakeRecognizer{fn: func(ctx context.Context, audio []byte) (string, error) {
		calls.Add(1)
		return "", stt.Permanent(errors.New("unsupported audio"))
	}}

	sink := newFragmentSink()
	d := New(rec, captureConfig(1, 3, time.Millisecond), sink.add, log.New(io.Discard))
	defer d.Close()

	d.Submit(utterance("u1"))
	fragments := sink.waitFor(t, 1)

	if fragments[0].Status != assemble.StatusFailed {
		t.Fatalf("got status %s, want failed", fragments[0].Status)
	}
	if fragments[0].Text != "" {
		t.Errorf("failed fragment has text %q, want empty", fragments[0].Text)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}
}

func TestExhaustedRetriesYieldFailedFragment(t *testing.T) {
	var calls atomic.Int64
	rec := &fakeRecognizer{fn: func(ctx context.Context, audio []byte) (string, error) {
		calls.Add(1)
		return "", stt.Transient(errors.New("still down"))
	}}

	sink := newFragmentSink()
	d := New(rec, captureConfig(1, 2, time.Millisecond), sink.add, log.New(io.Discard))
	defer d.Close()

	d.Submit(utterance("u1"))
	fragments := sink.waitFor(t, 1)

	if fragments[0].Status != assemble.StatusFailed {
		t.Fatalf("got status %s, want failed", fragments[0].Status)
	}
	// Initial attempt plus two retries.
	if n := calls.Load(); n != 3 {
		t.Errorf("backend called %d times, want 3", n)
	}
}

func TestSubmitAfterCloseStillResolves(t *testing.T) {
	rec := &fakeRecognizer{fn: func(ctx context.Context, audio []byte) (string, error) {
		return "late but counted", nil
	}}

	sink := newFragmentSink()
	d := New(rec, captureConfig(1, 0, 0), sink.add, log.New(io.Discard))
	d.Close()

	// A departure flush can lose the race with Close; its utterance must
	// neither panic the sender nor vanish without a terminal fragment.
	d.Submit(utterance("straggler"))

	fragments := sink.waitFor(t, 1)
	if fragments[0].Status != assemble.StatusOK {
		t.Fatalf("got status %s, want ok", fragments[0].Status)
	}
	if fragments[0].Text != "late but counted" {
		t.Errorf("got text %q", fragments[0].Text)
	}

	deadline := time.After(5 * time.Second)
	for d.InFlight() != 0 {
		select {
		case <-deadline:
			t.Fatalf("in-flight stuck at %d", d.InFlight())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestCloseRacesSubmit(t *testing.T) {
	rec := &fakeRecognizer{fn: func(ctx context.Context, audio []byte) (string, error) {
		return "ok", nil
	}}

	const total = 100
	sink := newFragmentSink()
	d := New(rec, captureConfig(4, 0, 0), sink.add, log.New(io.Discard))

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Submit(utterance("u"))
		}()
	}
	d.Close()
	wg.Wait()

	fragments := sink.waitFor(t, total)
	if len(fragments) != total {
		t.Fatalf("got %d fragments, want %d", len(fragments), total)
	}
}

func TestDrainWaitsForQueuedWork(t *testing.T) {
	rec := &fakeRecognizer{fn: func(ctx context.Context, audio []byte) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return "done", nil
	}}

	sink := newFragmentSink()
	d := New(rec, captureConfig(2, 0, 0), sink.add, log.New(io.Discard))

	const total = 10
	for i := 0; i < total; i++ {
		d.Submit(utterance("u"))
	}
	d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	sink.mu.Lock()
	got := len(sink.fragments)
	sink.mu.Unlock()
	if got != total {
		t.Errorf("after drain: %d fragments, want %d", got, total)
	}
}
