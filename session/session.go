// Package session owns the capture lifecycle: which speakers are being
// segmented, when frames are accepted, and when the transcript is
// finalized and handed to the exporter.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"scribe/assemble"
	"scribe/config"
	"scribe/dispatch"
	"scribe/registry"
	"scribe/segment"
	"scribe/stt"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateCapturing
	StateStopping
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrCapturing         = errors.New("session is capturing")
)

// Exporter renders the finalized transcript into a document. Invoked
// exactly once, at finalization.
type Exporter interface {
	Export(t assemble.Transcript, names *registry.Registry) error
}

type Controller struct {
	id  string
	cfg config.Capture
	log *log.Logger

	state atomic.Int32

	// flow serializes the frame and departure paths against Stop: once
	// Stop holds the write side, no seal can reach a closed dispatcher
	// and no frame can recreate a flushed stream.
	flow sync.RWMutex

	segmenter  *segment.Segmenter
	dispatcher *dispatch.Dispatcher
	assembler  *assemble.Assembler

	registry *registry.Registry
	exporter Exporter
}

func NewController(
	id string,
	cfg config.Capture,
	recognizer stt.Recognizer,
	reg *registry.Registry,
	exporter Exporter,
	logger *log.Logger,
) *Controller {
	c := &Controller{
		id:       id,
		cfg:      cfg,
		log:      logger.With("session", id),
		registry: reg,
		exporter: exporter,
	}

	c.assembler = assemble.New(c.log)
	c.dispatcher = dispatch.New(recognizer, cfg, c.addFragment, c.log)
	c.segmenter = segment.New(cfg, c.dispatcher.Submit, c.log)

	return c
}

func (c *Controller) addFragment(f assemble.Fragment) {
	if err := c.assembler.Add(f); err != nil {
		if errors.Is(err, assemble.ErrDuplicateFragment) {
			return // already logged, non-fatal
		}
		c.log.Error("failed to add fragment", "error", err)
	}
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// transition performs a guarded state change; illegal transitions are
// rejected rather than special-cased downstream.
func (c *Controller) transition(from, to State) error {
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: %s -> %s (currently %s)",
			ErrInvalidTransition, from, to, c.State())
	}
	c.log.Info("state", "from", from.String(), "to", to.String())
	return nil
}

// Connect moves idle → connecting. No speaker streams exist yet.
func (c *Controller) Connect() error {
	return c.transition(StateIdle, StateConnecting)
}

// StartCapture moves connecting → capturing once the audio source is
// ready. The participant registry in effect now is the session's.
func (c *Controller) StartCapture() error {
	if err := c.transition(StateConnecting, StateCapturing); err != nil {
		return err
	}
	c.log.Info("capturing", "participants", c.registry.Len())
	return nil
}

// HandleFrame feeds one speaker-tagged frame to its segmenter. Frames
// outside the capturing state are discarded.
func (c *Controller) HandleFrame(f segment.Frame) {
	c.flow.RLock()
	defer c.flow.RUnlock()
	if c.State() != StateCapturing {
		return
	}
	c.segmenter.Ingest(f)
}

// SpeakerLeft flushes and removes that speaker's stream; 1.2 seconds of
// buffered audio with no trailing silence still becomes an utterance.
func (c *Controller) SpeakerLeft(speaker string) {
	c.flow.RLock()
	defer c.flow.RUnlock()
	if c.State() != StateCapturing {
		return
	}
	c.log.Info("speaker left", "speaker", speaker)
	c.segmenter.Flush(speaker)
}

// Stop runs the capturing → stopping → finalized path: flush every
// stream, stop frame intake, let in-flight transcriptions resolve, seal
// the assembler, hand the transcript to the exporter. The ctx bounds
// only the drain wait, never the backend calls themselves.
func (c *Controller) Stop(ctx context.Context) (assemble.Transcript, error) {
	if err := c.transition(StateCapturing, StateStopping); err != nil {
		return nil, err
	}

	// The write lock waits out any in-progress ingest or departure
	// flush; after it, the stopping state turns both paths away.
	c.flow.Lock()
	c.segmenter.FlushAll()
	c.dispatcher.Close()
	c.flow.Unlock()

	if err := c.dispatcher.Drain(ctx); err != nil {
		c.log.Warn("drain interrupted, finalizing with partial results",
			"inflight", c.dispatcher.InFlight(), "error", err)
	}

	transcript := c.assembler.Seal()
	c.state.Store(int32(StateFinalized))
	c.log.Info("finalized", "fragments", len(transcript))

	if c.exporter != nil {
		if err := c.exporter.Export(transcript, c.registry); err != nil {
			return transcript, fmt.Errorf("failed to export transcript: %w", err)
		}
	}

	return transcript, nil
}

// Disconnected handles the audio source dropping out from under us: a
// best-effort finalize with whatever fragments exist, rather than
// discarding partial work.
func (c *Controller) Disconnected(ctx context.Context) (assemble.Transcript, error) {
	switch c.State() {
	case StateCapturing:
		c.log.Warn("audio source disconnected, forcing stop")
		return c.Stop(ctx)
	case StateIdle, StateConnecting:
		c.state.Store(int32(StateIdle))
		return nil, nil
	default:
		return c.assembler.Snapshot(), nil
	}
}

// Snapshot exposes the live transcript for inspection mid-session.
func (c *Controller) Snapshot() assemble.Transcript {
	return c.assembler.Snapshot()
}

// UpdateParticipants reloads the name map. Rejected while capturing;
// the registry is read-only during a session.
func (c *Controller) UpdateParticipants(path string) error {
	switch c.State() {
	case StateCapturing, StateStopping:
		return ErrCapturing
	}
	return c.registry.Reload(path)
}
