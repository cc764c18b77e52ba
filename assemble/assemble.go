// Package assemble maintains the single source of truth for the growing
// transcript, safe under concurrent fragment arrivals.
package assemble

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Fragment is the transcribed-text result for one utterance.
type Fragment struct {
	Speaker string    `json:"speaker"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Text    string    `json:"text"`
	Status  Status    `json:"status"`
}

// Transcript is an ordered sequence of fragments, sorted by start time
// with ties broken by speaker for determinism.
type Transcript []Fragment

type fragmentKey struct {
	speaker string
	start   int64
}

var ErrDuplicateFragment = errors.New("duplicate fragment")

type Assembler struct {
	mu        sync.Mutex
	fragments Transcript
	seen      map[fragmentKey]struct{}
	sealed    bool
	log       *log.Logger
}

func New(logger *log.Logger) *Assembler {
	return &Assembler{
		seen: make(map[fragmentKey]struct{}),
		log:  logger,
	}
}

// Add inserts a fragment at its sorted position. Duplicates of the same
// (speaker, start) are rejected. A sealed assembler still accepts late
// fragments; a slow retry must not lose its result.
func (a *Assembler) Add(f Fragment) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := fragmentKey{speaker: f.Speaker, start: f.Start.UnixNano()}
	if _, dup := a.seen[key]; dup {
		a.log.Warn("duplicate fragment ignored",
			"speaker", f.Speaker, "start", f.Start)
		return ErrDuplicateFragment
	}
	a.seen[key] = struct{}{}

	if a.sealed {
		a.log.Info("late fragment after seal",
			"speaker", f.Speaker, "start", f.Start)
	}

	i := sort.Search(len(a.fragments), func(i int) bool {
		other := a.fragments[i]
		if !other.Start.Equal(f.Start) {
			return other.Start.After(f.Start)
		}
		return other.Speaker > f.Speaker
	})

	a.fragments = append(a.fragments, Fragment{})
	copy(a.fragments[i+1:], a.fragments[i:])
	a.fragments[i] = f

	return nil
}

// Snapshot returns a copy of the current ordered transcript.
func (a *Assembler) Snapshot() Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(Transcript, len(a.fragments))
	copy(out, a.fragments)
	return out
}

// Seal marks the transcript finalized and returns it. Late Add calls
// after sealing still land in order.
func (a *Assembler) Seal() Transcript {
	a.mu.Lock()
	a.sealed = true
	a.mu.Unlock()
	return a.Snapshot()
}

func (a *Assembler) Sealed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sealed
}

func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fragments)
}
