// Package segment turns per-speaker streams of audio frames into discrete
// utterances using an energy-based voice activity heuristic.
package segment

import (
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"scribe/config"
	"scribe/etc"
	"scribe/ogg"
)

// Frame is one fixed-duration chunk of decoded audio from a single speaker.
// PCM feeds the activity heuristic; Opus is kept for the utterance payload.
type Frame struct {
	Speaker   string
	Index     int64
	Timestamp time.Time
	Opus      []byte
	PCM       []int16
}

// Utterance is a sealed contiguous audio run for one speaker. Immutable
// once emitted; the dispatcher owns it until transcription completes.
type Utterance struct {
	ID      string
	Speaker string
	Start   time.Time
	End     time.Time
	Payload []byte
}

// SpeakerStream accumulates pending frames for one speaker. Only that
// speaker's source produces frames for it, so the mutex exists solely to
// resolve ingest-vs-flush races.
type SpeakerStream struct {
	mu sync.Mutex

	speaker    string
	pending    []Frame
	voicedLen  int // pending frames up to and including the last voiced one
	lastVoiced time.Time
	silenceRun int
}

type Segmenter struct {
	mu      sync.Mutex
	streams map[string]*SpeakerStream

	silenceFrames int
	maxFrames     int
	energyThresh  float64
	ampThresh     float64

	emit func(Utterance)
	log  *log.Logger
}

func New(cfg config.Capture, emit func(Utterance), logger *log.Logger) *Segmenter {
	silenceFrames := int(cfg.SilenceGap / ogg.FrameDuration)
	if silenceFrames < 1 {
		silenceFrames = 1
	}
	maxFrames := int(cfg.MaxUtterance / ogg.FrameDuration)
	if maxFrames < 1 {
		maxFrames = 1
	}
	return &Segmenter{
		streams:       make(map[string]*SpeakerStream),
		silenceFrames: silenceFrames,
		maxFrames:     maxFrames,
		energyThresh:  cfg.EnergyThresh,
		ampThresh:     cfg.AmplitudeThresh,
		emit:          emit,
		log:           logger,
	}
}

func (s *Segmenter) stream(speaker string) *SpeakerStream {
	s.mu.Lock()
	st, ok := s.streams[speaker]
	if !ok {
		st = &SpeakerStream{speaker: speaker}
		s.streams[speaker] = st
		s.log.Info("new speaker stream", "speaker", speaker)
	}
	s.mu.Unlock()
	return st
}

func (s *Segmenter) Speakers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	speakers := make([]string, 0, len(s.streams))
	for id := range s.streams {
		speakers = append(speakers, id)
	}
	return speakers
}

// Ingest folds one frame into the speaker's pending buffer and emits an
// utterance when a silence run or the duration cap closes one out.
func (s *Segmenter) Ingest(frame Frame) {
	st := s.stream(frame.Speaker)

	st.mu.Lock()
	defer st.mu.Unlock()

	voiced := Voiced(frame.PCM, s.energyThresh, s.ampThresh)

	// no utterance starts with silence
	if len(st.pending) == 0 && !voiced {
		return
	}

	st.pending = append(st.pending, frame)
	if voiced {
		st.silenceRun = 0
		st.voicedLen = len(st.pending)
		st.lastVoiced = frame.Timestamp
	} else {
		st.silenceRun++
	}

	if st.silenceRun >= s.silenceFrames || len(st.pending) >= s.maxFrames {
		s.seal(st)
	}
}

// Flush seals whatever the speaker has buffered, regardless of silence
// state, and removes the stream. Called on departure and session stop.
func (s *Segmenter) Flush(speaker string) {
	s.mu.Lock()
	st, ok := s.streams[speaker]
	if ok {
		delete(s.streams, speaker)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	s.seal(st)
	st.mu.Unlock()
}

func (s *Segmenter) FlushAll() {
	for _, speaker := range s.Speakers() {
		s.Flush(speaker)
	}
}

// seal emits the pending buffer as an utterance; trailing silence frames
// are cut so the end timestamp is the last voiced frame. Caller holds the
// stream lock.
func (s *Segmenter) seal(st *SpeakerStream) {
	if st.voicedLen == 0 {
		st.pending = nil
		st.silenceRun = 0
		return
	}

	frames := st.pending[:st.voicedLen]
	packets := make([][]byte, 0, len(frames))
	for _, f := range frames {
		if len(f.Opus) > 0 {
			packets = append(packets, f.Opus)
		}
	}

	var payload []byte
	if len(packets) > 0 {
		var err error
		payload, err = ogg.Blob(packets)
		if err != nil {
			s.log.Error("failed to build utterance payload",
				"speaker", st.speaker, "error", err)
		}
	}

	u := Utterance{
		ID:      etc.NewFreshID(),
		Speaker: st.speaker,
		Start:   frames[0].Timestamp,
		End:     st.lastVoiced.Add(ogg.FrameDuration),
		Payload: payload,
	}

	st.pending = nil
	st.voicedLen = 0
	st.silenceRun = 0

	s.log.Debug("utterance sealed",
		"speaker", u.Speaker,
		"start", u.Start,
		"duration", u.End.Sub(u.Start),
	)
	s.emit(u)
}

// Voiced reports whether a PCM frame carries audible speech. Both the
// mean energy and the mean amplitude must clear their thresholds.
func Voiced(pcm []int16, energyThresh, ampThresh float64) bool {
	if len(pcm) == 0 {
		return false
	}

	var energy, amplitude float64
	for _, sample := range pcm {
		v := float64(sample) / 32768.0
		energy += v * v
		amplitude += math.Abs(v)
	}
	energy /= float64(len(pcm))
	amplitude /= float64(len(pcm))

	return energy >= energyThresh && amplitude >= ampThresh
}
