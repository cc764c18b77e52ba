// Package ogg wraps sealed opus packet runs into OGG Opus blobs so the
// transcription backends receive a self-describing container.
package ogg

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

const (
	SampleRate    = 48000
	Channels      = 2
	FrameDuration = 20 * time.Millisecond

	// 48kHz opus timestamp units per 20ms frame
	samplesPerFrame = 960
)

// Blob writes the given opus packets into an in-memory OGG Opus stream.
// Packets are assumed contiguous; gap handling happens upstream where the
// capture timestamps still exist.
func Blob(packets [][]byte) ([]byte, error) {
	if len(packets) == 0 {
		return nil, fmt.Errorf("no packets to write")
	}

	var buf bytes.Buffer
	w, err := oggwriter.NewWith(&buf, SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create ogg writer: %w", err)
	}

	for i, payload := range packets {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				SequenceNumber: uint16(i + 1),
				Timestamp:      uint32((i + 1) * samplesPerFrame),
			},
			Payload: payload,
		}
		if err := w.WriteRTP(pkt); err != nil {
			return nil, fmt.Errorf("failed to write opus packet: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ogg writer: %w", err)
	}

	return buf.Bytes(), nil
}
