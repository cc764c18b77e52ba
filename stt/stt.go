// Package stt defines the transcription backend contract: one sealed
// audio payload in, one text result out, no partial results.
package stt

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/charmbracelet/log"

	"scribe/config"
)

type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TransientError marks failures worth retrying: network trouble,
// timeouts, rate limiting.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks failures retrying cannot fix: auth, malformed
// payloads, rejected requests.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent backend error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(err error) error {
	return &TransientError{Err: err}
}

func Permanent(err error) error {
	return &PermanentError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classify sorts a raw backend error into the retry taxonomy. Anything
// that looks like transport trouble is worth another attempt; the rest
// would fail the same way again.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}

	var pe *PermanentError
	if errors.As(err, &pe) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err)
	}

	return Permanent(err)
}

// FromConfig builds the configured backend.
func FromConfig(cfg *config.Config, logger *log.Logger) (Recognizer, error) {
	switch cfg.Backend {
	case "deepgram":
		return NewDeepgramClient(cfg.DeepgramAPIKey, logger)
	case "gemini":
		return NewGeminiClient(context.Background(), cfg.GeminiAPIKey, logger)
	default:
		return nil, fmt.Errorf("unknown stt backend: %s", cfg.Backend)
	}
}
