package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	prerecorded "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/rest"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
)

type DeepgramClient struct {
	client *prerecorded.Client
	logger *log.Logger
}

func NewDeepgramClient(
	token string,
	logger *log.Logger,
) (*DeepgramClient, error) {
	if token == "" {
		return nil, fmt.Errorf("deepgram api key is not set")
	}

	rest := listen.NewREST(token, &interfaces.ClientOptions{})

	return &DeepgramClient{
		client: prerecorded.New(rest),
		logger: logger,
	}, nil
}

func (c *DeepgramClient) Transcribe(
	ctx context.Context,
	audio []byte,
) (string, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       "nova-2",
		Language:    "en-US",
		Punctuate:   true,
		SmartFormat: true,
	}

	res, err := c.client.FromStream(ctx, bytes.NewReader(audio), options)
	if err != nil {
		return "", classify(fmt.Errorf("deepgram request failed: %w", err))
	}

	if len(res.Results.Channels) == 0 ||
		len(res.Results.Channels[0].Alternatives) == 0 {
		return "", Permanent(fmt.Errorf("deepgram returned no alternatives"))
	}

	transcript := strings.TrimSpace(
		res.Results.Channels[0].Alternatives[0].Transcript,
	)

	c.logger.Debug("hear",
		"txt", transcript,
		"confidence", res.Results.Channels[0].Alternatives[0].Confidence,
	)

	return transcript, nil
}
