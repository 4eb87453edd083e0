// Package googlestt implements speech.Recognizer over the Google Cloud
// Speech-to-Text v1 StreamingRecognize API.
package googlestt

import (
	"context"
	"fmt"
	"io"

	apiv1 "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/voxline/voxline/pkg/Logger"
	"github.com/voxline/voxline/pkg/speech"
)

// Client wraps a process-wide SpeechClient; it is safe to share across
// sessions, each of which opens its own stream.
type Client struct {
	client *apiv1.Client
	logger *Logger.Logger
}

// New dials the Speech API using application default credentials
// (GOOGLE_APPLICATION_CREDENTIALS).
func New(ctx context.Context, logger *Logger.Logger) (*Client, error) {
	client, err := apiv1.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &Client{client: client, logger: logger}, nil
}

// OpenStream starts one streaming recognition call. The first request on the
// wire carries the stream config; audio follows. This is pinned to the v1
// request shape, there is no probing for older call signatures.
func (c *Client) OpenStream(ctx context.Context, cfg speech.StreamConfig) (speech.Stream, error) {
	grpcStream, err := c.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open recognition stream: %w", err)
	}

	configReq := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(cfg.SampleRate),
					LanguageCode:               cfg.Language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults:  cfg.InterimResults,
				SingleUtterance: false,
			},
		},
	}
	if err := grpcStream.Send(configReq); err != nil {
		return nil, fmt.Errorf("failed to send stream config: %w", err)
	}

	return &stream{inner: grpcStream, logger: c.logger}, nil
}

// Close releases the underlying gRPC client.
func (c *Client) Close() error {
	return c.client.Close()
}

type stream struct {
	inner  speechpb.Speech_StreamingRecognizeClient
	logger *Logger.Logger

	// Results already received but not yet handed out; one streaming
	// response can carry several results.
	pending []speech.Result
}

func (s *stream) Send(audio []byte) error {
	return s.inner.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

func (s *stream) CloseSend() error {
	return s.inner.CloseSend()
}

func (s *stream) Recv() (speech.Result, error) {
	for len(s.pending) == 0 {
		resp, err := s.inner.Recv()
		if err == io.EOF {
			return speech.Result{}, io.EOF
		}
		if err != nil {
			return speech.Result{}, fmt.Errorf("recognition stream error: %w", err)
		}
		if respErr := resp.GetError(); respErr != nil {
			return speech.Result{}, fmt.Errorf("recognition engine error: %s", respErr.GetMessage())
		}
		if len(resp.Results) == 0 {
			s.logger.Debugf("no results in streaming response")
			continue
		}
		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			s.pending = append(s.pending, speech.Result{
				Text:    result.Alternatives[0].Transcript,
				IsFinal: result.IsFinal,
			})
		}
	}

	next := s.pending[0]
	s.pending = s.pending[1:]
	return next, nil
}
