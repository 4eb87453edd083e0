// Package deepgram implements speech.Recognizer over Deepgram's live
// transcription websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/voxline/voxline/pkg/Logger"
	"github.com/voxline/voxline/pkg/speech"
)

const listenURL = "wss://api.deepgram.com/v1/listen"

type Client struct {
	apiKey string
	model  string
	logger *Logger.Logger
}

func New(apiKey string, logger *Logger.Logger) *Client {
	return &Client{apiKey: apiKey, model: "nova-2", logger: logger}
}

// OpenStream dials the live endpoint with the session's audio parameters
// encoded as query params.
func (c *Client) OpenStream(ctx context.Context, cfg speech.StreamConfig) (speech.Stream, error) {
	u, err := url.Parse(listenURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model", c.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("language", cfg.Language)
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	u.RawQuery = q.Encode()

	header := http.Header{
		"Authorization": {fmt.Sprintf("Token %s", c.apiKey)},
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("deepgram dial error: %w", err)
	}

	return &stream{conn: conn, logger: c.logger}, nil
}

// response is the subset of Deepgram's Results message the relay consumes.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type stream struct {
	conn   *websocket.Conn
	logger *Logger.Logger
}

func (s *stream) Send(audio []byte) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// CloseSend asks the engine to flush and finish; Deepgram then closes the
// socket from its side, which surfaces as io.EOF from Recv.
func (s *stream) CloseSend() error {
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

func (s *stream) Recv() (speech.Result, error) {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.conn.Close()
				return speech.Result{}, io.EOF
			}
			s.conn.Close()
			return speech.Result{}, fmt.Errorf("deepgram read error: %w", err)
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			s.logger.Debugf("skipping unparseable deepgram frame: %v", err)
			continue
		}
		if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
			continue
		}
		transcript := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			continue
		}
		return speech.Result{Text: transcript, IsFinal: resp.IsFinal}, nil
	}
}
