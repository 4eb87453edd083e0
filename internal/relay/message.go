// Package relay implements the per-connection audio/response pipeline: the
// bounded ingress buffer fed by the websocket receive loop, the transcription
// worker that drives the recognition stream and the generation bridge, the
// unbounded outbound queue, and the session supervisor that owns them all.
package relay

import (
	"encoding/json"
	"fmt"
)

// MessageKind tags an OutboundMessage variant.
type MessageKind int

const (
	KindInfo MessageKind = iota
	KindTranscript
	KindGenerationText
	KindAudio
)

// OutboundMessage is one unit destined for the client. Audio goes out as a
// binary frame; everything else as a JSON text frame. Messages are consumed
// exactly once by the sender loop, in FIFO order per producer.
type OutboundMessage struct {
	Kind    MessageKind
	Message string // KindInfo
	Text    string // KindTranscript, KindGenerationText
	IsFinal bool   // KindTranscript
	Audio   []byte // KindAudio
}

func InfoMessage(message string) OutboundMessage {
	return OutboundMessage{Kind: KindInfo, Message: message}
}

func TranscriptMessage(text string, isFinal bool) OutboundMessage {
	return OutboundMessage{Kind: KindTranscript, Text: text, IsFinal: isFinal}
}

func GenerationTextMessage(text string) OutboundMessage {
	return OutboundMessage{Kind: KindGenerationText, Text: text}
}

func AudioMessage(audio []byte) OutboundMessage {
	return OutboundMessage{Kind: KindAudio, Audio: audio}
}

type infoFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type transcriptFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type responseFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// EncodeText serializes a non-audio message to its wire form. The generated
// reply keeps the type tag "gemini_response" regardless of which generation
// backend produced it; the browser client matches on that string.
func (m OutboundMessage) EncodeText() ([]byte, error) {
	switch m.Kind {
	case KindInfo:
		return json.Marshal(infoFrame{Type: "info", Message: m.Message})
	case KindTranscript:
		return json.Marshal(transcriptFrame{Type: "transcript", Text: m.Text, IsFinal: m.IsFinal})
	case KindGenerationText:
		return json.Marshal(responseFrame{Type: "gemini_response", Text: m.Text})
	default:
		return nil, fmt.Errorf("message kind %d has no text encoding", m.Kind)
	}
}
