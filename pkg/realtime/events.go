package realtime

import (
	"encoding/json"

	"github.com/harunnryd/cryscope/pkg/pcm"
)

// Inbound event types.
const (
	EventSessionCreated = "session.created"
	EventSessionUpdated = "session.updated"
	EventTextDelta      = "response.text.delta"
	EventAudioDelta     = "response.audio.delta"
	EventItemCreated    = "conversation.item.created"
	EventError          = "error"
)

// Outbound event types.
const (
	EventSessionUpdate     = "session.update"
	EventInputAudioAppend  = "input_audio_buffer.append"
	DefaultTranscriptModel = "iic/speech_ctt_model"

	modalityText     = "text"
	inputAudioFormat = "pcm16"
	contentTypeText  = "text"
)

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string      `json:"modalities"`
	InputAudioFormat        string        `json:"input_audio_format"`
	InputAudioTranscription transcription `json:"input_audio_transcription"`
}

type transcription struct {
	Model string `json:"model"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// EncodeSessionUpdate builds the one-time session configuration message.
func EncodeSessionUpdate(model string) ([]byte, error) {
	if model == "" {
		model = DefaultTranscriptModel
	}
	return json.Marshal(sessionUpdate{
		Type: EventSessionUpdate,
		Session: sessionConfig{
			Modalities:              []string{modalityText},
			InputAudioFormat:        inputAudioFormat,
			InputAudioTranscription: transcription{Model: model},
		},
	})
}

// EncodeAudioAppend transcodes one frame into an audio-append message.
func EncodeAudioAppend(samples []float32) ([]byte, error) {
	return json.Marshal(audioAppend{
		Type:  EventInputAudioAppend,
		Audio: pcm.Encode(samples),
	})
}

// inboundEnvelope is decoded first; the body of a known type is decoded
// separately so fields of unknown types never fail the message.
type inboundEnvelope struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
}

type textDeltaEvent struct {
	Delta string `json:"delta"`
}

type itemCreatedEvent struct {
	Item *itemPayload `json:"item"`
}

type errorEvent struct {
	Error *errorPayload `json:"error"`
}

type sessionEvent struct {
	Session *sessionPayload `json:"session"`
}

type itemPayload struct {
	ID      string        `json:"id,omitempty"`
	Content []contentPart `json:"content,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type errorPayload struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type sessionPayload struct {
	ID string `json:"id,omitempty"`
}
