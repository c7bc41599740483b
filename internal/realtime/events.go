package realtime

// Wire shapes for the realtime transcription channel. All frames are JSON
// text messages. Event types not listed here are ignored by the session.

// Inbound event types the session acts on
const (
	eventTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	eventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	eventTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"
	eventBufferCommitted        = "input_audio_buffer.committed"
	eventError                  = "error"
)

// serverEvent is the superset of inbound event fields the session cares about
type serverEvent struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Error      *serverError `json:"error,omitempty"`
}

// serverError carries the payload of an inbound "error" event
type serverError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// appendEvent is the outbound audio frame message, one per captured frame
type appendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func newAppendEvent(audio string) appendEvent {
	return appendEvent{Type: "input_audio_buffer.append", Audio: audio}
}
