package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxnote/voxnote/pkg/logger"
)

// subprotocolPrefix carries the ephemeral credential during the websocket
// handshake, as the realtime API expects.
const subprotocolPrefix = "openai-insecure-api-key."

// SessionCallbacks receive the three observable facts a session produces:
// incremental transcript text, a finalized transcript per speech turn, and
// error conditions. All callbacks fire from the session's read goroutine, in
// the exact order events arrived on the channel.
type SessionCallbacks struct {
	OnDelta    func(delta, full string)
	OnComplete func(text string)
	OnError    func(msg string)
	OnClosed   func(err error) // err is nil when the close was requested
}

// Session owns one streaming channel to the transcription service. It sends
// encoded audio frames out and interprets inbound events. Turn boundaries are
// detected server-side; the session never sends a manual commit, because the
// server may have already committed the turn and the collision produces a
// spurious "buffer too small" error.
type Session struct {
	conn   *websocket.Conn
	cb     SessionCallbacks
	logger *logger.Logger

	writeMu sync.Mutex

	mu             sync.Mutex
	buffer         string // transcript accumulated for the current turn
	pendingSamples int    // samples sent since the last committed ack
	sendStopped    bool
	closing        bool

	closeOnce sync.Once
	done      chan struct{}
}

// DialSession opens the streaming channel using the given ephemeral
// credential and starts consuming inbound events.
func DialSession(ctx context.Context, url string, cred *Credential, cb SessionCallbacks, log *logger.Logger) (*Session, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{"realtime", subprotocolPrefix + cred.Token},
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime channel: %w", err)
	}

	s := &Session{
		conn:   conn,
		cb:     cb,
		logger: log.Named("session"),
		done:   make(chan struct{}),
	}

	go s.readLoop()

	return s, nil
}

// SendFrame sends one encoded audio frame. Fire-and-forget: frames sent after
// StopSending are silently dropped so a stop request takes effect immediately
// even if a capture callback is already in flight.
func (s *Session) SendFrame(audio string, sampleCount int) error {
	s.mu.Lock()
	if s.sendStopped || s.closing {
		s.mu.Unlock()
		return nil
	}
	s.pendingSamples += sampleCount
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(newAppendEvent(audio)); err != nil {
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	return nil
}

// StopSending stops outbound audio without touching the channel, so in-flight
// transcription results can still arrive during the stop grace window.
func (s *Session) StopSending() {
	s.mu.Lock()
	s.sendStopped = true
	s.mu.Unlock()
}

// StreamingText returns the transcript accumulated for the current turn
func (s *Session) StreamingText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

// TakeResidual returns any accumulated transcript and resets the buffer.
// Used at the end of the stop grace window when no completion event arrived
// for audio that was already sent.
func (s *Session) TakeResidual() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.buffer
	s.buffer = ""
	return text
}

// Close tears down the channel. Idempotent; the read loop reports a nil error
// to OnClosed for a requested close.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.sendStopped = true
		s.mu.Unlock()

		// Best-effort close handshake, then drop the connection
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}

// Done is closed once the read loop has exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// readLoop consumes inbound events strictly in arrival order. The running
// transcript buffer is only ever mutated here, which is what guarantees
// deltas apply in order with no reordering or drops.
func (s *Session) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()

			var closeErr error
			if !closing {
				closeErr = &ChannelError{Err: err}
			}
			if s.cb.OnClosed != nil {
				s.cb.OnClosed(closeErr)
			}
			return
		}

		s.handleMessage(data)
	}
}

func (s *Session) handleMessage(data []byte) {
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		// Malformed events are logged, not fatal
		s.logger.Warn("Dropping malformed channel event",
			logger.Error(&ProtocolError{Err: err}))
		return
	}

	switch ev.Type {
	case eventTranscriptionDelta:
		s.mu.Lock()
		s.buffer += ev.Delta
		full := s.buffer
		s.mu.Unlock()
		if s.cb.OnDelta != nil {
			s.cb.OnDelta(ev.Delta, full)
		}

	case eventTranscriptionCompleted:
		s.mu.Lock()
		text := ev.Transcript
		if text == "" {
			// Fall back to the accumulated deltas
			text = s.buffer
		}
		s.buffer = ""
		s.mu.Unlock()
		if s.cb.OnComplete != nil {
			s.cb.OnComplete(text)
		}

	case eventTranscriptionFailed:
		// The turn contributes no text; the session keeps accepting turns
		s.logger.Warn("Transcription turn failed", logger.String("event", string(data)))
		s.mu.Lock()
		s.buffer = ""
		s.mu.Unlock()

	case eventBufferCommitted:
		// Bookkeeping only; the server owns commit timing
		s.mu.Lock()
		s.pendingSamples = 0
		s.mu.Unlock()

	case eventError:
		msg := "transcription error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		if isBenignNotice(msg) {
			s.logger.Debug("Ignoring benign commit race notice", logger.String("message", msg))
			return
		}
		s.logger.Error("Channel reported error", logger.String("message", msg))
		if s.cb.OnError != nil {
			s.cb.OnError(msg)
		}

	default:
		// Speech start/stop markers, session lifecycle events and anything
		// the provider adds later are not the session's concern
	}
}
