package notes

import (
	"sync"
	"time"

	"github.com/voxnote/voxnote/pkg/logger"
)

// TranscriptSink routes completed transcript turns from a recorder into a
// note. The first turn of a recording session creates the note; later turns
// of the same session append to it. Writes go through an AutoSaver, so a
// burst of short turns produces one storage write, not one per turn;
// EndSession flushes whatever is still pending.
type TranscriptSink struct {
	notes  *Service
	delay  time.Duration
	logger *logger.Logger

	mu      sync.Mutex
	noteID  string
	content string
	saver   *AutoSaver
}

// NewTranscriptSink creates a sink writing through the given note service. A
// non-positive delay uses the auto-saver default.
func NewTranscriptSink(noteService *Service, delay time.Duration, log *logger.Logger) *TranscriptSink {
	return &TranscriptSink{
		notes:  noteService,
		delay:  delay,
		logger: log.Named("sink"),
	}
}

// Append records one completed turn, creating the session's note if needed.
// The persisted note catches up after the debounce delay.
func (s *TranscriptSink) Append(text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saver == nil {
		record, err := s.notes.Create()
		if err != nil {
			s.logger.Error("Failed to create note for transcript", logger.Error(err))
			return
		}
		s.noteID = record.ID
		s.content = ""

		id := record.ID
		s.saver = NewAutoSaver(func(content string) error {
			return s.notes.UpdateContent(id, content)
		}, s.delay, s.logger)
	}

	if s.content != "" {
		s.content += " "
	}
	s.content += text
	s.saver.Update(s.content)
}

// EndSession flushes any pending content and closes out the current note;
// the next turn starts a fresh one.
func (s *TranscriptSink) EndSession() {
	s.mu.Lock()
	saver := s.saver
	id := s.noteID
	s.saver = nil
	s.noteID = ""
	s.content = ""
	s.mu.Unlock()

	if saver == nil {
		return
	}
	if err := saver.Close(); err != nil {
		s.logger.Error("Failed to flush transcript", logger.String("id", id), logger.Error(err))
	}
}

// Close flushes and stops the sink. Used on shutdown so the last recording's
// text is not lost to the debounce delay.
func (s *TranscriptSink) Close() error {
	s.EndSession()
	return nil
}
