package notes

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxnote/voxnote/internal/storage/sqlite"
	"github.com/voxnote/voxnote/pkg/logger"
)

// DefaultListLimit bounds unpaged note listings
const DefaultListLimit = 500

// Service provides note CRUD and search on top of the SQLite storage
type Service struct {
	storage *sqlite.NoteStorage
	logger  *logger.Logger
}

// NewService creates a new note service
func NewService(storage *sqlite.NoteStorage, log *logger.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  log.Named("notes"),
	}
}

// Create inserts an empty note and returns it. Notes start empty and fill up
// as transcript turns complete.
func (s *Service) Create() (*sqlite.NoteRecord, error) {
	now := time.Now().UTC()
	record := &sqlite.NoteRecord{
		ID:        uuid.NewString(),
		Content:   "",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.storage.StoreNote(record); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	s.logger.Debug("Created note", logger.String("id", record.ID))
	return record, nil
}

// Get returns one note, or nil when it does not exist
func (s *Service) Get(id string) (*sqlite.NoteRecord, error) {
	return s.storage.GetNoteByID(id)
}

// List returns all notes, newest first
func (s *Service) List() ([]*sqlite.NoteRecord, error) {
	return s.storage.GetAllNotes(DefaultListLimit)
}

// Search returns notes matching the query, newest first. An empty query
// behaves like List.
func (s *Service) Search(query string) ([]*sqlite.NoteRecord, error) {
	if query == "" {
		return s.List()
	}
	return s.storage.SearchNotes(query, DefaultListLimit)
}

// UpdateContent replaces a note's content
func (s *Service) UpdateContent(id, content string) error {
	if err := s.storage.UpdateNoteContent(id, content); err != nil {
		return err
	}
	s.logger.Debug("Updated note", logger.String("id", id), logger.Int("length", len(content)))
	return nil
}

// Delete removes a note
func (s *Service) Delete(id string) error {
	if err := s.storage.DeleteNote(id); err != nil {
		return err
	}
	s.logger.Debug("Deleted note", logger.String("id", id))
	return nil
}
