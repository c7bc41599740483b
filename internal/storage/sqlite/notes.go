package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/voxnote/voxnote/pkg/logger"
)

// NoteStorage handles storage of note records
type NoteStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewNoteStorage creates a new SQLite note storage
func NewNoteStorage(db *sql.DB, log *logger.Logger) (*NoteStorage, error) {
	storage := &NoteStorage{
		db:     db,
		logger: log.Named("sqlite-notes"),
	}

	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize note storage: %w", err)
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *NoteStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL DEFAULT '',
			polished INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create notes table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_polished ON notes(polished)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create note index: %w", err)
		}
	}

	return nil
}

// StoreNote inserts a note record
func (s *NoteStorage) StoreNote(record *NoteRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO notes (id, content, polished, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.Content,
		record.Polished,
		record.CreatedAt.Format(time.RFC3339),
		record.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// GetNoteByID returns a single note, or nil when it does not exist
func (s *NoteStorage) GetNoteByID(id string) (*NoteRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, content, polished, created_at, updated_at
		FROM notes
		WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query note: %w", err)
	}
	defer rows.Close()

	records, err := s.scanNoteRows(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// GetAllNotes returns all notes, newest first
func (s *NoteStorage) GetAllNotes(limit int) ([]*NoteRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, content, polished, created_at, updated_at
		FROM notes
		ORDER BY created_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	return s.scanNoteRows(rows)
}

// SearchNotes returns notes whose content matches the query, newest first.
// Matching is case-insensitive substring, same as the UI search box expects.
func (s *NoteStorage) SearchNotes(query string, limit int) ([]*NoteRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, content, polished, created_at, updated_at
		FROM notes
		WHERE content LIKE ? COLLATE NOCASE
		ORDER BY created_at DESC
		LIMIT ?`,
		"%"+query+"%",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	defer rows.Close()

	return s.scanNoteRows(rows)
}

// UpdateNoteContent replaces a note's content. Edited content is considered
// unpolished again.
func (s *NoteStorage) UpdateNoteContent(id, content string) error {
	result, err := s.db.Exec(
		`UPDATE notes
		SET content = ?, polished = 0, updated_at = ?
		WHERE id = ?`,
		content,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("note not found: %s", id)
	}
	return nil
}

// DeleteNote removes a note
func (s *NoteStorage) DeleteNote(id string) error {
	result, err := s.db.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("note not found: %s", id)
	}
	return nil
}

// GetUnpolishedNotes returns notes awaiting post-processing, oldest first
func (s *NoteStorage) GetUnpolishedNotes(limit int) ([]*NoteRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, content, polished, created_at, updated_at
		FROM notes
		WHERE polished = 0 AND content != ''
		ORDER BY updated_at ASC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpolished notes: %w", err)
	}
	defer rows.Close()

	return s.scanNoteRows(rows)
}

// MarkNotePolished stores post-processed content and flags the note polished
func (s *NoteStorage) MarkNotePolished(id, content string) error {
	_, err := s.db.Exec(
		`UPDATE notes
		SET content = ?, polished = 1, updated_at = ?
		WHERE id = ?`,
		content,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark note polished: %w", err)
	}
	return nil
}

// scanNoteRows scans database rows into NoteRecord structs
func (s *NoteStorage) scanNoteRows(rows *sql.Rows) ([]*NoteRecord, error) {
	var records []*NoteRecord
	for rows.Next() {
		var record NoteRecord
		var createdAt, updatedAt string

		if err := rows.Scan(
			&record.ID,
			&record.Content,
			&record.Polished,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}

		var err error
		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		record.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}

	return records, nil
}
