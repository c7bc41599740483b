package sqlite

import "time"

// NoteRecord represents one dictated note
type NoteRecord struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Polished  bool      `json:"polished"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
