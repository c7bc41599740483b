package sqlite

import (
	"testing"
	"time"

	"github.com/voxnote/voxnote/pkg/logger"
)

func newTestStorage(t *testing.T) *NoteStorage {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	storage, err := NewNoteStorage(db, logger.Nop())
	if err != nil {
		t.Fatalf("failed to create note storage: %v", err)
	}
	return storage
}

func storeTestNote(t *testing.T, s *NoteStorage, id, content string, createdAt time.Time) {
	t.Helper()
	err := s.StoreNote(&NoteRecord{
		ID:        id,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("failed to store note %s: %v", id, err)
	}
}

func TestNoteStorageRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	storeTestNote(t, s, "n1", "grocery list", now)

	record, err := s.GetNoteByID("n1")
	if err != nil {
		t.Fatalf("GetNoteByID failed: %v", err)
	}
	if record == nil {
		t.Fatal("stored note not found")
	}
	if record.Content != "grocery list" {
		t.Errorf("got content %q, want %q", record.Content, "grocery list")
	}
	if record.Polished {
		t.Error("new note reported as polished")
	}
	if !record.CreatedAt.Equal(now) {
		t.Errorf("got created_at %v, want %v", record.CreatedAt, now)
	}
}

func TestNoteStorageGetMissingReturnsNil(t *testing.T) {
	s := newTestStorage(t)

	record, err := s.GetNoteByID("nope")
	if err != nil {
		t.Fatalf("GetNoteByID failed: %v", err)
	}
	if record != nil {
		t.Fatalf("got %+v for missing note, want nil", record)
	}
}

func TestNoteStorageListNewestFirst(t *testing.T) {
	s := newTestStorage(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	storeTestNote(t, s, "old", "first", base)
	storeTestNote(t, s, "mid", "second", base.Add(time.Hour))
	storeTestNote(t, s, "new", "third", base.Add(2*time.Hour))

	records, err := s.GetAllNotes(10)
	if err != nil {
		t.Fatalf("GetAllNotes failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d notes, want 3", len(records))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if records[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, records[i].ID, want)
		}
	}

	limited, err := s.GetAllNotes(2)
	if err != nil {
		t.Fatalf("GetAllNotes failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d notes with limit 2, want 2", len(limited))
	}
}

func TestNoteStorageSearchIsCaseInsensitive(t *testing.T) {
	s := newTestStorage(t)

	now := time.Now().UTC()
	storeTestNote(t, s, "n1", "Remember the MILK", now)
	storeTestNote(t, s, "n2", "totally unrelated", now)

	records, err := s.SearchNotes("milk", 10)
	if err != nil {
		t.Fatalf("SearchNotes failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != "n1" {
		t.Fatalf("got %d results, want only n1", len(records))
	}
}

func TestNoteStorageUpdateContent(t *testing.T) {
	s := newTestStorage(t)

	storeTestNote(t, s, "n1", "draft", time.Now().UTC())
	if err := s.MarkNotePolished("n1", "polished draft"); err != nil {
		t.Fatalf("MarkNotePolished failed: %v", err)
	}

	if err := s.UpdateNoteContent("n1", "edited"); err != nil {
		t.Fatalf("UpdateNoteContent failed: %v", err)
	}

	record, err := s.GetNoteByID("n1")
	if err != nil {
		t.Fatalf("GetNoteByID failed: %v", err)
	}
	if record.Content != "edited" {
		t.Errorf("got content %q, want %q", record.Content, "edited")
	}
	// An edit makes the note a polishing candidate again
	if record.Polished {
		t.Error("edited note still flagged polished")
	}

	if err := s.UpdateNoteContent("missing", "x"); err == nil {
		t.Fatal("expected error updating missing note")
	}
}

func TestNoteStorageDelete(t *testing.T) {
	s := newTestStorage(t)

	storeTestNote(t, s, "n1", "bye", time.Now().UTC())
	if err := s.DeleteNote("n1"); err != nil {
		t.Fatalf("DeleteNote failed: %v", err)
	}

	record, err := s.GetNoteByID("n1")
	if err != nil {
		t.Fatalf("GetNoteByID failed: %v", err)
	}
	if record != nil {
		t.Fatal("deleted note still present")
	}

	if err := s.DeleteNote("n1"); err == nil {
		t.Fatal("expected error deleting missing note")
	}
}

func TestNoteStoragePolishQueue(t *testing.T) {
	s := newTestStorage(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	storeTestNote(t, s, "newer", "needs polish b", base.Add(time.Hour))
	storeTestNote(t, s, "older", "needs polish a", base)
	storeTestNote(t, s, "empty", "", base)

	records, err := s.GetUnpolishedNotes(10)
	if err != nil {
		t.Fatalf("GetUnpolishedNotes failed: %v", err)
	}
	// Empty notes are skipped; oldest update first
	if len(records) != 2 {
		t.Fatalf("got %d unpolished notes, want 2", len(records))
	}
	if records[0].ID != "older" || records[1].ID != "newer" {
		t.Fatalf("got order %s, %s, want older, newer", records[0].ID, records[1].ID)
	}

	if err := s.MarkNotePolished("older", "Needs polish A."); err != nil {
		t.Fatalf("MarkNotePolished failed: %v", err)
	}

	records, err = s.GetUnpolishedNotes(10)
	if err != nil {
		t.Fatalf("GetUnpolishedNotes failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != "newer" {
		t.Fatalf("polished note still queued: %d results", len(records))
	}

	record, err := s.GetNoteByID("older")
	if err != nil {
		t.Fatalf("GetNoteByID failed: %v", err)
	}
	if record.Content != "Needs polish A." || !record.Polished {
		t.Fatalf("got %+v after polish", record)
	}
}
