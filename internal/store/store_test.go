package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/folio/internal/story"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "folio.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string) Record {
	return Record{
		ID:      id,
		Title:   "The Salt Road",
		Genre:   "fantasy",
		Mode:    story.ModeFreeChoice,
		Premise: "A caravan crosses the salt flats.",
		Fragments: []story.Fragment{
			{ID: "f1", ChapterTitle: "One", Content: "## One\nSalt.", Choices: []story.Choice{{ID: "a", Text: "Go"}}, Stats: story.Stats{Tension: 20}},
			{ID: "f2", ChapterTitle: "One", Content: "More salt.", Stats: story.Stats{Tension: 40}},
		},
		Characters:   []story.Character{{Name: "Ila", Role: "guide", Affinity: 60}},
		StatsHistory: []story.Stats{{Tension: 20}, {Tension: 40}},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	rec := sampleRecord("s1")
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Title != rec.Title || got.Genre != rec.Genre || got.Mode != rec.Mode || got.Premise != rec.Premise {
		t.Errorf("header mismatch: %+v", got)
	}
	if len(got.Fragments) != 2 || got.Fragments[0].Content != "## One\nSalt." || got.Fragments[0].Choices[0].Text != "Go" {
		t.Errorf("fragments = %+v", got.Fragments)
	}
	if len(got.Characters) != 1 || got.Characters[0].Affinity != 60 {
		t.Errorf("characters = %+v", got.Characters)
	}
	if len(got.StatsHistory) != 2 || got.StatsHistory[1].Tension != 40 {
		t.Errorf("stats = %+v", got.StatsHistory)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestSaveUpsertKeepsCreatedAt(t *testing.T) {
	s := openTestStore(t)
	rec := sampleRecord("s1")
	rec.CreatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec.Title = "Renamed"
	rec.CreatedAt = time.Now()
	rec.Fragments = rec.Fragments[:1]
	if err := s.Save(rec); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := s.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Title != "Renamed" || len(got.Fragments) != 1 {
		t.Errorf("update not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("created_at overwritten: %v", got.CreatedAt)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"a", "b"} {
		if err := s.Save(sampleRecord(id)); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 saves, got %d", len(list))
	}
	if list[0].Fragments != 2 || list[0].Title != "The Salt Road" {
		t.Errorf("summary = %+v", list[0])
	}

	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRequiresID(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(Record{Title: "x"}); err == nil {
		t.Error("expected error for empty id")
	}
}
