package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("applied %d migrations, want 2", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations out of order: %v", versions)
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("002_transcripts.sql")
	if err != nil || v != 2 {
		t.Errorf("parseMigrationVersion = %d, %v; want 2", v, err)
	}
	if _, err := parseMigrationVersion("transcripts.sql"); err == nil {
		t.Error("expected error for unnumbered file")
	}
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestInteractionCRUD(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

	for i := range 3 {
		err := s.SaveInteraction(Interaction{
			ID:        fmt.Sprintf("id-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			SessionID: "sess",
			UserQuery: fmt.Sprintf("question %d", i),
			Tier:      "server",
			Searched:  i == 1,
			Response:  "answer",
		})
		if err != nil {
			t.Fatalf("SaveInteraction: %v", err)
		}
	}

	got, err := s.GetInteraction("id-1")
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}
	if got.UserQuery != "question 1" || !got.Searched || got.Tier != "server" {
		t.Errorf("GetInteraction = %+v", got)
	}
	if !got.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base.Add(time.Minute))
	}

	list, err := s.ListInteractions(2, 0)
	if err != nil {
		t.Fatalf("ListInteractions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "id-2" || list[1].ID != "id-1" {
		t.Errorf("ListInteractions(2, 0) = %v, want newest first", ids(list))
	}

	list, err = s.ListInteractions(10, 2)
	if err != nil {
		t.Fatalf("ListInteractions: %v", err)
	}
	if len(list) != 1 || list[0].ID != "id-0" {
		t.Errorf("ListInteractions(10, 2) = %v", ids(list))
	}

	if err := s.DeleteInteraction("id-0"); err != nil {
		t.Fatalf("DeleteInteraction: %v", err)
	}
	if _, err := s.GetInteraction("id-0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetInteraction after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteInteraction("id-0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func ids(list []Interaction) []string {
	out := make([]string, len(list))
	for i, it := range list {
		out[i] = it.ID
	}
	return out
}

func TestTranscriptAppendAndRead(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

	err := s.AppendTranscript("a", []TranscriptTurn{
		{Role: "user", Content: "hi", CreatedAt: now},
		{Role: "assistant", Content: "hello", CreatedAt: now.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}
	if err := s.AppendTranscript("b", []TranscriptTurn{{Role: "user", Content: "other", CreatedAt: now}}); err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}

	turns, err := s.Transcript("a")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].Content != "hi" || turns[1].Role != "assistant" {
		t.Errorf("turns = %+v", turns)
	}
	if !turns[1].CreatedAt.Equal(now.Add(time.Second)) {
		t.Errorf("CreatedAt = %v", turns[1].CreatedAt)
	}
}

func TestTranscriptTrimmedToLimit(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	for i := range TranscriptLimit + 7 {
		turn := TranscriptTurn{Role: "user", Content: fmt.Sprintf("m%d", i), CreatedAt: now}
		if err := s.AppendTranscript("s", []TranscriptTurn{turn}); err != nil {
			t.Fatalf("AppendTranscript %d: %v", i, err)
		}
	}

	turns, err := s.Transcript("s")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(turns) != TranscriptLimit {
		t.Fatalf("len = %d, want %d", len(turns), TranscriptLimit)
	}
	if turns[0].Content != "m7" {
		t.Errorf("oldest kept = %q, want m7", turns[0].Content)
	}
	if turns[len(turns)-1].Content != fmt.Sprintf("m%d", TranscriptLimit+6) {
		t.Errorf("newest = %q", turns[len(turns)-1].Content)
	}
}

func TestDeleteTranscript(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendTranscript("s", []TranscriptTurn{{Role: "user", Content: "x", CreatedAt: time.Now()}}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTranscript("s"); err != nil {
		t.Fatalf("DeleteTranscript: %v", err)
	}
	turns, err := s.Transcript("s")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("transcript not empty after delete: %v", turns)
	}
	if err := s.DeleteTranscript("s"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProfileKeys(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetProfileKey("zipcode"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key: err = %v, want ErrNotFound", err)
	}

	if err := s.SetProfileKeys(map[string]string{"zipcode": "77002"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetProfileKeys(map[string]string{"zipcode": "77007", "pets": "true"}); err != nil {
		t.Fatal(err)
	}

	v, err := s.GetProfileKey("zipcode")
	if err != nil || v != "77007" {
		t.Errorf("GetProfileKey = %q, %v; want 77007", v, err)
	}

	all, err := s.GetAllProfileKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["pets"] != "true" {
		t.Errorf("GetAllProfileKeys = %v", all)
	}
}

func TestSetProfileKeys_AllOrNothing(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetProfileKeys(map[string]string{"zipcode": "77002", "pets": "true"}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.db.Exec(`CREATE TRIGGER reject_bad_key BEFORE INSERT ON user_profile
		WHEN NEW.key = 'bad' BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatal(err)
	}

	err := s.SetProfileKeys(map[string]string{
		"zipcode":    "77007",
		"created_at": "1755185400000",
		"bad":        "x",
	})
	if err == nil {
		t.Fatal("expected error from rejected key")
	}

	all, err := s.GetAllProfileKeys()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"zipcode": "77002", "pets": "true"}
	if len(all) != len(want) || all["zipcode"] != "77002" || all["pets"] != "true" {
		t.Errorf("GetAllProfileKeys = %v, want %v unchanged", all, want)
	}
}
