package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/store"
)

func testSession() store.Session {
	return store.Session{
		ID:       "sess-1",
		Name:     "Demo",
		TempoBPM: 124,
		Tracks: []store.Track{
			{ID: "t1", Name: "Drums", Volume: 0.8},
		},
	}
}

func TestSessionStore(t *testing.T) {
	t.Run("SaveLoadRoundTrip", func(t *testing.T) {
		s := NewSessionStore(t.TempDir())

		if err := s.Save(testSession(), "ctx-primary"); err != nil {
			t.Fatalf("Save: %v", err)
		}

		doc, err := s.Load("sess-1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if doc == nil {
			t.Fatal("Load returned nil for saved session")
		}
		if doc.Version != DocumentVersion {
			t.Errorf("Version = %d, want %d", doc.Version, DocumentVersion)
		}
		if doc.SavedBy != "ctx-primary" {
			t.Errorf("SavedBy = %q", doc.SavedBy)
		}
		if doc.Session.TempoBPM != 124 || len(doc.Session.Tracks) != 1 {
			t.Errorf("Session = %+v", doc.Session)
		}
	})

	t.Run("LoadMissingReturnsNil", func(t *testing.T) {
		s := NewSessionStore(t.TempDir())
		doc, err := s.Load("absent")
		if err != nil || doc != nil {
			t.Errorf("Load(absent) = %v, %v; want nil, nil", doc, err)
		}
	})

	t.Run("SaveReplacesLiveDocument", func(t *testing.T) {
		s := NewSessionStore(t.TempDir())

		sess := testSession()
		if err := s.Save(sess, "ctx"); err != nil {
			t.Fatal(err)
		}
		sess.TempoBPM = 90
		if err := s.Save(sess, "ctx"); err != nil {
			t.Fatal(err)
		}

		doc, err := s.Load("sess-1")
		if err != nil || doc == nil {
			t.Fatalf("Load: %v, %v", doc, err)
		}
		if doc.Session.TempoBPM != 90 {
			t.Errorf("TempoBPM = %v, want 90", doc.Session.TempoBPM)
		}
	})

	t.Run("SnapshotsAccumulate", func(t *testing.T) {
		s := NewSessionStore(t.TempDir())
		sess := testSession()

		for i := 0; i < 3; i++ {
			if _, err := s.Snapshot(sess, "ctx"); err != nil {
				t.Fatalf("Snapshot %d: %v", i, err)
			}
			time.Sleep(2 * time.Millisecond)
		}

		cps, err := s.Checkpoints("sess-1")
		if err != nil {
			t.Fatalf("Checkpoints: %v", err)
		}
		if len(cps) != 3 {
			t.Fatalf("got %d checkpoints, want 3", len(cps))
		}
		for i := 1; i < len(cps); i++ {
			if cps[i].SavedAt.Before(cps[i-1].SavedAt) {
				t.Error("checkpoints not sorted oldest first")
			}
		}

		doc, err := s.LoadCheckpoint(cps[0])
		if err != nil {
			t.Fatalf("LoadCheckpoint: %v", err)
		}
		if doc.Session.ID != "sess-1" {
			t.Errorf("checkpoint session = %q", doc.Session.ID)
		}
	})

	t.Run("SnapshotLeavesLiveDocumentAlone", func(t *testing.T) {
		dir := t.TempDir()
		s := NewSessionStore(dir)

		if _, err := s.Snapshot(testSession(), "ctx"); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(dir, "sess-1.json")); !os.IsNotExist(err) {
			t.Error("snapshot created or touched the live document")
		}
	})

	t.Run("PruneKeepsNewest", func(t *testing.T) {
		s := NewSessionStore(t.TempDir())
		sess := testSession()

		for i := 0; i < 5; i++ {
			if _, err := s.Snapshot(sess, "ctx"); err != nil {
				t.Fatal(err)
			}
			time.Sleep(2 * time.Millisecond)
		}

		before, _ := s.Checkpoints("sess-1")
		if err := s.Prune("sess-1", 2); err != nil {
			t.Fatalf("Prune: %v", err)
		}

		after, err := s.Checkpoints("sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(after) != 2 {
			t.Fatalf("got %d checkpoints after prune, want 2", len(after))
		}
		// The survivors are the two newest.
		if !after[0].SavedAt.Equal(before[3].SavedAt) || !after[1].SavedAt.Equal(before[4].SavedAt) {
			t.Error("prune removed the wrong checkpoints")
		}
	})

	t.Run("CheckpointsIgnoreOtherSessions", func(t *testing.T) {
		s := NewSessionStore(t.TempDir())

		other := testSession()
		other.ID = "sess-2"
		if _, err := s.Snapshot(testSession(), "ctx"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Snapshot(other, "ctx"); err != nil {
			t.Fatal(err)
		}

		cps, err := s.Checkpoints("sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(cps) != 1 {
			t.Errorf("got %d checkpoints, want 1", len(cps))
		}
	})

	t.Run("Clear", func(t *testing.T) {
		s := NewSessionStore(t.TempDir())
		if err := s.Save(testSession(), "ctx"); err != nil {
			t.Fatal(err)
		}
		if err := s.Clear("sess-1"); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		doc, err := s.Load("sess-1")
		if err != nil || doc != nil {
			t.Errorf("Load after Clear = %v, %v", doc, err)
		}
		// Clearing twice is fine.
		if err := s.Clear("sess-1"); err != nil {
			t.Errorf("second Clear: %v", err)
		}
	})
}
