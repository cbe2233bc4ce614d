package raft

import (
	"path/filepath"
	"testing"
)

func TestFileElectionStore_MissingFileReadsAsAbsent(t *testing.T) {
	t.Parallel()

	store := NewFileElectionStore(filepath.Join(t.TempDir(), "election.json"))

	_, ok, err := store.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a missing file")
	}
}

func TestFileElectionStore_WriteThenReadRoundTrips(t *testing.T) {
	t.Parallel()

	store := NewFileElectionStore(filepath.Join(t.TempDir(), "election.json"))
	want := ElectionRecord{Epoch: 7, Leader: 3, VotedFor: NoVote}

	if err := store.Write(want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, ok, err := store.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true after Write")
	}
	if got != want {
		t.Fatalf("Read() = %+v, want %+v", got, want)
	}
}

func TestFileElectionStore_WriteOverwritesPriorRecord(t *testing.T) {
	t.Parallel()

	store := NewFileElectionStore(filepath.Join(t.TempDir(), "election.json"))

	if err := store.Write(ElectionRecord{Epoch: 1, Leader: NoLeader, VotedFor: 1}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Write(ElectionRecord{Epoch: 2, Leader: 1, VotedFor: NoVote}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, ok, err := store.Read()
	if err != nil || !ok {
		t.Fatalf("Read() = (%+v, %v, %v)", got, ok, err)
	}
	want := ElectionRecord{Epoch: 2, Leader: 1, VotedFor: NoVote}
	if got != want {
		t.Fatalf("Read() = %+v, want %+v", got, want)
	}
}

func TestFileElectionStore_ClearRemovesRecord(t *testing.T) {
	t.Parallel()

	store := NewFileElectionStore(filepath.Join(t.TempDir(), "election.json"))
	if err := store.Write(ElectionRecord{Epoch: 5, Leader: 0, VotedFor: NoVote}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	_, ok, err := store.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false after Clear")
	}
}

func TestFileElectionStore_ClearOnMissingFileIsNotAnError(t *testing.T) {
	t.Parallel()

	store := NewFileElectionStore(filepath.Join(t.TempDir(), "election.json"))
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() on missing file error = %v", err)
	}
}

// TestFileElectionStore_SurvivesSimulatedRestart covers P6: after
// persisting a vote, a fresh store instance over the same path sees
// exactly the persisted tuple.
func TestFileElectionStore_SurvivesSimulatedRestart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "election.json")
	first := NewFileElectionStore(path)
	want := ElectionRecord{Epoch: 9, Leader: NoLeader, VotedFor: 4}
	if err := first.Write(want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	second := NewFileElectionStore(path)
	got, ok, err := second.Read()
	if err != nil || !ok {
		t.Fatalf("Read() = (%+v, %v, %v)", got, ok, err)
	}
	if got != want {
		t.Fatalf("Read() = %+v, want %+v", got, want)
	}
}
