package raft

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// FileElectionStore persists the ElectionRecord as JSON in a single file,
// written via a sibling ".tmp" file plus rename (§4.1, §6 "Persisted state
// layout").
type FileElectionStore struct {
	path string
}

// NewFileElectionStore returns a file-backed ElectionStore rooted at path.
func NewFileElectionStore(path string) *FileElectionStore {
	return &FileElectionStore{path: path}
}

// electionRecordOnDisk is the on-disk shape: epoch plus -1-sentinel ids.
type electionRecordOnDisk struct {
	Epoch    int64 `json:"epoch"`
	LeaderID int64 `json:"leaderId"`
	VotedID  int64 `json:"votedId"`
}

// Read implements ElectionStore. A missing file or an empty file is
// reported as ok=false rather than an error; a non-empty file that fails to
// parse is returned as an error (fatal, §7 category 6).
func (s *FileElectionStore) Read() (ElectionRecord, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ElectionRecord{}, false, nil
		}
		return ElectionRecord{}, false, err
	}
	if len(data) == 0 {
		return ElectionRecord{}, false, nil
	}

	var onDisk electionRecordOnDisk
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return ElectionRecord{}, false, err
	}

	return ElectionRecord{
		Epoch:    Epoch(onDisk.Epoch),
		Leader:   NodeID(onDisk.LeaderID),
		VotedFor: NodeID(onDisk.VotedID),
	}, true, nil
}

// Write implements ElectionStore.
func (s *FileElectionStore) Write(rec ElectionRecord) error {
	onDisk := electionRecordOnDisk{
		Epoch:    int64(rec.Epoch),
		LeaderID: int64(rec.Leader),
		VotedID:  int64(rec.VotedFor),
	}
	return writeJSONAtomically(s.path, onDisk)
}

// Clear implements ElectionStore.
func (s *FileElectionStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// writeJSONAtomically marshals v, writes it to a sibling ".tmp" file, fsyncs
// it, renames it over path, then fsyncs the parent directory so the rename
// itself survives a crash.
func writeJSONAtomically(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	//nolint:gosec // tmpName and path are derived from the configured data directory, not user input.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	//nolint:gosec // dir is the configured storage directory under our control.
	dirFile, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = dirFile.Close() }()

	return dirFile.Sync()
}
