package raft

// ElectionStore persists the ElectionRecord across restarts.
//
// After a successful Write, any subsequent Read from any process must see
// exactly the written record; a crash between write and rename must leave
// the prior record intact (§4.1).
type ElectionStore interface {
	// Read returns the persisted record, or ok=false if the file is absent
	// or empty; the caller then treats it as {epoch:0, no leader, no vote}.
	// Non-empty contents that cannot be parsed are returned as an error.
	Read() (rec ElectionRecord, ok bool, err error)

	// Write atomically persists rec via a write-temp-then-rename discipline.
	Write(rec ElectionRecord) error

	// Clear removes the persisted record.
	Clear() error
}
