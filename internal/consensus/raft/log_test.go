package raft

import "testing"

func TestInMemoryLog_AppendAsLeaderAssignsMonotonicOffsets(t *testing.T) {
	t.Parallel()

	l := NewInMemoryLog()

	base, err := l.AppendAsLeader([][]byte{[]byte("a"), []byte("b")}, 1, 100)
	if err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}
	if base != 0 {
		t.Fatalf("first append base = %d, want 0", base)
	}
	if got := l.EndOffset(); got != 2 {
		t.Fatalf("EndOffset() = %d, want 2", got)
	}

	base, err = l.AppendAsLeader([][]byte{[]byte("c")}, 1, 101)
	if err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}
	if base != 2 {
		t.Fatalf("second append base = %d, want 2", base)
	}
}

func TestInMemoryLog_AppendLeaderChangeIsControlBatch(t *testing.T) {
	t.Parallel()

	l := NewInMemoryLog()
	base, err := l.AppendLeaderChange(LeaderChangeRecord{LeaderID: 1, Voters: []NodeID{1, 2, 3}}, 4, 0)
	if err != nil {
		t.Fatalf("AppendLeaderChange() error = %v", err)
	}
	if base != 0 {
		t.Fatalf("base = %d, want 0", base)
	}
	if got := l.EndOffset(); got != 1 {
		t.Fatalf("EndOffset() = %d, want 1 (one control record)", got)
	}

	batches := l.Read(0, 0)
	if len(batches) != 1 || !batches[0].IsControl {
		t.Fatalf("Read() = %+v, want one control batch", batches)
	}
}

func TestInMemoryLog_AppendAsFollowerRejectsOffsetGap(t *testing.T) {
	t.Parallel()

	l := NewInMemoryLog()
	err := l.AppendAsFollower(Batch{BaseOffset: 5, Epoch: 1, Records: [][]byte{[]byte("x")}})
	if err != ErrOffsetGap {
		t.Fatalf("AppendAsFollower() error = %v, want ErrOffsetGap", err)
	}
}

func TestInMemoryLog_TruncateToDiscardsTrailingBatches(t *testing.T) {
	t.Parallel()

	l := NewInMemoryLog()
	if _, err := l.AppendAsLeader([][]byte{[]byte("a")}, 3, 0); err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}
	if _, err := l.AppendAsLeader([][]byte{[]byte("b")}, 3, 0); err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}
	if _, err := l.AppendAsLeader([][]byte{[]byte("c")}, 3, 0); err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}

	l.TruncateTo(2)

	if got := l.EndOffset(); got != 2 {
		t.Fatalf("EndOffset() after truncate = %d, want 2", got)
	}
}

func TestInMemoryLog_TruncateToSplitsAStraddlingBatch(t *testing.T) {
	t.Parallel()

	l := NewInMemoryLog()
	if _, err := l.AppendAsLeader([][]byte{[]byte("a"), []byte("b"), []byte("c")}, 1, 0); err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}

	l.TruncateTo(2)

	if got := l.EndOffset(); got != 2 {
		t.Fatalf("EndOffset() after truncate = %d, want 2", got)
	}

	batches := l.Read(0, 0)
	if len(batches) != 1 || len(batches[0].Records) != 2 {
		t.Fatalf("Read() = %+v, want one batch with 2 records", batches)
	}
	if string(batches[0].Records[0]) != "a" || string(batches[0].Records[1]) != "b" {
		t.Fatalf("Read() records = %q, want [a b]", batches[0].Records)
	}
}

func TestInMemoryLog_ReadNeverReturnsAPartialBatch(t *testing.T) {
	t.Parallel()

	l := NewInMemoryLog()
	if _, err := l.AppendAsLeader([][]byte{[]byte("a"), []byte("b"), []byte("c")}, 1, 0); err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}

	batches := l.Read(1, 2)
	if len(batches) != 0 {
		t.Fatalf("Read(1,2) = %+v, want no batches (would slice mid-batch)", batches)
	}

	batches = l.Read(0, 3)
	if len(batches) != 1 || len(batches[0].Records) != 3 {
		t.Fatalf("Read(0,3) = %+v, want the full batch", batches)
	}
}

func TestInMemoryLog_EpochEndOffsetTracksPerEpochBoundary(t *testing.T) {
	t.Parallel()

	l := NewInMemoryLog()
	if _, err := l.AppendAsLeader([][]byte{[]byte("a"), []byte("b"), []byte("c")}, 3, 0); err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}
	if _, err := l.AppendAsLeader([][]byte{[]byte("d")}, 5, 0); err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}

	if got := l.EpochEndOffset(3); got != 3 {
		t.Fatalf("EpochEndOffset(3) = %d, want 3", got)
	}
	if got := l.EpochEndOffset(5); got != 4 {
		t.Fatalf("EpochEndOffset(5) = %d, want 4", got)
	}
}

func TestInMemoryLog_ClonedBatchesAreIndependentOfInternalState(t *testing.T) {
	t.Parallel()

	l := NewInMemoryLog()
	records := [][]byte{[]byte("a")}
	if _, err := l.AppendAsLeader(records, 1, 0); err != nil {
		t.Fatalf("AppendAsLeader() error = %v", err)
	}

	batches := l.Read(0, 0)
	batches[0].Records[0][0] = 'z'

	again := l.Read(0, 0)
	if again[0].Records[0][0] == 'z' {
		t.Fatalf("mutating a Read() result corrupted internal log storage")
	}
}
