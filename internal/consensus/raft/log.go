package raft

import "sync"

// ReplicatedLog is the append-only ordered log of record batches tagged by
// leader epoch (§4.2). Its writer side is exclusive to ConsensusCore; its
// reader side may be consulted by the application.
type ReplicatedLog interface {
	// EndOffset returns the offset just past the last appended record.
	EndOffset() Offset

	// LastFetchedEpoch returns the epoch of the last record, or 0 if empty.
	LastFetchedEpoch() Epoch

	// AppendAsLeader assigns monotonic offsets to records, tags the new
	// batch with epoch, and returns its base offset.
	AppendAsLeader(records [][]byte, epoch Epoch, nowMillis int64) (Offset, error)

	// AppendLeaderChange appends a single-record control batch recording a
	// leadership transition.
	AppendLeaderChange(rec LeaderChangeRecord, epoch Epoch, nowMillis int64) (Offset, error)

	// AppendAsFollower accepts a batch at the leader's stated offsets.
	// It fails with ErrOffsetGap if applying it would leave a gap.
	AppendAsFollower(batch Batch) error

	// TruncateTo discards all records at or after offset. Idempotent.
	TruncateTo(offset Offset)

	// Read returns batches covering [startOffset, maxOffset). It never
	// returns a partial batch; it may return fewer batches than requested.
	Read(startOffset, maxOffset Offset) []Batch

	// EpochAndOffsetAt returns the epoch of the batch that ends exactly at
	// offset (its LastOffset() equals offset), used for divergence checks.
	// ok is false for offset <= 0 and when no batch ends at offset.
	EpochAndOffsetAt(offset Offset) (epoch Epoch, ok bool)

	// EpochEndOffset returns the offset just past the last record written at
	// or before the given epoch — used to answer OFFSET_OUT_OF_RANGE with
	// the correct divergence point.
	EpochEndOffset(epoch Epoch) Offset
}

// InMemoryLog is a ReplicatedLog implementation backed by an in-process
// slice of batches, durable only for the life of the process (durable
// on-disk segment storage is out of scope per §1).
type InMemoryLog struct {
	mu      sync.Mutex
	batches []Batch
}

// NewInMemoryLog returns an empty InMemoryLog.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{}
}

// EndOffset implements ReplicatedLog.
func (l *InMemoryLog) EndOffset() Offset {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endOffsetLocked()
}

func (l *InMemoryLog) endOffsetLocked() Offset {
	if len(l.batches) == 0 {
		return 0
	}
	return l.batches[len(l.batches)-1].LastOffset()
}

// LastFetchedEpoch implements ReplicatedLog.
func (l *InMemoryLog) LastFetchedEpoch() Epoch {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.batches) == 0 {
		return 0
	}
	return l.batches[len(l.batches)-1].Epoch
}

// AppendAsLeader implements ReplicatedLog.
func (l *InMemoryLog) AppendAsLeader(records [][]byte, epoch Epoch, nowMillis int64) (Offset, error) {
	if len(records) == 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	base := l.endOffsetLocked()
	cp := make([][]byte, len(records))
	for i, r := range records {
		cp[i] = append([]byte(nil), r...)
	}
	l.batches = append(l.batches, Batch{
		BaseOffset: base,
		Epoch:      epoch,
		Timestamp:  nowMillis,
		Records:    cp,
	})
	return base, nil
}

// AppendLeaderChange implements ReplicatedLog.
func (l *InMemoryLog) AppendLeaderChange(rec LeaderChangeRecord, epoch Epoch, nowMillis int64) (Offset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	base := l.endOffsetLocked()
	value := rec
	value.Voters = append([]NodeID(nil), rec.Voters...)
	l.batches = append(l.batches, Batch{
		BaseOffset:   base,
		Epoch:        epoch,
		IsControl:    true,
		Timestamp:    nowMillis,
		ControlValue: &value,
	})
	return base, nil
}

// AppendAsFollower implements ReplicatedLog.
func (l *InMemoryLog) AppendAsFollower(batch Batch) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if batch.BaseOffset != l.endOffsetLocked() {
		return ErrOffsetGap
	}
	l.batches = append(l.batches, cloneBatch(batch))
	return nil
}

// TruncateTo implements ReplicatedLog.
func (l *InMemoryLog) TruncateTo(offset Offset) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.batches[:0:0]
	for _, b := range l.batches {
		if b.BaseOffset >= offset {
			break
		}
		if !b.IsControl && b.LastOffset() > offset {
			n := int(offset - b.BaseOffset)
			b.Records = append([][]byte(nil), b.Records[:n]...)
		}
		kept = append(kept, b)
	}
	l.batches = kept
}

// Read implements ReplicatedLog.
func (l *InMemoryLog) Read(startOffset, maxOffset Offset) []Batch {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Batch
	for _, b := range l.batches {
		if b.BaseOffset < startOffset {
			continue
		}
		if maxOffset > 0 && b.BaseOffset >= maxOffset {
			break
		}
		out = append(out, cloneBatch(b))
	}
	return out
}

// EpochAndOffsetAt implements ReplicatedLog.
func (l *InMemoryLog) EpochAndOffsetAt(offset Offset) (Epoch, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if offset <= 0 {
		return 0, false
	}
	for _, b := range l.batches {
		if b.LastOffset() == offset {
			return b.Epoch, true
		}
	}
	return 0, false
}

// EpochEndOffset implements ReplicatedLog.
func (l *InMemoryLog) EpochEndOffset(epoch Epoch) Offset {
	l.mu.Lock()
	defer l.mu.Unlock()

	var end Offset
	for _, b := range l.batches {
		if b.Epoch <= epoch {
			end = b.LastOffset()
		}
	}
	return end
}

func cloneBatch(b Batch) Batch {
	cp := b
	if len(b.Records) > 0 {
		cp.Records = make([][]byte, len(b.Records))
		for i, r := range b.Records {
			cp.Records[i] = append([]byte(nil), r...)
		}
	}
	if b.ControlValue != nil {
		v := *b.ControlValue
		v.Voters = append([]NodeID(nil), b.ControlValue.Voters...)
		cp.ControlValue = &v
	}
	return cp
}
