package raft

// AppendResult is the value an AppendFuture resolves to: the base offset
// and epoch the records were appended at, or Err set to
// ErrNotLeaderForPartition if this node was not leader.
type AppendResult struct {
	BaseOffset Offset
	Epoch      Epoch
	Err        error
}

// AppendFuture is the write-once completion handle returned by Append
// (§9 "Concurrent handoff from append to the poll loop").
type AppendFuture chan AppendResult

// Wait blocks until the poll loop completes the append.
func (f AppendFuture) Wait() AppendResult { return <-f }

type appendRequest struct {
	records [][]byte
	result  AppendFuture
}

// Append implements §4.5 "Append from the application". It is the one
// documented cross-goroutine edge (§5 "Shared resources"): the caller's
// goroutine enqueues onto a buffered mailbox that Poll drains at the top
// of its next quantum.
func (c *ConsensusCore) Append(records [][]byte) AppendFuture {
	future := make(AppendFuture, 1)
	req := &appendRequest{records: records, result: future}

	select {
	case c.appendMailbox <- req:
	default:
		future <- AppendResult{Err: ErrQueueOverflow}
	}
	return future
}

// drainAppendMailbox implements the mailbox drain at the top of each poll.
func (c *ConsensusCore) drainAppendMailbox() {
	for {
		select {
		case req := <-c.appendMailbox:
			c.completeAppend(req)
		default:
			return
		}
	}
}

func (c *ConsensusCore) completeAppend(req *appendRequest) {
	if !c.quorum.IsLeader() {
		req.result <- AppendResult{Err: ErrNotLeaderForPartition}
		return
	}

	epoch := c.quorum.Epoch()
	base, err := c.log.AppendAsLeader(req.records, epoch, c.clock().UnixMilli())
	if err != nil {
		c.metrics.IncPersistenceError(c.selfID, "append_as_leader")
		req.result <- AppendResult{Err: err}
		return
	}
	req.result <- AppendResult{BaseOffset: base, Epoch: epoch}
}
