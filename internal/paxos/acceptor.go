package paxos

import "github.com/paxoslab/quorum/internal/wire"

// handlePrepare applies the promise rule: once seq N has been promised, a
// Prepare below N goes unanswered rather than NACKed. A granted promise
// carries whatever this acceptor has already voted for, so a proposer can
// recover a value that might already be chosen.
func (r *Replica) handlePrepare(seq wire.SequenceNumber) (wire.Response, bool) {
	if seq.Less(r.lastPromised) {
		return wire.Response{}, false
	}
	r.lastPromised = seq
	return wire.NewPromiseResponse(r.lastAccepted), true
}

// handleAccept applies the acceptance rule: vote for (seq, value) only if no
// strictly higher sequence number has been promised. seq equal to
// lastPromised is accepted, since that is the round this acceptor just
// promised into.
func (r *Replica) handleAccept(seq wire.SequenceNumber, value wire.Value) (wire.Response, bool) {
	if seq.Less(r.lastPromised) {
		return wire.Response{}, false
	}
	r.lastPromised = seq
	r.lastAccepted = &wire.AcceptedProposal{Seq: seq, Value: value}
	return wire.NewAcceptResponse(seq), true
}
