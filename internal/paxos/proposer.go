package paxos

import "github.com/paxoslab/quorum/internal/wire"

// handlePropose starts a new round for value. A fresh Propose always wins
// over whatever round this replica had in flight: the old proposal is simply
// discarded, matching the absence of retry/backoff in this protocol.
func (r *Replica) handlePropose(value wire.Value) []wire.Outgoing {
	r.seqCounter++
	seq := wire.SequenceNumber{Counter: r.seqCounter, ProposerID: r.id}
	r.proposal = newProposal(seq, value)
	return r.broadcastToCluster(wire.RequestDatagram(wire.NewPrepare(seq)))
}

// handlePrepareResponse folds a Promise from src into the active round. Once
// a quorum of promises has been collected, phase 2 starts: Accept(seq, v) is
// sent to exactly that quorum (the replicas that promised), where v is
// either this replica's wanted value or the value of the highest-numbered
// accepted proposal reported by any promise (the safety-critical rule: a
// proposer must never override a value that might already be chosen).
func (r *Replica) handlePrepareResponse(src wire.ReplicaId, resp wire.Response) []wire.Outgoing {
	p := r.proposal
	if p == nil || p.accepting {
		return nil
	}
	if _, seen := p.Prepared[src]; seen {
		return nil
	}
	p.Prepared[src] = struct{}{}
	if resp.Accepted != nil {
		if p.HighestSeq == nil || p.HighestSeq.Less(resp.Accepted.Seq) {
			seq := resp.Accepted.Seq
			value := resp.Accepted.Value
			p.HighestSeq = &seq
			p.Value = &value
		}
	}
	if len(p.Prepared) < r.quorumSize {
		return nil
	}
	p.accepting = true
	return r.sendTo(p.promisedSet(), wire.RequestDatagram(wire.NewAccept(p.Seq, p.valueForPhase2())))
}

// handleAcceptResponse folds an Accepted(seq) vote from src into the active
// round. Once a quorum has voted, the value is chosen: Learn(value) is
// broadcast and the round ends.
func (r *Replica) handleAcceptResponse(src wire.ReplicaId, resp wire.Response) []wire.Outgoing {
	p := r.proposal
	if p == nil || !p.accepting || resp.Seq != p.Seq {
		return nil
	}
	if _, seen := p.Accepted[src]; seen {
		return nil
	}
	p.Accepted[src] = struct{}{}
	if len(p.Accepted) < r.quorumSize {
		return nil
	}
	value := p.valueForPhase2()
	r.proposal = nil
	return r.broadcastToCluster(wire.RequestDatagram(wire.NewLearn(value)))
}

// broadcastToCluster addresses the full roster, including this replica's own
// id: a Prepare/Learn sent to ourselves travels through the broker like any
// other message, so there is no loopback shortcut here.
func (r *Replica) broadcastToCluster(d wire.Datagram) []wire.Outgoing {
	return r.sendTo(r.members, d)
}

// sendTo addresses exactly dests, copied so the caller's backing slice (or
// map iteration order) can't be mutated out from under the returned
// Outgoing.
func (r *Replica) sendTo(dests []wire.ReplicaId, d wire.Datagram) []wire.Outgoing {
	if len(dests) == 0 {
		return nil
	}
	cp := make([]wire.ReplicaId, len(dests))
	copy(cp, dests)
	return []wire.Outgoing{{Dest: cp, Dgram: d}}
}
