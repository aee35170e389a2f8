package paxos

import "github.com/paxoslab/quorum/internal/wire"

// Proposal is the proposer-side state of a single in-flight round. A
// replica holds at most one of these at a time: a new Propose overwrites
// whatever round was running.
type Proposal struct {
	Seq         wire.SequenceNumber
	WantedValue wire.Value
	Value       *wire.Value
	HighestSeq  *wire.SequenceNumber
	Prepared    map[wire.ReplicaId]struct{}
	Accepted    map[wire.ReplicaId]struct{}
	accepting   bool // true once phase 2 has been entered; guards re-entry
}

func newProposal(seq wire.SequenceNumber, wantedValue wire.Value) *Proposal {
	return &Proposal{
		Seq:         seq,
		WantedValue: wantedValue,
		Prepared:    make(map[wire.ReplicaId]struct{}),
		Accepted:    make(map[wire.ReplicaId]struct{}),
	}
}

// valueForPhase2 returns the value the proposer will push in phase 2: the
// value carried by the highest-ballot accepted proposal seen in any
// promise, if any, else the proposer's own wanted value.
func (p *Proposal) valueForPhase2() wire.Value {
	if p.Value != nil {
		return *p.Value
	}
	return p.WantedValue
}

// promisedSet returns the replicas that promised this round, i.e. the
// quorum Accept is addressed to in phase 2.
func (p *Proposal) promisedSet() []wire.ReplicaId {
	dests := make([]wire.ReplicaId, 0, len(p.Prepared))
	for id := range p.Prepared {
		dests = append(dests, id)
	}
	return dests
}
