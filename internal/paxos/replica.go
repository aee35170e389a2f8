package paxos

import (
	"go.uber.org/zap"

	"github.com/paxoslab/quorum/internal/wire"
)

// Replica runs all three Paxos roles for one cluster member: proposer,
// acceptor and learner share a single mutable state machine, driven by one
// goroutine through Handle. Nothing here takes a lock; callers are expected
// to serialize calls to Handle (internal/node does this with a single
// dispatch loop), which is what makes the safety rules in acceptor.go and
// proposer.go correct without synchronization of their own.
type Replica struct {
	id      wire.ReplicaId
	members []wire.ReplicaId // full cluster roster, including id
	quorumSize int

	// acceptor state
	lastPromised wire.SequenceNumber
	lastAccepted *wire.AcceptedProposal

	// proposer state: at most one round in flight
	proposal   *Proposal
	seqCounter uint64

	// learner state
	chosen *wire.Value

	log *zap.Logger
}

// NewReplica builds a Replica for id among members, which must include id.
// Quorum is the classic majority: floor(len(members)/2) + 1.
func NewReplica(id wire.ReplicaId, members []wire.ReplicaId, log *zap.Logger) *Replica {
	roster := make([]wire.ReplicaId, len(members))
	copy(roster, members)
	return &Replica{
		id:         id,
		members:    roster,
		quorumSize: len(roster)/2 + 1,
		log:        log,
	}
}

// Handle is the single entry point for everything this replica reacts to: a
// client's Propose/Query, a peer's Prepare/Accept/Learn request, or a peer's
// response to a request this replica sent as a proposer. It returns the
// messages that must now go out, if any; Handle itself never blocks or
// touches the network.
func (r *Replica) Handle(src wire.ReplicaId, d wire.Datagram) []wire.Outgoing {
	switch d.Kind {
	case wire.DatagramRequest:
		return r.handleRequestDatagram(src, d.Request)
	case wire.DatagramResponse:
		return r.handleResponseDatagram(src, d.Response)
	default:
		r.log.Warn("dropping datagram with unknown kind", zap.Uint8("kind", uint8(d.Kind)))
		return nil
	}
}

func (r *Replica) handleRequestDatagram(src wire.ReplicaId, req wire.Request) []wire.Outgoing {
	switch req.Kind {
	case wire.ReqPropose:
		return r.handlePropose(req.Value)

	case wire.ReqPrepare:
		resp, ok := r.handlePrepare(req.Seq)
		if !ok {
			return nil
		}
		return r.reply(src, resp)

	case wire.ReqAccept:
		resp, ok := r.handleAccept(req.Seq, req.Value)
		if !ok {
			return nil
		}
		return r.reply(src, resp)

	case wire.ReqLearn:
		r.handleLearn(req.Value)
		return nil

	case wire.ReqQuery:
		return r.reply(src, wire.NewQueryResponse(r.chosen))

	default:
		r.log.Warn("dropping request with unknown kind", zap.Uint8("kind", uint8(req.Kind)))
		return nil
	}
}

func (r *Replica) handleResponseDatagram(src wire.ReplicaId, resp wire.Response) []wire.Outgoing {
	switch resp.Kind {
	case wire.RespPrepare:
		return r.handlePrepareResponse(src, resp)
	case wire.RespAccept:
		return r.handleAcceptResponse(src, resp)
	case wire.RespQuery:
		// A replica never issues a Query as a proposer of its own; responses
		// to Query only ever reach a client, which does not call Handle.
		return nil
	default:
		r.log.Warn("dropping response with unknown kind", zap.Uint8("kind", uint8(resp.Kind)))
		return nil
	}
}

func (r *Replica) reply(to wire.ReplicaId, resp wire.Response) []wire.Outgoing {
	return []wire.Outgoing{{Dest: []wire.ReplicaId{to}, Dgram: wire.ResponseDatagram(resp)}}
}

// Chosen reports the value this replica has learned, if any.
func (r *Replica) Chosen() (wire.Value, bool) {
	if r.chosen == nil {
		return 0, false
	}
	return *r.chosen, true
}

// ID returns the identifier this replica was constructed with.
func (r *Replica) ID() wire.ReplicaId { return r.id }
