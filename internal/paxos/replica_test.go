package paxos

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paxoslab/quorum/internal/wire"
)

func newTestReplica(id wire.ReplicaId, members []wire.ReplicaId) *Replica {
	return NewReplica(id, members, zap.NewNop())
}

func TestThreeReplicaHappyPath(t *testing.T) {
	members := []wire.ReplicaId{1, 2, 3}
	replicas := map[wire.ReplicaId]*Replica{
		1: newTestReplica(1, members),
		2: newTestReplica(2, members),
		3: newTestReplica(3, members),
	}

	type routed struct {
		from wire.ReplicaId
		wire.Outgoing
	}

	var queue []routed
	deliver := func(from wire.ReplicaId, out []wire.Outgoing) {
		for _, o := range out {
			queue = append(queue, routed{from: from, Outgoing: o})
		}
	}

	deliver(1, replicas[1].Handle(0, wire.RequestDatagram(wire.NewPropose(7))))
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, dest := range next.Dest {
			out := replicas[dest].Handle(next.from, next.Dgram)
			deliver(dest, out)
		}
	}

	for id, r := range replicas {
		v, ok := r.Chosen()
		require.True(t, ok, "replica %d never learned a value", id)
		require.Equal(t, uint32(7), v)
	}
}

func TestPromiseRuleRejectsLowerPrepare(t *testing.T) {
	r := newTestReplica(1, []wire.ReplicaId{1, 2, 3})

	_, ok := r.handlePrepare(wire.SequenceNumber{Counter: 5, ProposerID: 2})
	require.True(t, ok)

	_, ok = r.handlePrepare(wire.SequenceNumber{Counter: 3, ProposerID: 2})
	require.False(t, ok, "a Prepare below the last promised sequence must go unanswered")
}

func TestAcceptRuleHonorsEqualSeq(t *testing.T) {
	r := newTestReplica(1, []wire.ReplicaId{1, 2, 3})
	seq := wire.SequenceNumber{Counter: 5, ProposerID: 2}

	_, ok := r.handlePrepare(seq)
	require.True(t, ok)

	resp, ok := r.handleAccept(seq, 42)
	require.True(t, ok, "an Accept at exactly the promised sequence must be voted for")
	require.Equal(t, seq, resp.Seq)
}

func TestAcceptRuleRejectsBelowPromised(t *testing.T) {
	r := newTestReplica(1, []wire.ReplicaId{1, 2, 3})
	_, ok := r.handlePrepare(wire.SequenceNumber{Counter: 5, ProposerID: 2})
	require.True(t, ok)

	_, ok = r.handleAccept(wire.SequenceNumber{Counter: 4, ProposerID: 9}, 1)
	require.False(t, ok)
}

// TestPromiseCarriesPreviouslyAcceptedValue checks the acceptor's half of the
// safety-critical rule: a promise for a higher seq reports the value this
// acceptor already voted for, which is what lets a proposer adopt it.
func TestPromiseCarriesPreviouslyAcceptedValue(t *testing.T) {
	r := newTestReplica(1, []wire.ReplicaId{1, 2, 3})
	seq1 := wire.SequenceNumber{Counter: 1, ProposerID: 9}
	_, ok := r.handlePrepare(seq1)
	require.True(t, ok)
	_, ok = r.handleAccept(seq1, 100)
	require.True(t, ok)

	seq2 := wire.SequenceNumber{Counter: 2, ProposerID: 9}
	resp, ok := r.handlePrepare(seq2)
	require.True(t, ok)
	require.NotNil(t, resp.Accepted)
	require.Equal(t, uint32(100), resp.Accepted.Value)
}

func TestQueryBeforeDecisionReturnsNone(t *testing.T) {
	r := newTestReplica(1, []wire.ReplicaId{1, 2, 3})
	out := r.Handle(0, wire.RequestDatagram(wire.NewQuery()))
	require.Len(t, out, 1)
	require.Equal(t, wire.RespQuery, out[0].Dgram.Response.Kind)
	require.Nil(t, out[0].Dgram.Response.QueryValue)
}

func TestQueryAfterLearnReturnsValue(t *testing.T) {
	r := newTestReplica(1, []wire.ReplicaId{1, 2, 3})
	r.handleLearn(55)

	out := r.Handle(0, wire.RequestDatagram(wire.NewQuery()))
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Dgram.Response.QueryValue)
	require.Equal(t, uint32(55), *out[0].Dgram.Response.QueryValue)
}

func TestNewProposeDiscardsInFlightRound(t *testing.T) {
	r := newTestReplica(1, []wire.ReplicaId{1, 2, 3})
	r.handlePropose(1)
	first := r.proposal
	require.NotNil(t, first)

	r.handlePropose(2)
	require.NotSame(t, first, r.proposal)
	require.Equal(t, uint32(2), r.proposal.WantedValue)
}
