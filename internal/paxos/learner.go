package paxos

import "go.uber.org/zap"

// handleLearn records a value as chosen. A learner never votes, so its only
// job is bookkeeping: once the cluster has chosen a value, every further
// Learn must carry the same one. A mismatch means the acceptance rule was
// violated somewhere else in the cluster, which this replica cannot recover
// from on its own.
func (r *Replica) handleLearn(value uint32) {
	if r.chosen != nil && *r.chosen != value {
		r.log.Fatal("conflicting chosen values observed",
			zap.Uint32("have", *r.chosen),
			zap.Uint32("got", value),
		)
	}
	v := value
	r.chosen = &v
}
