package rsm

// Substrate is the boundary between a state machine and the consensus
// engine that drives it. It is deliberately tiny: log replication, leader
// election at the cluster level, and commit index advancement are the
// substrate's problem, not the state machine's (see spec §1, §6). A state
// machine is written entirely against this interface so it can be exercised
// in tests without a real Raft cluster (see lib/rsm/rsmtest).
type Substrate interface {
	// Context returns the substrate's current view of "now": the index of
	// the commit presently being applied. During compaction the adapter
	// passes a Context carrying the compaction boundary instead.
	Context() Context

	// Schedule arranges for fn to run once the substrate's own logical
	// clock has advanced delayMs past the current instant. It is the only
	// suspension primitive a handler may use (see spec §5) and must be
	// replayable: re-applying the same commit log must re-derive the same
	// firings, never wall-clock firings.
	Schedule(delayMs int64, fn func())
}

// CompactionFilter is consulted once per retained commit during compaction.
// It must be a pure function of current state and the compaction Context;
// returning true keeps the commit's bytes, false allows them to be dropped.
type CompactionFilter func(commit *Commit, compaction Context) bool
