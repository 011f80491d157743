package dragonboat

import (
	"time"

	"github.com/finnhorsman/ensemble/lib/rsm"
)

// nodeSubstrate is the rsm.Substrate a GroupFSM gives its group.StateMachine.
// Context().Index tracks the index of whichever entry Update is currently
// applying; GroupFSM updates it before every Apply call.
//
// Schedule uses a plain wall-clock timer rather than anything replayed off
// the log. That is safe here only because every callback GroupState/group
// ever schedules is read-only with respect to replicated state - it decides
// whether to publish a deferred leave event, never mutates sm.members - so
// replicas firing it a few milliseconds apart from each other produces the
// same eventual outcome, just with slightly different event timing. A
// callback that mutated state would need to go back through the log (e.g.
// as a new proposed command) instead, the way dragonboat's own session
// expiration does.
type nodeSubstrate struct {
	index uint64
}

func (s *nodeSubstrate) Context() rsm.Context { return rsm.Context{Index: s.index} }

func (s *nodeSubstrate) Schedule(delayMs int64, fn func()) {
	time.AfterFunc(time.Duration(delayMs)*time.Millisecond, fn)
}
