package dragonboat

import (
	"sync"

	"github.com/finnhorsman/ensemble/lib/rsm/group"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
)

// GroupEventKind tags a queued GroupEvent so rpc/server can decode it back
// into whatever wire shape it sends a listening client.
type GroupEventKind uint8

const (
	EventJoin GroupEventKind = iota
	EventLeave
	EventTerm
	EventElect
	EventResign
	EventMessage
	EventAck
	EventFail
)

// GroupEvent is one notification queued for a listening or submitting
// session. Only the fields relevant to Kind are populated.
type GroupEvent struct {
	Kind     GroupEventKind
	Member   wire.MemberInfo
	MemberID string
	Term     uint64
	Msg      group.MemberMessage
	Ack      group.AckInfo
}

// eventQueue implements group.EventPublisher by appending to a per-session
// slice instead of pushing synchronously - dragonboat's Update callers
// (including the Schedule timers nodeSubstrate starts) have nothing to push
// into, and a session's own client connection lives in rpc/server, not
// here. rpc/server drains a session's queue with Drain on every round trip.
type eventQueue struct {
	mu        sync.Mutex
	bySession map[uint64][]GroupEvent
}

func newEventQueue() *eventQueue {
	return &eventQueue{bySession: make(map[uint64][]GroupEvent)}
}

func (q *eventQueue) push(sessionID uint64, ev GroupEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bySession[sessionID] = append(q.bySession[sessionID], ev)
}

// Drain returns and clears every event queued for sessionID since the last
// Drain call.
func (q *eventQueue) Drain(sessionID uint64) []GroupEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	evs := q.bySession[sessionID]
	delete(q.bySession, sessionID)
	return evs
}

// Forget discards a session's queued events without returning them, for use
// when a session closes with nothing left to deliver them to.
func (q *eventQueue) Forget(sessionID uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.bySession, sessionID)
}

func (q *eventQueue) Join(sessionID uint64, member wire.MemberInfo) {
	q.push(sessionID, GroupEvent{Kind: EventJoin, Member: member})
}

func (q *eventQueue) Leave(sessionID uint64, memberID string) {
	q.push(sessionID, GroupEvent{Kind: EventLeave, MemberID: memberID})
}

func (q *eventQueue) Term(sessionID uint64, term uint64) {
	q.push(sessionID, GroupEvent{Kind: EventTerm, Term: term})
}

func (q *eventQueue) Elect(sessionID uint64, memberID string) {
	q.push(sessionID, GroupEvent{Kind: EventElect, MemberID: memberID})
}

func (q *eventQueue) Resign(sessionID uint64, memberID string) {
	q.push(sessionID, GroupEvent{Kind: EventResign, MemberID: memberID})
}

func (q *eventQueue) Message(sessionID uint64, msg group.MemberMessage) {
	q.push(sessionID, GroupEvent{Kind: EventMessage, Msg: msg})
}

func (q *eventQueue) Ack(sessionID uint64, ack group.AckInfo) {
	q.push(sessionID, GroupEvent{Kind: EventAck, Ack: ack})
}

func (q *eventQueue) Fail(sessionID uint64, fail group.AckInfo) {
	q.push(sessionID, GroupEvent{Kind: EventFail, Ack: fail})
}
