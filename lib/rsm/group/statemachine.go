// Package group implements the group membership and messaging replicated
// state machine: member join/leave with deterministic leader election,
// listener subscriptions, and at-most-one-in-flight message delivery per
// member.
//
// It is grounded directly on io.atomix.group.wire.GroupState (see
// _examples/original_source/groups), ported method for method where the
// substrate boundary allows. The one deliberate deviation is the PRNG: the
// original seeds java.util.Random with fixed and term-derived longs and
// relies on that JDK algorithm's exact bit pattern; this port seeds Go's
// math/rand the same way (a fixed seed for dispatch, Random(term) for
// election) for determinism across this system's own replicas, without
// attempting to reproduce the JDK's specific output sequence - nothing in
// the example corpus supplies a replicated-state-machine-safe PRNG, and
// cross-language bit-reproducibility was never a requirement of this
// system, only reproducibility across its own replicas.
package group

import (
	"fmt"
	"math/rand"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
)

// dispatchSeed mirrors GroupState's `new Random(141650939L)`: a single
// fixed seed shared by every replica, advanced once per Random-dispatch
// Submit or RANDOM+RETRY requeue, in commit order.
const dispatchSeed = 141650939

// StateMachine holds one group's membership, listeners and message
// delivery state.
type StateMachine struct {
	sub          rsm.Substrate
	publisher    EventPublisher
	sessions     *rsm.SessionRegistry
	expirationMs int64

	listeners map[uint64]struct{}
	members   map[string]*member
	memberSeq []*member // insertion order, for Random dispatch target selection
	candidates []*member
	leader    *member
	term      uint64

	rng *rand.Rand
}

// New creates an empty group state machine. expirationMs is the grace
// period a persistent member's leave event is delayed by after its session
// drops, giving it a chance to rejoin before listeners are told it left; 0
// means notify immediately, matching GroupState's `expiration` property.
func New(sub rsm.Substrate, publisher EventPublisher, expirationMs int64) *StateMachine {
	return &StateMachine{
		sub:          sub,
		publisher:    publisher,
		sessions:     rsm.NewSessionRegistry(),
		expirationMs: expirationMs,
		listeners:    make(map[uint64]struct{}),
		members:      make(map[string]*member),
		rng:          rand.New(rand.NewSource(dispatchSeed)),
	}
}

func (sm *StateMachine) OnRegister(sessionID uint64) { sm.sessions.OnRegister(sessionID) }
func (sm *StateMachine) OnExpire(sessionID uint64)   { sm.closeSession(sessionID) }
func (sm *StateMachine) OnClose(sessionID uint64)    { sm.closeSession(sessionID) }

// Apply executes a single commit - a Join, Leave, Listen, Submit or Ack -
// against group state, mirroring GroupState's @Apply-annotated handlers
// with a single dispatch point the way ttlmap.StateMachine.Apply does.
func (sm *StateMachine) Apply(commit *rsm.Commit) (any, error) {
	op, ok := commit.Operation.(*wire.Op)
	if !ok {
		return nil, rsm.NewError(rsm.ErrInvalidArgument, fmt.Sprintf("group: unexpected operation type %T", commit.Operation))
	}

	switch op.Type {
	case wire.OpJoin:
		return sm.join(commit, op)
	case wire.OpLeave:
		return nil, sm.leave(commit, op)
	case wire.OpListen:
		return sm.listen(commit)
	case wire.OpSubmit:
		return nil, sm.submit(commit, op)
	case wire.OpAck:
		return nil, sm.ack(op)
	default:
		return nil, rsm.NewError(rsm.ErrUnsupportedOperation, fmt.Sprintf("group: unknown op %s", op.Type))
	}
}

// Filter is the compaction predicate for every group command: once
// compaction has advanced past a commit's index, its effect is already
// reflected in the machine's own membership/message state (and any
// snapshot taken of it), so the commit's bytes can be dropped - the same
// MAJOR-compaction rule DistributedMap.StateMachine.filterRemove applies.
func (sm *StateMachine) Filter(commit *rsm.Commit, compaction rsm.Context) bool {
	return commit.Index > compaction.Index
}

func (sm *StateMachine) join(commit *rsm.Commit, op *wire.Op) (*wire.JoinResult, error) {
	m, exists := sm.members[op.MemberID]

	if !exists {
		m = &member{index: commit.Index, id: op.MemberID, persistent: op.Mode == rsm.Persistent, sessionID: commit.SessionID, hasSession: true}
		sm.members[op.MemberID] = m
		sm.memberSeq = append(sm.memberSeq, m)
		sm.candidates = append(sm.candidates, m)

		sm.publishJoin(m)

		if sm.term == 0 {
			sm.incrementTerm(commit.Index)
		}
		if sm.leader == nil {
			sm.electLeader()
		}

		return &wire.JoinResult{Member: m.info()}, nil
	}

	if !m.persistent {
		return nil, rsm.NewError(rsm.ErrInvalidArgument, fmt.Sprintf("group: cannot recreate ephemeral member %q", op.MemberID))
	}

	sm.setMemberSession(m, commit.SessionID, true)
	sm.publishJoin(m)

	if sm.leader == m {
		sm.resignLeader(true)
		sm.incrementTerm(commit.Index)
		sm.electLeader()
	}

	return &wire.JoinResult{Member: m.info()}, nil
}

func (sm *StateMachine) leave(commit *rsm.Commit, op *wire.Op) error {
	m, ok := sm.members[op.MemberID]
	if !ok {
		return nil
	}

	delete(sm.members, op.MemberID)
	sm.memberSeq = removeMember(sm.memberSeq, m)
	sm.candidates = removeMember(sm.candidates, m)

	if sm.leader == m {
		sm.resignLeader(false)
		sm.incrementTerm(commit.Index)
		sm.electLeader()
	}

	sm.closeMember(m)
	sm.publishLeave(m)
	return nil
}

func (sm *StateMachine) listen(commit *rsm.Commit) (*wire.ListenResult, error) {
	sm.listeners[commit.SessionID] = struct{}{}

	var infos []wire.MemberInfo
	for _, m := range sm.members {
		if m.hasSession && sm.sessions.IsActive(m.sessionID) {
			infos = append(infos, m.info())
		}
	}
	return &wire.ListenResult{Members: infos}, nil
}

func (sm *StateMachine) submit(commit *rsm.Commit, op *wire.Op) error {
	msg := &message{
		id:        op.MessageID,
		index:     commit.Index,
		msgType:   op.MessageType,
		body:      op.MessageBody,
		memberID:  op.MemberID,
		dispatch:  op.Dispatch,
		delivery:  op.Delivery,
		sessionID: commit.SessionID,
	}

	switch {
	case msg.direct():
		m, ok := sm.members[op.MemberID]
		if !ok {
			sm.publisher.Fail(msg.sessionID, msg.ackInfo())
			return nil
		}
		sm.submitToMember(m, msg)

	case op.Dispatch == wire.DispatchRandom:
		if len(sm.memberSeq) == 0 {
			sm.publisher.Fail(msg.sessionID, msg.ackInfo())
			return nil
		}
		target := sm.memberSeq[sm.rng.Intn(len(sm.memberSeq))]
		sm.submitToMember(target, msg)

	default: // Broadcast
		for _, m := range sm.members {
			sm.submitToMember(m, msg)
		}
	}

	return nil
}

func (sm *StateMachine) ack(op *wire.Op) error {
	m, ok := sm.members[op.MemberID]
	if !ok {
		return nil
	}
	if op.Succeeded {
		sm.ackMember(m, op.MessageID)
	} else {
		sm.failMember(m, op.MessageID)
	}
	return nil
}

// --- member/message delivery, grounded on GroupState's Member/Message inner classes ---

func (sm *StateMachine) submitToMember(m *member, msg *message) {
	if m.current != nil {
		m.pending = append(m.pending, msg)
		return
	}
	m.current = msg
	if m.hasSession && sm.sessions.IsActive(m.sessionID) {
		sm.publisher.Message(m.sessionID, MemberMessage{Index: msg.index, MemberID: m.id, Type: msg.msgType, Body: msg.body})
	}
}

// messageComplete reports whether no member still has msg (or an earlier
// message) in flight - the condition under which a non-direct Submit's
// submitter finally gets its ack.
func (sm *StateMachine) messageComplete(msg *message) bool {
	if msg.memberID == "" {
		for _, m := range sm.members {
			if m.current != nil && m.current.index <= msg.index {
				return false
			}
		}
		return true
	}
	m, ok := sm.members[msg.memberID]
	return !ok || m.current == nil || m.current.index > msg.index
}

func (sm *StateMachine) ackMember(m *member, msgID uint64) {
	if m.current == nil || m.current.index != msgID {
		return
	}
	msg := m.current
	m.current = nil
	if sm.messageComplete(msg) {
		sm.publisher.Ack(msg.sessionID, msg.ackInfo())
	}
	sm.nextMessage(m)
}

func (sm *StateMachine) failMember(m *member, msgID uint64) {
	if m.current == nil || m.current.index != msgID {
		return
	}
	msg := m.current
	m.current = nil
	if msg.direct() {
		sm.publisher.Fail(msg.sessionID, msg.ackInfo())
	} else if sm.messageComplete(msg) {
		sm.publisher.Ack(msg.sessionID, msg.ackInfo())
	}
	sm.nextMessage(m)
}

func (sm *StateMachine) nextMessage(m *member) {
	if len(m.pending) == 0 {
		return
	}
	m.current, m.pending = m.pending[0], m.pending[1:]
	if m.hasSession && sm.sessions.IsActive(m.sessionID) {
		sm.publisher.Message(m.sessionID, MemberMessage{Index: m.current.index, MemberID: m.id, Type: m.current.msgType, Body: m.current.body})
	}
}

// closeMember flushes a departing member's in-flight and queued messages:
// a non-direct RANDOM+RETRY message is requeued to another member if one
// remains, everything else fails back to its submitter.
func (sm *StateMachine) closeMember(m *member) {
	all := m.pending
	if m.current != nil {
		all = append([]*message{m.current}, all...)
	}
	m.current = nil
	m.pending = nil

	for _, msg := range all {
		if !msg.direct() && msg.dispatch == wire.DispatchRandom && msg.delivery == wire.DeliveryRetry && len(sm.memberSeq) > 0 {
			target := sm.memberSeq[sm.rng.Intn(len(sm.memberSeq))]
			sm.submitToMember(target, msg)
		} else {
			sm.publisher.Fail(msg.sessionID, msg.ackInfo())
		}
	}
}

func (sm *StateMachine) setMemberSession(m *member, sessionID uint64, hasSession bool) {
	m.sessionID = sessionID
	m.hasSession = hasSession
	if m.current != nil && hasSession && sm.sessions.IsActive(sessionID) {
		sm.publisher.Message(sessionID, MemberMessage{Index: m.current.index, MemberID: m.id, Type: m.current.msgType, Body: m.current.body})
	}
}

// --- leadership, grounded on GroupState's incrementTerm/resignLeader/electLeader ---

func (sm *StateMachine) incrementTerm(index uint64) {
	sm.term = index
	sm.publishTerm(sm.term)
}

func (sm *StateMachine) resignLeader(toCandidate bool) {
	if sm.leader == nil {
		return
	}
	sm.publishResign(sm.leader)
	if toCandidate {
		sm.candidates = append(sm.candidates, sm.leader)
	}
	sm.leader = nil
}

// electLeader picks a random active candidate, seeded by the current term
// so that every replica - applying the same Join/Leave sequence in the same
// order - makes the same pick without any cross-replica coordination.
func (sm *StateMachine) electLeader() {
	if len(sm.candidates) == 0 {
		return
	}
	rng := rand.New(rand.NewSource(int64(sm.term)))
	for len(sm.candidates) > 0 {
		idx := rng.Intn(len(sm.candidates))
		m := sm.candidates[idx]
		sm.candidates = append(sm.candidates[:idx], sm.candidates[idx+1:]...)
		if !m.hasSession || !sm.sessions.IsActive(m.sessionID) {
			continue
		}
		sm.leader = m
		sm.publishElect(m)
		return
	}
}

// --- session close, grounded on GroupState.close(ServerSession) ---

func (sm *StateMachine) closeSession(sessionID uint64) {
	sm.sessions.OnClose(sessionID)
	delete(sm.listeners, sessionID)

	var left []*member
	var sessionLost []*member
	for _, m := range sm.members {
		if !m.hasSession || m.sessionID != sessionID {
			continue
		}
		if !m.persistent {
			delete(sm.members, m.id)
			sm.memberSeq = removeMember(sm.memberSeq, m)
			sm.candidates = removeMember(sm.candidates, m)
			left = append(left, m)
			sessionLost = append(sessionLost, m)
			continue
		}

		m.hasSession = false
		sm.candidates = removeMember(sm.candidates, m)
		sessionLost = append(sessionLost, m)
		if sm.expirationMs == 0 {
			sm.publishLeave(m)
		} else {
			pending := m
			sm.sub.Schedule(sm.expirationMs, func() {
				if !pending.hasSession {
					sm.publishLeave(pending)
				}
			})
		}
	}

	// A persistent member's session closing still removes it from
	// sm.candidates above, so a leader that loses its session can no
	// longer be re-elected - it must resign immediately rather than wait
	// for its delayed leave to publish (spec scenario S4).
	if sm.leader != nil {
		for _, m := range sessionLost {
			if m == sm.leader {
				sm.resignLeader(false)
				sm.incrementTerm(sm.sub.Context().Index)
				sm.electLeader()
				break
			}
		}
	}

	for _, m := range left {
		sm.closeMember(m)
		sm.publishLeave(m)
	}
}

// --- listener fan-out, grounded on GroupState's private GroupSession class ---

func (sm *StateMachine) publishJoin(m *member) {
	for sid := range sm.listeners {
		if sm.sessions.IsActive(sid) {
			sm.publisher.Join(sid, m.info())
		}
	}
}

func (sm *StateMachine) publishLeave(m *member) {
	for sid := range sm.listeners {
		if sm.sessions.IsActive(sid) {
			sm.publisher.Leave(sid, m.id)
		}
	}
}

func (sm *StateMachine) publishTerm(term uint64) {
	for sid := range sm.listeners {
		if sm.sessions.IsActive(sid) {
			sm.publisher.Term(sid, term)
		}
	}
}

func (sm *StateMachine) publishElect(m *member) {
	for sid := range sm.listeners {
		if sm.sessions.IsActive(sid) {
			sm.publisher.Elect(sid, m.id)
		}
	}
}

func (sm *StateMachine) publishResign(m *member) {
	for sid := range sm.listeners {
		if sm.sessions.IsActive(sid) {
			sm.publisher.Resign(sid, m.id)
		}
	}
}

// Close releases every member, for use when the shard is torn down rather
// than compacted.
func (sm *StateMachine) Close() error {
	for _, m := range sm.members {
		sm.closeMember(m)
	}
	sm.members = make(map[string]*member)
	sm.memberSeq = nil
	sm.candidates = nil
	sm.leader = nil
	return nil
}
