package group

import (
	"testing"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
)

// recordingPublisher captures every event delivered to a session, for
// assertions in tests. Not meant for production use - see
// lib/rsm/rsmtest and lib/rsm/dragonboat for real delivery.
type recordingPublisher struct {
	joins     []wire.MemberInfo
	leaves    []string
	terms     []uint64
	elects    []string
	resigns   []string
	messages  []MemberMessage
	acks      []AckInfo
	fails     []AckInfo
}

func (p *recordingPublisher) Join(_ uint64, member wire.MemberInfo) { p.joins = append(p.joins, member) }
func (p *recordingPublisher) Leave(_ uint64, memberID string)           { p.leaves = append(p.leaves, memberID) }
func (p *recordingPublisher) Term(_ uint64, term uint64)                { p.terms = append(p.terms, term) }
func (p *recordingPublisher) Elect(_ uint64, memberID string)           { p.elects = append(p.elects, memberID) }
func (p *recordingPublisher) Resign(_ uint64, memberID string)          { p.resigns = append(p.resigns, memberID) }
func (p *recordingPublisher) Message(_ uint64, msg MemberMessage)       { p.messages = append(p.messages, msg) }
func (p *recordingPublisher) Ack(_ uint64, ack AckInfo)                 { p.acks = append(p.acks, ack) }
func (p *recordingPublisher) Fail(_ uint64, fail AckInfo)               { p.fails = append(p.fails, fail) }

// fakeSubstrate is a minimal rsm.Substrate for tests: Schedule queues its
// callback until runScheduled is called, since these tests drive the state
// machine directly rather than through a real commit log.
type fakeSubstrate struct {
	index     uint64
	scheduled []func()
}

func (s *fakeSubstrate) Context() rsm.Context { return rsm.Context{Index: s.index} }
func (s *fakeSubstrate) Schedule(_ int64, fn func()) {
	s.scheduled = append(s.scheduled, fn)
}

func (s *fakeSubstrate) runScheduled() {
	fns := s.scheduled
	s.scheduled = nil
	for _, fn := range fns {
		fn()
	}
}

func join(t *testing.T, sm *StateMachine, index uint64, sessionID uint64, memberID string, mode rsm.Mode) *wire.JoinResult {
	t.Helper()
	res, err := sm.Apply(rsm.NewCommit(index, 0, sessionID, &wire.Op{Type: wire.OpJoin, MemberID: memberID, Mode: mode}))
	if err != nil {
		t.Fatalf("join(%s) error = %v", memberID, err)
	}
	return res.(*wire.JoinResult)
}

// listen registers sessionID as a listener; membership and election events
// are only published to listener sessions.
func listen(t *testing.T, sm *StateMachine, index uint64, sessionID uint64) {
	t.Helper()
	if _, err := sm.Apply(rsm.NewCommit(index, 0, sessionID, &wire.Op{Type: wire.OpListen})); err != nil {
		t.Fatalf("listen(%d) error = %v", sessionID, err)
	}
}

func TestJoinElectsFirstLeader(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)

	listen(t, sm, 1, 1)
	join(t, sm, 2, 1, "m1", rsm.Persistent)

	if sm.leader == nil || sm.leader.id != "m1" {
		t.Fatalf("expected m1 to be elected leader, got %+v", sm.leader)
	}
	if len(pub.elects) != 1 || pub.elects[0] != "m1" {
		t.Fatalf("expected an elect(m1) event, got %+v", pub.elects)
	}
}

func TestListenReceivesActiveMembers(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)
	sm.OnRegister(2)

	join(t, sm, 1, 1, "m1", rsm.Persistent)

	res, err := sm.Apply(rsm.NewCommit(2, 0, 2, &wire.Op{Type: wire.OpListen}))
	if err != nil {
		t.Fatal(err)
	}
	listenRes := res.(*wire.ListenResult)
	if len(listenRes.Members) != 1 || listenRes.Members[0].MemberID != "m1" {
		t.Fatalf("Listen() = %+v, want [m1]", listenRes.Members)
	}
}

func TestEphemeralMemberCannotBeRecreated(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)

	join(t, sm, 1, 1, "m1", rsm.Ephemeral)

	_, err := sm.Apply(rsm.NewCommit(2, 0, 1, &wire.Op{Type: wire.OpJoin, MemberID: "m1", Mode: rsm.Ephemeral}))
	if err == nil {
		t.Fatal("expected error recreating an ephemeral member")
	}
}

func TestPersistentMemberRejoinsWithoutDuplication(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)
	sm.OnRegister(2)

	join(t, sm, 1, 1, "m1", rsm.Persistent)
	listen(t, sm, 2, 2)
	sm.OnClose(1) // session drops, member stays (persistent, expirationMs=0 -> leave published immediately)

	if len(pub.leaves) != 1 || pub.leaves[0] != "m1" {
		t.Fatalf("expected leave event on session close, got %+v", pub.leaves)
	}
	if _, ok := sm.members["m1"]; !ok {
		t.Fatalf("persistent member should remain registered after session close")
	}

	join(t, sm, 3, 2, "m1", rsm.Persistent)
	if len(sm.members) != 1 {
		t.Fatalf("rejoin should not duplicate the member, got %d members", len(sm.members))
	}
}

func TestPersistentMemberExpirationGracePeriod(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 5000)
	sm.OnRegister(1)
	sm.OnRegister(2)

	join(t, sm, 1, 1, "m1", rsm.Persistent)
	listen(t, sm, 2, 2)
	sm.OnClose(1)

	if len(pub.leaves) != 0 {
		t.Fatalf("leave should be deferred during the grace period, got %+v", pub.leaves)
	}

	sub.runScheduled()
	if len(pub.leaves) != 1 || pub.leaves[0] != "m1" {
		t.Fatalf("expected deferred leave to fire after grace period, got %+v", pub.leaves)
	}
}

func TestPersistentMemberRejoinCancelsGracePeriodLeave(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 5000)
	sm.OnRegister(1)
	sm.OnRegister(2)

	join(t, sm, 1, 1, "m1", rsm.Persistent)
	listen(t, sm, 2, 2)
	sm.OnClose(1)
	join(t, sm, 3, 3, "m1", rsm.Persistent) // rejoins on a new session before the grace period fires

	sub.runScheduled()
	if len(pub.leaves) != 0 {
		t.Fatalf("rejoin before grace period elapses should cancel the leave, got %+v", pub.leaves)
	}
}

func TestLeaveOfLeaderElectsNewLeader(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)
	sm.OnRegister(2)

	join(t, sm, 1, 1, "m1", rsm.Persistent)
	join(t, sm, 2, 2, "m2", rsm.Persistent)
	listen(t, sm, 3, 2)

	leaderID := sm.leader.id

	_, err := sm.Apply(rsm.NewCommit(4, 0, 1, &wire.Op{Type: wire.OpLeave, MemberID: leaderID}))
	if err != nil {
		t.Fatal(err)
	}

	if sm.leader == nil {
		t.Fatal("expected a new leader to be elected")
	}
	if sm.leader.id == leaderID {
		t.Fatal("the departed leader should not still be leader")
	}
	if len(pub.resigns) != 1 {
		t.Fatalf("expected one resign event, got %+v", pub.resigns)
	}
}

func TestSubmitDirectThenAckCompletesMessage(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)
	sm.OnRegister(2)

	join(t, sm, 1, 1, "m1", rsm.Persistent)

	_, err := sm.Apply(rsm.NewCommit(2, 0, 2, &wire.Op{
		Type: wire.OpSubmit, MemberID: "m1", MessageID: 100, MessageType: "ping", MessageBody: []byte("hi"),
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.messages) != 1 || pub.messages[0].MemberID != "m1" {
		t.Fatalf("expected message delivered to m1, got %+v", pub.messages)
	}

	// m1 acks with the index it was actually delivered in the "message"
	// event (the Submit's commit index, 2), not the submitter's MessageID.
	_, err = sm.Apply(rsm.NewCommit(3, 0, 1, &wire.Op{
		Type: wire.OpAck, MemberID: "m1", MessageID: 2, Succeeded: true,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.acks) != 1 || pub.acks[0].MessageID != 100 {
		t.Fatalf("expected ack delivered to submitter, got %+v", pub.acks)
	}
}

func TestSubmitToUnknownMemberFailsImmediately(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)

	_, err := sm.Apply(rsm.NewCommit(1, 0, 1, &wire.Op{
		Type: wire.OpSubmit, MemberID: "ghost", MessageID: 1,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.fails) != 1 {
		t.Fatalf("expected immediate fail for unknown member, got %+v", pub.fails)
	}
}

func TestSubmitDirectThenFailReleasesProducer(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)
	sm.OnRegister(2)

	join(t, sm, 1, 1, "m1", rsm.Persistent)

	_, err := sm.Apply(rsm.NewCommit(2, 0, 2, &wire.Op{
		Type: wire.OpSubmit, MemberID: "m1", MessageID: 100, MessageType: "ping",
	}))
	if err != nil {
		t.Fatal(err)
	}

	// m1 fails using the index it was delivered (2), not the submitter's
	// MessageID (100).
	_, err = sm.Apply(rsm.NewCommit(3, 0, 1, &wire.Op{
		Type: wire.OpAck, MemberID: "m1", MessageID: 2, Succeeded: false,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.fails) != 1 || pub.fails[0].MessageID != 100 {
		t.Fatalf("expected fail delivered to submitter, got %+v", pub.fails)
	}
	if sm.members["m1"].current != nil {
		t.Fatalf("m1's in-flight message should be cleared after fail")
	}
}

func TestPersistentLeaderSessionCloseResignsImmediately(t *testing.T) {
	sub := &fakeSubstrate{index: 5}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)
	sm.OnRegister(2)

	listen(t, sm, 1, 2)
	join(t, sm, 2, 1, "m1", rsm.Persistent)
	join(t, sm, 3, 2, "m2", rsm.Ephemeral)

	if sm.leader == nil || sm.leader.id != "m1" {
		t.Fatalf("expected m1 to be elected leader, got %+v", sm.leader)
	}

	sm.OnClose(1) // m1's session drops with expirationMs=0

	if len(pub.resigns) != 1 || pub.resigns[0] != "m1" {
		t.Fatalf("expected resign(m1) on leader session close, got %+v", pub.resigns)
	}
	if len(pub.terms) != 2 {
		t.Fatalf("expected a second term bump on resign, got %+v", pub.terms)
	}
	if len(pub.elects) != 2 {
		t.Fatalf("expected a second elect once m1 resigns, got %+v", pub.elects)
	}
	if sm.leader == nil || sm.leader.id == "m1" {
		t.Fatalf("expected a new leader other than m1, got %+v", sm.leader)
	}
}

func TestSubmitQueuesBehindInFlightMessage(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)
	sm.OnRegister(2)

	join(t, sm, 1, 1, "m1", rsm.Persistent)

	sm.Apply(rsm.NewCommit(2, 0, 2, &wire.Op{Type: wire.OpSubmit, MemberID: "m1", MessageID: 1}))
	sm.Apply(rsm.NewCommit(3, 0, 2, &wire.Op{Type: wire.OpSubmit, MemberID: "m1", MessageID: 2}))

	if len(pub.messages) != 1 {
		t.Fatalf("second message should queue behind the first, got %d delivered", len(pub.messages))
	}

	// the first message was delivered with Index 2 (its Submit's commit
	// index); that's the identifier m1 acks with, not MessageID 1.
	sm.Apply(rsm.NewCommit(4, 0, 1, &wire.Op{Type: wire.OpAck, MemberID: "m1", MessageID: 2, Succeeded: true}))

	if len(pub.messages) != 2 {
		t.Fatalf("queued message should be delivered once the first acks, got %d delivered", len(pub.messages))
	}
}

func TestBroadcastCompletesOnlyAfterAllMembersAck(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)
	sm.OnRegister(2)
	sm.OnRegister(3)

	join(t, sm, 1, 1, "m1", rsm.Persistent)
	join(t, sm, 2, 2, "m2", rsm.Persistent)

	_, err := sm.Apply(rsm.NewCommit(3, 0, 3, &wire.Op{
		Type: wire.OpSubmit, MessageID: 1, Dispatch: wire.DispatchBroadcast,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("broadcast should deliver to both members, got %d", len(pub.messages))
	}

	// the broadcast was committed at index 3; every member acks with that
	// index, not with the submitter's MessageID.
	sm.Apply(rsm.NewCommit(4, 0, 1, &wire.Op{Type: wire.OpAck, MemberID: "m1", MessageID: 3, Succeeded: true}))
	if len(pub.acks) != 0 {
		t.Fatalf("broadcast should not complete until every member acks, got %+v", pub.acks)
	}

	sm.Apply(rsm.NewCommit(5, 0, 2, &wire.Op{Type: wire.OpAck, MemberID: "m2", MessageID: 3, Succeeded: true}))
	if len(pub.acks) != 1 {
		t.Fatalf("broadcast should complete once every member has acked, got %+v", pub.acks)
	}
}

func TestFilterDropsCommitsOnceCompactionPassesIndex(t *testing.T) {
	sub := &fakeSubstrate{}
	pub := &recordingPublisher{}
	sm := New(sub, pub, 0)
	sm.OnRegister(1)

	commit := rsm.NewCommit(5, 0, 1, &wire.Op{Type: wire.OpJoin, MemberID: "m1"})
	sm.Apply(commit)

	if !sm.Filter(commit, rsm.Context{Index: 4}) {
		t.Fatal("commit should be retained before compaction passes its index")
	}
	if sm.Filter(commit, rsm.Context{Index: 5}) {
		t.Fatal("commit should be dropped once compaction reaches its index")
	}
}
