package dragonboat

import (
	"bytes"
	"testing"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func groupEntryFor(index uint64, sessionID uint64, op *wire.Op) sm.Entry {
	env := rsm.Envelope{SessionID: sessionID, Payload: op.Serialize()}
	return sm.Entry{Index: index, Cmd: WrapCommand(env.Serialize())}
}

func TestGroupFSMJoinQueuesEventForListener(t *testing.T) {
	factory := NewGroupFactory(0)
	fsm := factory(1, 1).(*GroupFSM)
	defer fsm.Close()

	for _, sid := range []uint64{1, 2} {
		if _, err := fsm.Update([]sm.Entry{{Index: sid, Cmd: WrapSession(EntrySessionRegister, sid)}}); err != nil {
			t.Fatal(err)
		}
	}

	listenOp := &wire.Op{Type: wire.OpListen}
	entries, err := fsm.Update([]sm.Entry{groupEntryFor(3, 2, listenOp)})
	if err != nil || entries[0].Result.Value != resultOK {
		t.Fatalf("listen failed: err=%v result=%+v", err, entries[0].Result)
	}

	joinOp := &wire.Op{Type: wire.OpJoin, MemberID: "m1", Mode: rsm.Persistent}
	entries, err = fsm.Update([]sm.Entry{groupEntryFor(4, 1, joinOp)})
	if err != nil || entries[0].Result.Value != resultOK {
		t.Fatalf("join failed: err=%v result=%+v", err, entries[0].Result)
	}

	// The first join also starts term 4 and elects m1, so the listener gets
	// join, term and elect, in that order.
	events := fsm.Drain(2)
	if len(events) != 3 || events[0].Kind != EventJoin || events[0].Member.MemberID != "m1" ||
		events[1].Kind != EventTerm || events[1].Term != 4 ||
		events[2].Kind != EventElect || events[2].MemberID != "m1" {
		t.Fatalf("expected join, term and elect events for the listening session, got %+v", events)
	}
	if drained := fsm.Drain(2); len(drained) != 0 {
		t.Fatalf("events should be cleared after Drain, got %+v", drained)
	}
}

func TestGroupFSMLookupUnsupported(t *testing.T) {
	factory := NewGroupFactory(0)
	fsm := factory(1, 1).(*GroupFSM)
	defer fsm.Close()

	if _, err := fsm.Lookup(&wire.Op{Type: wire.OpListen}); err == nil {
		t.Fatal("expected Lookup to reject every group operation")
	}
}

func TestGroupFSMSnapshotRoundTrip(t *testing.T) {
	factory := NewGroupFactory(0)
	fsm := factory(1, 1).(*GroupFSM)
	defer fsm.Close()

	if _, err := fsm.Update([]sm.Entry{{Index: 1, Cmd: WrapSession(EntrySessionRegister, 1)}}); err != nil {
		t.Fatal(err)
	}
	joinOp := &wire.Op{Type: wire.OpJoin, MemberID: "m1", Mode: rsm.Persistent}
	if _, err := fsm.Update([]sm.Entry{groupEntryFor(2, 1, joinOp)}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatal(err)
	}

	restored := factory(1, 2).(*GroupFSM)
	defer restored.Close()
	if err := restored.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := restored.Update([]sm.Entry{{Index: 1, Cmd: WrapSession(EntrySessionRegister, 5)}}); err != nil {
		t.Fatal(err)
	}
	restored.machine.OnRegister(1) // m1's original session, so it counts as active for Listen
	entries, err := restored.Update([]sm.Entry{groupEntryFor(2, 5, &wire.Op{Type: wire.OpListen})})
	if err != nil || entries[0].Result.Value != resultOK {
		t.Fatalf("listen after restore failed: err=%v result=%+v", err, entries[0].Result)
	}
}
