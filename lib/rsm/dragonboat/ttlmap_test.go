package dragonboat

import (
	"bytes"
	"testing"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/ttlmap/wire"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func entryFor(index uint64, sessionID uint64, op *wire.Op) sm.Entry {
	env := rsm.Envelope{SessionID: sessionID, Payload: op.Serialize()}
	return sm.Entry{Index: index, Cmd: WrapCommand(env.Serialize())}
}

func TestTTLMapFSMUpdatePutThenLookupGet(t *testing.T) {
	factory := NewTTLMapFactory()
	fsm := factory(1, 1).(*TTLMapFSM)
	defer fsm.Close()

	sessionEntry := sm.Entry{Index: 1, Cmd: WrapSession(EntrySessionRegister, 1)}
	entries, err := fsm.Update([]sm.Entry{sessionEntry})
	if err != nil || entries[0].Result.Value != resultOK {
		t.Fatalf("session register failed: err=%v result=%+v", err, entries[0].Result)
	}

	putOp := &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v1")}
	entries, err = fsm.Update([]sm.Entry{entryFor(2, 1, putOp)})
	if err != nil || entries[0].Result.Value != resultOK {
		t.Fatalf("put failed: err=%v result=%+v", err, entries[0].Result)
	}

	res, err := fsm.Lookup(&wire.Op{Type: wire.OpGet, Key: "k"})
	if err != nil {
		t.Fatal(err)
	}
	got := res.(*wire.Result)
	if !got.Found || !bytes.Equal(got.Value, []byte("v1")) {
		t.Fatalf("Lookup(Get) = %+v, want Found with value v1", got)
	}
}

func TestTTLMapFSMUpdateUnknownEntryKind(t *testing.T) {
	factory := NewTTLMapFactory()
	fsm := factory(1, 1).(*TTLMapFSM)
	defer fsm.Close()

	entries, err := fsm.Update([]sm.Entry{{Index: 1, Cmd: []byte{99}}})
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Result.Value != resultErr {
		t.Fatalf("expected an error result for an unknown entry kind, got %+v", entries[0].Result)
	}
}

func TestTTLMapFSMSnapshotRoundTrip(t *testing.T) {
	factory := NewTTLMapFactory()
	fsm := factory(1, 1).(*TTLMapFSM)
	defer fsm.Close()

	putOp := &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v1")}
	if _, err := fsm.Update([]sm.Entry{entryFor(1, 1, putOp)}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatal(err)
	}

	restored := factory(1, 2).(*TTLMapFSM)
	defer restored.Close()
	if err := restored.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatal(err)
	}

	res, err := restored.Lookup(&wire.Op{Type: wire.OpGet, Key: "k"})
	if err != nil {
		t.Fatal(err)
	}
	got := res.(*wire.Result)
	if !got.Found || !bytes.Equal(got.Value, []byte("v1")) {
		t.Fatalf("Lookup(Get) after restore = %+v, want Found with value v1", got)
	}
}
