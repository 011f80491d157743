package dragonboat

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/group"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// GroupFSM adapts a group.StateMachine onto dragonboat's
// sm.IConcurrentStateMachine the same way TTLMapFSM adapts ttlmap.StateMachine.
// Unlike the TTL map, every group operation - Listen included - mutates
// state (Listen records the calling session as a listener), so there is no
// read-only counterpart to route through Lookup; Lookup always fails here.
type GroupFSM struct {
	shardID   uint64
	replicaID uint64
	sub       *nodeSubstrate
	queue     *eventQueue
	machine   *group.StateMachine
}

// NewGroupFactory returns a dragonboat state machine factory for one group
// shard. expirationMs is the grace period a persistent member's departure
// is held before its leave event fires, passed straight through to
// group.New.
func NewGroupFactory(expirationMs int64) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		sub := &nodeSubstrate{}
		queue := newEventQueue()
		return &GroupFSM{
			shardID:   shardID,
			replicaID: replicaID,
			sub:       sub,
			queue:     queue,
			machine:   group.New(sub, queue, expirationMs),
		}
	}
}

// Drain returns and clears the events queued for sessionID since the last
// Drain, for rpc/server to deliver on a listening or submitting client's
// next round trip.
func (f *GroupFSM) Drain(sessionID uint64) []GroupEvent {
	return f.queue.Drain(sessionID)
}

func (f *GroupFSM) Update(entries []sm.Entry) ([]sm.Entry, error) {
	for idx, e := range entries {
		kind, body, err := UnwrapEntry(e.Cmd)
		if err != nil {
			entries[idx].Result = errResult(rsm.ErrSerialization, err.Error())
			continue
		}

		switch kind {
		case EntrySessionRegister, EntrySessionExpire, EntrySessionClose:
			var se SessionEntry
			if err := se.Deserialize(body); err != nil {
				entries[idx].Result = errResult(rsm.ErrSerialization, err.Error())
				continue
			}
			f.sub.index = e.Index
			switch kind {
			case EntrySessionRegister:
				f.machine.OnRegister(se.SessionID)
			case EntrySessionExpire:
				f.machine.OnExpire(se.SessionID)
				f.queue.Forget(se.SessionID)
			case EntrySessionClose:
				f.machine.OnClose(se.SessionID)
				f.queue.Forget(se.SessionID)
			}
			entries[idx].Result = sm.Result{Value: resultOK}

		case EntryCommand:
			var env rsm.Envelope
			if err := env.Deserialize(body); err != nil {
				entries[idx].Result = errResult(rsm.ErrSerialization, err.Error())
				continue
			}
			op := &wire.Op{}
			if err := op.Deserialize(env.Payload); err != nil {
				entries[idx].Result = errResult(rsm.ErrSerialization, err.Error())
				continue
			}
			f.sub.index = e.Index
			commit := rsm.NewCommit(e.Index, env.TimestampMs, env.SessionID, op)
			res, err := f.machine.Apply(commit)
			if err != nil {
				entries[idx].Result = errResult(rsm.ErrInternal, err.Error())
				continue
			}
			entries[idx].Result = sm.Result{Value: resultOK, Data: encodeGroupResult(op.Type, res)}

		default:
			entries[idx].Result = errResult(rsm.ErrUnsupportedOperation, fmt.Sprintf("unknown entry kind %d", kind))
		}
	}
	return entries, nil
}

// Lookup always fails: every group operation mutates state (even Listen
// records its caller as a listener), so none of them can answer from a
// stale snapshot the way ttlmap.StateMachine.StaleQuery does.
func (f *GroupFSM) Lookup(_ interface{}) (interface{}, error) {
	return nil, rsm.NewError(rsm.ErrUnsupportedOperation, "group: no operation can be answered without going through the log")
}

func (f *GroupFSM) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

func (f *GroupFSM) SaveSnapshot(_ interface{}, w io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return f.machine.Snapshot(w)
}

func (f *GroupFSM) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return f.machine.Restore(r)
}

func (f *GroupFSM) Close() error {
	return f.machine.Close()
}

func encodeGroupResult(opType wire.OpType, res any) []byte {
	switch opType {
	case wire.OpJoin:
		jr := res.(*wire.JoinResult)
		return encodeMemberInfo(jr.Member)
	case wire.OpListen:
		lr := res.(*wire.ListenResult)
		buf := make([]byte, 0, 4+len(lr.Members)*16)
		count := make([]byte, 4)
		binary.BigEndian.PutUint32(count, uint32(len(lr.Members)))
		buf = append(buf, count...)
		for _, m := range lr.Members {
			buf = append(buf, encodeMemberInfo(m)...)
		}
		return buf
	default:
		return nil
	}
}

func encodeMemberInfo(m wire.MemberInfo) []byte {
	buf := make([]byte, 4+len(m.MemberID)+8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(m.MemberID)))
	off := 4 + copy(buf[4:], m.MemberID)
	binary.BigEndian.PutUint64(buf[off:], m.Index)
	return buf
}
