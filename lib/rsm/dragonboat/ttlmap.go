package dragonboat

import (
	"fmt"
	"io"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/ttlmap"
	"github.com/finnhorsman/ensemble/lib/rsm/ttlmap/wire"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// TTLMapFSM adapts a ttlmap.StateMachine onto dragonboat's
// sm.IConcurrentStateMachine.
type TTLMapFSM struct {
	shardID   uint64
	replicaID uint64
	machine   *ttlmap.StateMachine
}

// NewTTLMapFactory returns a dragonboat state machine factory for one TTL
// map shard.
func NewTTLMapFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &TTLMapFSM{
			shardID:   shardID,
			replicaID: replicaID,
			machine:   ttlmap.New(fmt.Sprintf("ttlmap_%d", shardID)),
		}
	}
}

// resultOK/resultErr tag sm.Result.Value: dragonboat gives every Update
// entry a uint64 "Value" alongside its Data, so it carries a one-word
// success/failure signal here, with the rsm.ErrorKind and message, if any,
// packed into Data.
const (
	resultOK uint64 = iota
	resultErr
)

func errResult(kind rsm.ErrorKind, msg string) sm.Result {
	return sm.Result{Value: resultErr, Data: append([]byte{byte(kind)}, []byte(msg)...)}
}

// Update applies each entry in order: reserved session entries update the
// machine's session registry, ordinary entries are decoded into a
// rsm.Commit and run through Apply.
func (f *TTLMapFSM) Update(entries []sm.Entry) ([]sm.Entry, error) {
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
			switch kind {
			case EntrySessionRegister:
				f.machine.OnRegister(se.SessionID)
			case EntrySessionExpire:
				f.machine.OnExpire(se.SessionID)
			case EntrySessionClose:
				f.machine.OnClose(se.SessionID)
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
			commit := rsm.NewCommit(e.Index, env.TimestampMs, env.SessionID, op)
			res, err := f.machine.Apply(commit)
			if err != nil {
				entries[idx].Result = errResult(rsm.ErrInternal, err.Error())
				continue
			}
			entries[idx].Result = sm.Result{Value: resultOK, Data: encodeResult(res)}

		default:
			entries[idx].Result = errResult(rsm.ErrUnsupportedOperation, fmt.Sprintf("unknown entry kind %d", kind))
		}
	}
	return entries, nil
}

// Lookup answers a read-only op against the last-applied state through
// StaleQuery, without going through the log. Every dttlmap query ends here:
// a SyncRead (Bounded and stronger) after its ReadIndex round, a StaleRead
// (Causal and weaker) directly.
func (f *TTLMapFSM) Lookup(query interface{}) (interface{}, error) {
	op, ok := query.(*wire.Op)
	if !ok {
		return nil, rsm.NewError(rsm.ErrInvalidArgument, fmt.Sprintf("ttlmap: unexpected lookup type %T", query))
	}
	return f.machine.StaleQuery(op)
}

// PrepareSnapshot captures nothing and returns nil. SaveSnapshot calls
// Snapshot with asOfMs 0, so no TTL counts as elapsed when a snapshot is
// written: entries whose TTL has passed are still saved and are evicted
// lazily after a restore. The logical clock is not written to the snapshot.
func (f *TTLMapFSM) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

func (f *TTLMapFSM) SaveSnapshot(_ interface{}, w io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return f.machine.Snapshot(w, 0)
}

func (f *TTLMapFSM) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return f.machine.Restore(r)
}

func (f *TTLMapFSM) Close() error {
	return f.machine.Close()
}

func encodeResult(res *wire.Result) []byte {
	buf := make([]byte, 1+8+4+len(res.Value))
	if res.Found {
		buf[0] = 1
	}
	off := 1
	for i := 0; i < 8; i++ {
		buf[off+i] = byte(res.Size >> (56 - 8*i))
	}
	off += 8
	n := len(res.Value)
	for i := 0; i < 4; i++ {
		buf[off+i] = byte(n >> (24 - 8*i))
	}
	off += 4
	copy(buf[off:], res.Value)
	return buf
}
