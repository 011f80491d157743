// Package ttlmap implements the TTL map replicated state machine: a
// key/value store where every entry carries an optional time-to-live and a
// Persistent/Ephemeral mode tying its lifetime to a client session.
//
// The machine is grounded directly on
// net.kuujo.copycat.collections.DistributedMap.StateMachine (see
// _examples/original_source/collections) and ported line-for-line where the
// substrate boundary allows: the same isActive/updateTime shape, the same
// lazy, access-triggered eviction (no background GC goroutine), and the
// same filterPut/filterRemove compaction rules.
package ttlmap

import (
	"bytes"
	"fmt"
	"time"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/ttlmap/wire"
	"github.com/puzpuzpuz/xsync/v3"
)

// StateMachine holds one shard's worth of TTL map state. It implements no
// consensus-engine interface directly; lib/rsm/dragonboat adapts it onto
// dragonboat's sm.IConcurrentStateMachine.
type StateMachine struct {
	entries  *xsync.MapOf[string, *rsm.Commit]
	sessions *rsm.SessionRegistry
	timeMs   int64
	metrics  *rsm.Metrics
}

// New creates an empty TTL map state machine. name namespaces its metrics,
// typically "ttlmap_<shardID>".
func New(name string) *StateMachine {
	return &StateMachine{
		entries:  xsync.NewMapOf[string, *rsm.Commit](),
		sessions: rsm.NewSessionRegistry(),
		metrics:  rsm.NewMetrics(name),
	}
}

// OnRegister, OnExpire and OnClose satisfy rsm.SessionListener, delegating
// to the embedded registry exactly as DistributedMap.StateMachine's
// register/expire/close delegate to its `sessions` set.
func (m *StateMachine) OnRegister(sessionID uint64) { m.sessions.OnRegister(sessionID) }
func (m *StateMachine) OnExpire(sessionID uint64)   { m.sessions.OnExpire(sessionID) }
func (m *StateMachine) OnClose(sessionID uint64)    { m.sessions.OnClose(sessionID) }

// updateTime advances the machine's logical clock to the max of itself and
// the commit's timestamp, mirroring StateMachine.updateTime.
func (m *StateMachine) updateTime(commit *rsm.Commit) {
	if commit.TimestampMs > m.timeMs {
		m.timeMs = commit.TimestampMs
	}
}

// isActive reports whether an entry's owning commit is still live: an
// Ephemeral entry dies with its session, and a TTL'd entry dies once more
// than ttl milliseconds have elapsed since it was committed.
func (m *StateMachine) isActive(commit *rsm.Commit) bool {
	if commit == nil {
		return false
	}
	op := commit.Operation.(*wire.Op)
	if op.Mode == rsm.Ephemeral && !m.sessions.IsActive(commit.SessionID) {
		return false
	}
	if op.TTLMillis != 0 && op.TTLMillis < m.timeMs-commit.TimestampMs {
		return false
	}
	return true
}

// evict drops key's entry and releases its retained commit.
func (m *StateMachine) evict(key string) {
	if old, ok := m.entries.LoadAndDelete(key); ok {
		old.Release()
	}
}

// Apply executes a single commit against map state and returns its result.
// It handles every TTL map op type, queries included, matching the original
// source's unified @Apply dispatch: a Get or ContainsKey applied here evicts
// expired entries exactly the same way Put and Remove do. lib/rsm/dragonboat
// answers queries through StaleQuery instead (see TTLMapFSM.Lookup).
func (m *StateMachine) Apply(commit *rsm.Commit) (*wire.Result, error) {
	op, ok := commit.Operation.(*wire.Op)
	if !ok {
		return nil, rsm.NewError(rsm.ErrInvalidArgument, fmt.Sprintf("ttlmap: unexpected operation type %T", commit.Operation))
	}

	start := time.Now()
	defer m.metrics.ApplyDuration.UpdateDuration(start)

	m.updateTime(commit)

	switch op.Type {
	case wire.OpContainsKey:
		return m.applyContainsKey(op)
	case wire.OpGet:
		return m.applyGet(op)
	case wire.OpGetOrDefault:
		return m.applyGetOrDefault(op)
	case wire.OpPut:
		return m.applyPut(commit, op)
	case wire.OpPutIfAbsent:
		return m.applyPutIfAbsent(commit, op)
	case wire.OpRemove:
		return m.applyRemove(op)
	case wire.OpSize:
		return &wire.Result{Size: int64(m.entries.Size())}, nil
	case wire.OpIsEmpty:
		return &wire.Result{Found: m.entries.Size() == 0}, nil
	case wire.OpClear:
		return m.applyClear()
	default:
		m.metrics.CommitsRejected.Inc()
		return nil, rsm.NewError(rsm.ErrUnsupportedOperation, fmt.Sprintf("ttlmap: unknown op %s", op.Type))
	}
}

func (m *StateMachine) applyContainsKey(op *wire.Op) (*wire.Result, error) {
	existing, ok := m.entries.Load(op.Key)
	if !ok {
		return &wire.Result{Found: false}, nil
	}
	if !m.isActive(existing) {
		m.evict(op.Key)
		return &wire.Result{Found: false}, nil
	}
	return &wire.Result{Found: true}, nil
}

func (m *StateMachine) applyGet(op *wire.Op) (*wire.Result, error) {
	existing, ok := m.entries.Load(op.Key)
	if !ok {
		return &wire.Result{}, nil
	}
	if !m.isActive(existing) {
		m.evict(op.Key)
		return &wire.Result{}, nil
	}
	eop := existing.Operation.(*wire.Op)
	return &wire.Result{Found: true, Value: eop.Value}, nil
}

func (m *StateMachine) applyGetOrDefault(op *wire.Op) (*wire.Result, error) {
	existing, ok := m.entries.Load(op.Key)
	if !ok {
		return &wire.Result{Found: true, Value: op.Default}, nil
	}
	if !m.isActive(existing) {
		m.evict(op.Key)
		return &wire.Result{Found: true, Value: op.Default}, nil
	}
	eop := existing.Operation.(*wire.Op)
	return &wire.Result{Found: true, Value: eop.Value}, nil
}

func (m *StateMachine) applyPut(commit *rsm.Commit, op *wire.Op) (*wire.Result, error) {
	commit.Retain()
	old, had := m.entries.LoadAndStore(op.Key, commit)
	if !had {
		m.metrics.CommitsApplied.Inc()
		return &wire.Result{}, nil
	}
	wasActive := m.isActive(old)
	oldOp := old.Operation.(*wire.Op)
	old.Release()
	m.metrics.CommitsApplied.Inc()
	if wasActive {
		return &wire.Result{Found: true, Value: oldOp.Value}, nil
	}
	return &wire.Result{}, nil
}

func (m *StateMachine) applyPutIfAbsent(commit *rsm.Commit, op *wire.Op) (*wire.Result, error) {
	if existing, ok := m.entries.Load(op.Key); ok {
		if m.isActive(existing) {
			eop := existing.Operation.(*wire.Op)
			return &wire.Result{Found: true, Value: eop.Value}, nil
		}
		m.evict(op.Key)
	}
	commit.Retain()
	m.entries.Store(op.Key, commit)
	m.metrics.CommitsApplied.Inc()
	return &wire.Result{}, nil
}

// Filter is the compaction predicate for Put/PutIfAbsent/Remove/Clear
// commits, combining filterPut (keep iff the entry is still active and this
// is the commit that last wrote it) and filterRemove (a MAJOR-compaction
// rule: a destructive commit can be dropped once compaction has moved past
// its index, since its effect - the key's absence - is already reflected in
// every later snapshot).
func (m *StateMachine) Filter(commit *rsm.Commit, compaction rsm.Context) bool {
	op, ok := commit.Operation.(*wire.Op)
	if !ok {
		return false
	}
	switch op.Type {
	case wire.OpPut, wire.OpPutIfAbsent:
		existing, ok := m.entries.Load(op.Key)
		return ok && m.isActive(existing) && existing.Index == commit.Index
	case wire.OpRemove, wire.OpClear:
		return commit.Index > compaction.Index
	default:
		return true
	}
}

func (m *StateMachine) applyRemove(op *wire.Op) (*wire.Result, error) {
	existing, ok := m.entries.Load(op.Key)

	if op.HasCompareValue {
		if !ok {
			return &wire.Result{Found: false}, nil
		}
		if !m.isActive(existing) {
			m.evict(op.Key)
			return &wire.Result{Found: false}, nil
		}
		eop := existing.Operation.(*wire.Op)
		if !bytes.Equal(eop.Value, op.Value) {
			return &wire.Result{Found: false}, nil
		}
		m.evict(op.Key)
		return &wire.Result{Found: true}, nil
	}

	if !ok {
		return &wire.Result{}, nil
	}
	wasActive := m.isActive(existing)
	eop := existing.Operation.(*wire.Op)
	m.evict(op.Key)
	if wasActive {
		return &wire.Result{Found: true, Value: eop.Value}, nil
	}
	return &wire.Result{}, nil
}

func (m *StateMachine) applyClear() (*wire.Result, error) {
	var keys []string
	m.entries.Range(func(key string, _ *rsm.Commit) bool {
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		m.evict(key)
	}
	return &wire.Result{}, nil
}

// StaleQuery answers a read-only op (Get/GetOrDefault/ContainsKey/Size/
// IsEmpty) without evicting expired entries or advancing the logical
// clock, so it is safe to call concurrently with Apply - unlike Apply, it
// never mutates m.entries or m.timeMs. It is the query-side counterpart
// dragonboat's Lookup uses for every query, at any rsm.ConsistencyLevel:
// activity is judged against the logical clock of the last applied commit,
// and Size/IsEmpty count expired entries that have not been evicted yet.
func (m *StateMachine) StaleQuery(op *wire.Op) (*wire.Result, error) {
	switch op.Type {
	case wire.OpContainsKey:
		existing, ok := m.entries.Load(op.Key)
		return &wire.Result{Found: ok && m.isActive(existing)}, nil
	case wire.OpGet:
		existing, ok := m.entries.Load(op.Key)
		if !ok || !m.isActive(existing) {
			return &wire.Result{}, nil
		}
		eop := existing.Operation.(*wire.Op)
		return &wire.Result{Found: true, Value: eop.Value}, nil
	case wire.OpGetOrDefault:
		existing, ok := m.entries.Load(op.Key)
		if !ok || !m.isActive(existing) {
			return &wire.Result{Found: true, Value: op.Default}, nil
		}
		eop := existing.Operation.(*wire.Op)
		return &wire.Result{Found: true, Value: eop.Value}, nil
	case wire.OpSize:
		return &wire.Result{Size: int64(m.entries.Size())}, nil
	case wire.OpIsEmpty:
		return &wire.Result{Found: m.entries.Size() == 0}, nil
	default:
		return nil, rsm.NewError(rsm.ErrUnsupportedOperation, fmt.Sprintf("ttlmap: %s cannot be answered as a stale query", op.Type))
	}
}

// Close releases every retained commit, for use when the shard is being torn
// down rather than compacted.
func (m *StateMachine) Close() error {
	m.applyClear()
	m.metrics.Unregister()
	return nil
}
