// Package dttlmap is the distributed client for a TTL map shard: it wraps
// a dragonboat.NodeHost and speaks the
// github.com/finnhorsman/ensemble/lib/rsm/ttlmap/wire codec, proposing
// through an rsm.Envelope so the replicated ttlmap.StateMachine can recover
// a Commit on the other side.
package dttlmap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/dragonboat"
	"github.com/finnhorsman/ensemble/lib/rsm/ttlmap/wire"
	"github.com/finnhorsman/ensemble/lib/store"
	"github.com/lni/dragonboat/v4/logger"

	dbgboat "github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
)

var (
	retries = 5
	log     = logger.GetLogger("dttlmap")
)

// ITTLMap is a distributed, TTL-aware key-value store: every mutation is
// linearized through raft, and reads can opt into a stale, non-linearizable
// path for lower latency.
type ITTLMap interface {
	// Put stores value under key, expiring it after ttl (0 means no expiry).
	// If ifAbsent is set, Put is a no-op when key is already present.
	Put(key string, value []byte, ttl time.Duration, ifAbsent bool) (previous []byte, replaced bool, err error)
	// Get returns the value for key, consulting consistency to decide
	// whether the read may be served from a possibly-stale replica.
	Get(key string, consistency rsm.ConsistencyLevel) (value []byte, found bool, err error)
	// GetOrDefault is Get with a fallback returned instead of found=false.
	GetOrDefault(key string, def []byte, consistency rsm.ConsistencyLevel) (value []byte, err error)
	// ContainsKey reports whether key is present (and unexpired).
	ContainsKey(key string, consistency rsm.ConsistencyLevel) (bool, error)
	// Remove deletes key. If compareValue is non-nil, the delete only
	// applies when the stored value equals compareValue.
	Remove(key string, compareValue []byte) (previous []byte, removed bool, err error)
	// Size returns the number of stored entries, counting expired entries
	// that have not been evicted yet.
	Size(consistency rsm.ConsistencyLevel) (int64, error)
	// IsEmpty reports whether the map stores no entries at all; an expired
	// entry that has not been evicted yet still counts.
	IsEmpty(consistency rsm.ConsistencyLevel) (bool, error)
	// Clear removes every entry.
	Clear() error
}

// storeImpl is the concrete ITTLMap: one NodeHost, one shard, one no-op
// client session (the map never needs
// dragonboat's own session dedup since every Op is already idempotent or
// naturally retry-safe).
type storeImpl struct {
	nh      *dbgboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// New creates a distributed ITTLMap backed by shardID on nh.
func New(nh *dbgboat.NodeHost, shardID uint64, timeout time.Duration) ITTLMap {
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

func (s *storeImpl) propose(op *wire.Op) (*wire.Result, error) {
	env := rsm.Envelope{TimestampMs: time.Now().UnixMilli(), Payload: op.Serialize()}
	cmd := dragonboat.WrapCommand(env.Serialize())

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, cmd)
		cancel()

		if errors.Is(err, dbgboat.ErrSystemBusy) {
			log.Infof("SyncPropose: system busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != 0 {
			kind := rsm.ErrInternal
			msg := ""
			if len(res.Data) > 0 {
				kind = rsm.ErrorKind(res.Data[0])
				msg = string(res.Data[1:])
			}
			return nil, rsm.NewError(kind, msg)
		}
		out := &wire.Result{}
		if len(res.Data) > 0 {
			if err := decodeResult(res.Data, out); err != nil {
				return nil, store.NewError(store.RetCInternalError, err.Error())
			}
		}
		return out, nil
	}
	return nil, store.NewError(store.RetCInternalError, "timeout")
}

// query runs op through Lookup - SyncRead if the op's
// rsm.ConsistencyLevel is Bounded or stronger, StaleRead if it is Causal or
// weaker.
func (s *storeImpl) query(op *wire.Op) (*wire.Result, error) {
	stale := op.Consistency <= rsm.Causal
	for i := 0; i < retries; i++ {
		var res interface{}
		var err error
		if stale {
			res, err = s.nh.StaleRead(s.shardID, op)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			res, err = s.nh.SyncRead(ctx, s.shardID, op)
			cancel()
		}

		if errors.Is(err, dbgboat.ErrSystemBusy) {
			log.Infof("SyncRead: system busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			var rse *rsm.Error
			if errors.As(err, &rse) {
				return nil, rse
			}
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		out, ok := res.(*wire.Result)
		if !ok {
			return nil, store.NewError(store.RetCInternalError,
				fmt.Sprintf("dttlmap: unexpected lookup result type %T", res))
		}
		return out, nil
	}
	return nil, store.NewError(store.RetCInternalError, "timeout")
}

func (s *storeImpl) Put(key string, value []byte, ttl time.Duration, ifAbsent bool) ([]byte, bool, error) {
	opType := wire.OpPut
	if ifAbsent {
		opType = wire.OpPutIfAbsent
	}
	res, err := s.propose(&wire.Op{Type: opType, Key: key, Value: value, TTLMillis: ttl.Milliseconds()})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Found, nil
}

func (s *storeImpl) Get(key string, consistency rsm.ConsistencyLevel) ([]byte, bool, error) {
	res, err := s.query(&wire.Op{Type: wire.OpGet, Key: key, Consistency: consistency})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Found, nil
}

func (s *storeImpl) GetOrDefault(key string, def []byte, consistency rsm.ConsistencyLevel) ([]byte, error) {
	res, err := s.query(&wire.Op{Type: wire.OpGetOrDefault, Key: key, Default: def, Consistency: consistency})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (s *storeImpl) ContainsKey(key string, consistency rsm.ConsistencyLevel) (bool, error) {
	res, err := s.query(&wire.Op{Type: wire.OpContainsKey, Key: key, Consistency: consistency})
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

func (s *storeImpl) Remove(key string, compareValue []byte) ([]byte, bool, error) {
	res, err := s.propose(&wire.Op{
		Type:            wire.OpRemove,
		Key:             key,
		Value:           compareValue,
		HasCompareValue: compareValue != nil,
	})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Found, nil
}

func (s *storeImpl) Size(consistency rsm.ConsistencyLevel) (int64, error) {
	res, err := s.query(&wire.Op{Type: wire.OpSize, Consistency: consistency})
	if err != nil {
		return 0, err
	}
	return res.Size, nil
}

func (s *storeImpl) IsEmpty(consistency rsm.ConsistencyLevel) (bool, error) {
	res, err := s.query(&wire.Op{Type: wire.OpIsEmpty, Consistency: consistency})
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

func (s *storeImpl) Clear() error {
	_, err := s.propose(&wire.Op{Type: wire.OpClear})
	return err
}

// decodeResult is the client-side counterpart of
// lib/rsm/dragonboat.encodeResult's flat Found/Size/Value layout.
func decodeResult(data []byte, out *wire.Result) error {
	if len(data) < 1+8+4 {
		return fmt.Errorf("dttlmap: result data too short: %d bytes", len(data))
	}
	out.Found = data[0] != 0
	var size int64
	for i := 0; i < 8; i++ {
		size = size<<8 | int64(data[1+i])
	}
	out.Size = size
	n := 0
	for i := 0; i < 4; i++ {
		n = n<<8 | int(data[9+i])
	}
	if len(data) < 13+n {
		return fmt.Errorf("dttlmap: result data too short for value of length %d", n)
	}
	if n > 0 {
		out.Value = append([]byte(nil), data[13:13+n]...)
	}
	return nil
}
