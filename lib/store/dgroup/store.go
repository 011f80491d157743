// Package dgroup is the distributed client for a group shard: unlike
// dttlmap, every operation here needs a registered, live session
// (even Listen mutates the listener set keyed by session id), so this
// client owns a real dragonboat client session instead of a NoOP one and
// proposes the lib/rsm/dragonboat session-lifecycle entries itself around
// it.
package dgroup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/dragonboat"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
	"github.com/finnhorsman/ensemble/lib/store"
	"github.com/lni/dragonboat/v4/logger"

	dbgboat "github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
)

var (
	retries = 5
	log     = logger.GetLogger("dgroup")
)

// IGroup is a distributed group membership/messaging client bound to one
// session: Join/Leave/Listen/Submit/Ack all act as the member or listener
// this session represents, mirroring io.atomix.group.DistributedGroup's
// single-session-per-client-handle shape.
type IGroup interface {
	// Join registers memberID as a member under this session. mode controls
	// whether the membership survives this session closing (Persistent) or
	// is removed immediately (Ephemeral).
	Join(memberID string, mode rsm.Mode) (wire.MemberInfo, error)
	// Leave removes memberID, which must belong to this session.
	Leave(memberID string) error
	// Listen registers this session as a listener and returns every member
	// currently active; subsequent membership/election/message events for
	// this session are queued on the owning replica and drained with Drain.
	Listen() ([]wire.MemberInfo, error)
	// Submit sends a message to memberID (direct) or, if memberID is empty,
	// dispatches it per policy across the group.
	Submit(memberID string, msgType string, body []byte, policy wire.DispatchPolicy, delivery wire.DeliveryPolicy) (messageID uint64, err error)
	// Ack settles a previously delivered message as succeeded or failed.
	Ack(messageID uint64, succeeded bool) error
	// Close releases the underlying session, triggering every ephemeral
	// member and listener registration it owns to be torn down.
	Close() error
	// SessionID returns the dragonboat client id backing this session, the
	// same id a local GroupFSM.Drain call needs to find this session's
	// queued events - an RPC server adapter sitting in front of this client
	// is the only intended caller.
	SessionID() uint64
}

// storeImpl owns a real dragonboat client.Session (not a NoOP one) so it
// has a unique, dragonboat-assigned client id to register as this group's
// rsm.Commit.SessionID - the only way a replica can tell which listener or
// member a later Apply belongs to.
type storeImpl struct {
	nh        *dbgboat.NodeHost
	shardID   uint64
	cs        *client.Session
	sessionID uint64
	timeout   time.Duration
}

// New opens a new session against a group shard and registers it on the
// replicated session registry before returning, so every later Join/Listen
// call sees an already-active session.
func New(nh *dbgboat.NodeHost, shardID uint64, timeout time.Duration) (IGroup, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	cs, err := nh.SyncGetSession(ctx, shardID)
	cancel()
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}

	s := &storeImpl{nh: nh, shardID: shardID, cs: cs, sessionID: uint64(cs.ClientID), timeout: timeout}
	if err := s.proposeRaw(dragonboat.WrapSession(dragonboat.EntrySessionRegister, s.sessionID)); err != nil {
		return nil, err
	}
	return s, nil
}

// SessionID returns the dragonboat client id backing this session.
func (s *storeImpl) SessionID() uint64 {
	return s.sessionID
}

// Close proposes EntrySessionClose and then releases the dragonboat
// session itself, in that order so the replicated state sees the session
// close before dragonboat forgets its client id.
func (s *storeImpl) Close() error {
	if err := s.proposeRaw(dragonboat.WrapSession(dragonboat.EntrySessionClose, s.sessionID)); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.nh.SyncCloseSession(ctx, s.cs)
}

func (s *storeImpl) proposeRaw(cmd []byte) error {
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
			return store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != 0 {
			kind, msg := decodeErr(res.Data)
			return rsm.NewError(kind, msg)
		}
		return nil
	}
	return store.NewError(store.RetCInternalError, "timeout")
}

func (s *storeImpl) propose(op *wire.Op) ([]byte, error) {
	env := rsm.Envelope{TimestampMs: time.Now().UnixMilli(), SessionID: s.sessionID, Payload: op.Serialize()}
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
			kind, msg := decodeErr(res.Data)
			return nil, rsm.NewError(kind, msg)
		}
		return res.Data, nil
	}
	return nil, store.NewError(store.RetCInternalError, "timeout")
}

func decodeErr(data []byte) (rsm.ErrorKind, string) {
	if len(data) == 0 {
		return rsm.ErrInternal, ""
	}
	return rsm.ErrorKind(data[0]), string(data[1:])
}

func (s *storeImpl) Join(memberID string, mode rsm.Mode) (wire.MemberInfo, error) {
	data, err := s.propose(&wire.Op{Type: wire.OpJoin, MemberID: memberID, Mode: mode})
	if err != nil {
		return wire.MemberInfo{}, err
	}
	m, err := decodeMemberInfo(data)
	if err != nil {
		return wire.MemberInfo{}, store.NewError(store.RetCInternalError, err.Error())
	}
	return m, nil
}

func (s *storeImpl) Leave(memberID string) error {
	_, err := s.propose(&wire.Op{Type: wire.OpLeave, MemberID: memberID})
	return err
}

func (s *storeImpl) Listen() ([]wire.MemberInfo, error) {
	data, err := s.propose(&wire.Op{Type: wire.OpListen})
	if err != nil {
		return nil, err
	}
	return decodeMemberList(data)
}

func (s *storeImpl) Submit(memberID, msgType string, body []byte, policy wire.DispatchPolicy, delivery wire.DeliveryPolicy) (uint64, error) {
	messageID := uint64(time.Now().UnixNano())
	_, err := s.propose(&wire.Op{
		Type:        wire.OpSubmit,
		MemberID:    memberID,
		Dispatch:    policy,
		Delivery:    delivery,
		MessageID:   messageID,
		MessageType: msgType,
		MessageBody: body,
	})
	if err != nil {
		return 0, err
	}
	return messageID, nil
}

func (s *storeImpl) Ack(messageID uint64, succeeded bool) error {
	_, err := s.propose(&wire.Op{Type: wire.OpAck, MessageID: messageID, Succeeded: succeeded})
	return err
}

// decodeMemberInfo is the client counterpart of
// lib/rsm/dragonboat.encodeMemberInfo's 4-byte-len + id + 8-byte-index
// layout.
func decodeMemberInfo(data []byte) (wire.MemberInfo, error) {
	if len(data) < 4 {
		return wire.MemberInfo{}, fmt.Errorf("dgroup: member info too short: %d bytes", len(data))
	}
	n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if len(data) < 4+n+8 {
		return wire.MemberInfo{}, fmt.Errorf("dgroup: member info too short for id of length %d", n)
	}
	id := string(data[4 : 4+n])
	off := 4 + n
	var idx uint64
	for i := 0; i < 8; i++ {
		idx = idx<<8 | uint64(data[off+i])
	}
	return wire.MemberInfo{MemberID: id, Index: idx}, nil
}

func decodeMemberList(data []byte) ([]wire.MemberInfo, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("dgroup: member list too short: %d bytes", len(data))
	}
	count := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	off := 4
	members := make([]wire.MemberInfo, 0, count)
	for i := 0; i < count; i++ {
		m, err := decodeMemberInfo(data[off:])
		if err != nil {
			return nil, err
		}
		members = append(members, m)
		off += 4 + len(m.MemberID) + 8
	}
	return members, nil
}
