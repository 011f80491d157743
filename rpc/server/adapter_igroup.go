package server

import (
	"fmt"
	"time"

	"github.com/finnhorsman/ensemble/lib/rsm"
	rsmdragonboat "github.com/finnhorsman/ensemble/lib/rsm/dragonboat"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
	"github.com/finnhorsman/ensemble/lib/store/dgroup"
	"github.com/finnhorsman/ensemble/rpc/common"
	"github.com/lni/dragonboat/v4"
	"github.com/puzpuzpuz/xsync/v3"
)

// groupBackend bundles what a group shard's adapter needs beyond a plain
// dgroup.IGroup factory: Drain is answered from this replica's own
// GroupFSM instance directly (see lib/rsm/dragonboat.GroupFSM's doc on
// event queuing being a deterministic side effect of Apply, so any replica
// that has caught up to a session's last command can answer Drain for it
// without a further round through the log) rather than through
// SyncPropose/SyncRead.
type groupBackend struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	timeout time.Duration
	fsm     *rsmdragonboat.GroupFSM
}

// NewGroupBackend wraps a started group shard's NodeHost handle and its
// local GroupFSM instance for the RPC layer.
func NewGroupBackend(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration, fsm *rsmdragonboat.GroupFSM) *groupBackend {
	return &groupBackend{nh: nh, shardID: shardID, timeout: timeout, fsm: fsm}
}

// NewGroupServerAdapter returns the RPC adapter for a group shard. It
// keeps one dgroup.IGroup session alive per SessionKey a client presents,
// the way a real client library would keep a long-lived session open
// across many requests instead of one per call.
func NewGroupServerAdapter() IRPCServerAdapter {
	return &groupServerAdapterImpl{sessions: xsync.NewMapOf[string, dgroup.IGroup]()}
}

type groupServerAdapterImpl struct {
	sessions *xsync.MapOf[string, dgroup.IGroup]
}

func (adapter *groupServerAdapterImpl) Handle(req *common.Message, backend any) *common.Message {
	gb, ok := backend.(*groupBackend)
	if !ok || gb == nil {
		return common.NewErrorResponse(fmt.Sprintf("handler: expected a *groupBackend backend, got %T", backend))
	}

	if req.MsgType == common.MsgGroupSessionClose {
		sess, found := adapter.sessions.LoadAndDelete(req.SessionKey)
		if !found {
			return common.NewGroupSessionCloseResponse(nil)
		}
		return common.NewGroupSessionCloseResponse(sess.Close())
	}

	sess, err := adapter.sessionFor(gb, req.SessionKey)
	if err != nil {
		return common.NewErrorResponse(err.Error())
	}

	switch req.MsgType {
	case common.MsgGroupJoin:
		mode := rsm.Persistent
		if req.Ephemeral {
			mode = rsm.Ephemeral
		}
		m, err := sess.Join(req.MemberID, mode)
		return common.NewGroupJoinResponse(common.GroupMember{MemberID: m.MemberID, Index: m.Index}, err)

	case common.MsgGroupLeave:
		err := sess.Leave(req.MemberID)
		return common.NewGroupLeaveResponse(err)

	case common.MsgGroupListen:
		members, err := sess.Listen()
		return common.NewGroupListenResponse(toCommonMembers(members), err)

	case common.MsgGroupSubmit:
		messageID, err := sess.Submit(req.MemberID, req.PayloadType, req.Value, wire.DispatchPolicy(req.Dispatch), wire.DeliveryPolicy(req.Delivery))
		return common.NewGroupSubmitResponse(messageID, err)

	case common.MsgGroupAck:
		err := sess.Ack(req.MessageID, req.Succeeded)
		return common.NewGroupAckResponse(err)

	case common.MsgGroupDrain:
		if gb.fsm == nil {
			return common.NewErrorResponse("handler: group shard has no local FSM handle for Drain")
		}
		events := gb.fsm.Drain(sess.SessionID())
		return common.NewGroupDrainResponse(toCommonEvents(events), nil)

	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC GroupAdapter - Unsuported message type: %s", req.MsgType))
	}
}

func (adapter *groupServerAdapterImpl) sessionFor(gb *groupBackend, sessionKey string) (dgroup.IGroup, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("handler: group requests require a sessionKey")
	}
	if sess, ok := adapter.sessions.Load(sessionKey); ok {
		return sess, nil
	}
	sess, err := dgroup.New(gb.nh, gb.shardID, gb.timeout)
	if err != nil {
		return nil, err
	}
	actual, loaded := adapter.sessions.LoadOrStore(sessionKey, sess)
	if loaded {
		// Lost the race against a concurrent request for the same key -
		// drop the session we just opened and use the stored one.
		_ = sess.Close()
		return actual, nil
	}
	return sess, nil
}

func toCommonMembers(members []wire.MemberInfo) []common.GroupMember {
	out := make([]common.GroupMember, len(members))
	for i, m := range members {
		out[i] = common.GroupMember{MemberID: m.MemberID, Index: m.Index}
	}
	return out
}

func toCommonEvents(events []rsmdragonboat.GroupEvent) []common.GroupEvent {
	out := make([]common.GroupEvent, len(events))
	for i, e := range events {
		ce := common.GroupEvent{
			Kind:     groupEventKindName(e.Kind),
			Member:   common.GroupMember{MemberID: e.Member.MemberID, Index: e.Member.Index},
			MemberID: e.MemberID,
			Term:     e.Term,
		}
		switch e.Kind {
		case rsmdragonboat.EventMessage:
			ce.MessageID = e.Msg.Index
			ce.MemberID = e.Msg.MemberID
			ce.PayloadType = e.Msg.Type
			ce.Payload = e.Msg.Body
		case rsmdragonboat.EventAck:
			ce.MessageID = e.Ack.MessageID
			ce.MemberID = e.Ack.MemberID
			ce.PayloadType = e.Ack.MessageType
			ce.Succeeded = true
		case rsmdragonboat.EventFail:
			ce.MessageID = e.Ack.MessageID
			ce.MemberID = e.Ack.MemberID
			ce.PayloadType = e.Ack.MessageType
			ce.Succeeded = false
		}
		out[i] = ce
	}
	return out
}

func groupEventKindName(k rsmdragonboat.GroupEventKind) string {
	switch k {
	case rsmdragonboat.EventJoin:
		return "join"
	case rsmdragonboat.EventLeave:
		return "leave"
	case rsmdragonboat.EventTerm:
		return "term"
	case rsmdragonboat.EventElect:
		return "elect"
	case rsmdragonboat.EventResign:
		return "resign"
	case rsmdragonboat.EventMessage:
		return "message"
	case rsmdragonboat.EventAck:
		return "ack"
	case rsmdragonboat.EventFail:
		return "fail"
	default:
		return "unknown"
	}
}
