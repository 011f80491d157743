package client

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/group/wire"
	"github.com/finnhorsman/ensemble/rpc/common"
	"github.com/finnhorsman/ensemble/rpc/serializer"
	"github.com/finnhorsman/ensemble/rpc/transport"
)

// GroupEvent mirrors rsm/dragonboat.GroupEvent's shape over the wire: a Kind
// tag plus whichever remaining fields that kind populates.
type GroupEvent struct {
	Kind        string
	Member      GroupMember
	MemberID    string
	Term        uint64
	MessageID   uint64
	PayloadType string
	Payload     []byte
	Succeeded   bool
}

// GroupMember is the RPC-facing projection of a group member.
type GroupMember struct {
	MemberID string
	Index    uint64
}

// IGroupClient is the RPC-facing counterpart of dgroup.IGroup. A single
// IGroupClient owns one long-lived session on the server, identified by an
// opaque key generated at construction time - the RPC transport is
// stateless request/response, so the server keeps the real dragonboat
// session alive between calls, keyed by that string.
type IGroupClient interface {
	Join(memberID string, mode rsm.Mode) (GroupMember, error)
	Leave(memberID string) error
	Listen() ([]GroupMember, error)
	Submit(memberID string, msgType string, body []byte, policy wire.DispatchPolicy, delivery wire.DeliveryPolicy) (messageID uint64, err error)
	Ack(messageID uint64, succeeded bool) error
	Drain() ([]GroupEvent, error)
	Close() error
}

// NewRPCGroup creates a new RPC IGroupClient bound to shardId, opening a
// fresh session on first use.
func NewRPCGroup(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IGroupClient, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	g := rpcGroup{
		rpcClientAdapter: rpcClientAdapter{shardId: shardId, config: config, transport: transport, serializer: serializer},
		sessionKey:       newSessionKey(),
	}
	return &g, nil
}

type rpcGroup struct {
	rpcClientAdapter
	sessionKey string
}

func newSessionKey() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (g *rpcGroup) Join(memberID string, mode rsm.Mode) (GroupMember, error) {
	req := common.NewGroupJoinRequest(g.sessionKey, memberID, mode == rsm.Ephemeral)
	resp, err := invokeRPCRequest(g.shardId, req, g.transport, g.serializer)
	if err != nil {
		return GroupMember{}, err
	}
	return GroupMember{MemberID: resp.Member.MemberID, Index: resp.Member.Index}, nil
}

func (g *rpcGroup) Leave(memberID string) error {
	req := common.NewGroupLeaveRequest(g.sessionKey, memberID)
	_, err := invokeRPCRequest(g.shardId, req, g.transport, g.serializer)
	return err
}

func (g *rpcGroup) Listen() ([]GroupMember, error) {
	req := common.NewGroupListenRequest(g.sessionKey)
	resp, err := invokeRPCRequest(g.shardId, req, g.transport, g.serializer)
	if err != nil {
		return nil, err
	}
	members := make([]GroupMember, len(resp.Members))
	for i, m := range resp.Members {
		members[i] = GroupMember{MemberID: m.MemberID, Index: m.Index}
	}
	return members, nil
}

func (g *rpcGroup) Submit(memberID string, msgType string, body []byte, policy wire.DispatchPolicy, delivery wire.DeliveryPolicy) (uint64, error) {
	req := common.NewGroupSubmitRequest(g.sessionKey, memberID, msgType, body, uint8(policy), uint8(delivery))
	resp, err := invokeRPCRequest(g.shardId, req, g.transport, g.serializer)
	if err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

func (g *rpcGroup) Ack(messageID uint64, succeeded bool) error {
	req := common.NewGroupAckRequest(g.sessionKey, messageID, succeeded)
	_, err := invokeRPCRequest(g.shardId, req, g.transport, g.serializer)
	return err
}

func (g *rpcGroup) Drain() ([]GroupEvent, error) {
	req := common.NewGroupDrainRequest(g.sessionKey)
	resp, err := invokeRPCRequest(g.shardId, req, g.transport, g.serializer)
	if err != nil {
		return nil, err
	}
	events := make([]GroupEvent, len(resp.Events))
	for i, e := range resp.Events {
		events[i] = GroupEvent{
			Kind:        e.Kind,
			Member:      GroupMember{MemberID: e.Member.MemberID, Index: e.Member.Index},
			MemberID:    e.MemberID,
			Term:        e.Term,
			MessageID:   e.MessageID,
			PayloadType: e.PayloadType,
			Payload:     e.Payload,
			Succeeded:   e.Succeeded,
		}
	}
	return events, nil
}

func (g *rpcGroup) Close() error {
	req := common.NewGroupSessionCloseRequest(g.sessionKey)
	_, err := invokeRPCRequest(g.shardId, req, g.transport, g.serializer)
	return err
}
