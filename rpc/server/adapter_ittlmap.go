package server

import (
	"fmt"
	"time"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/store/dttlmap"
	"github.com/finnhorsman/ensemble/rpc/common"
)

// defaultConsistency is the level every RPC-exposed TTL map read asks for;
// an RPC client has no way to pick a level the way a direct dttlmap.ITTLMap
// caller can, so every RPC read is served at rsm.DefaultConsistency
// (LinearizableLease).
const defaultConsistency = rsm.DefaultConsistency

// NewTTLMapServerAdapter returns the RPC adapter for a TTL map shard,
// dispatching on the message types dttlmap.ITTLMap's operations map onto.
func NewTTLMapServerAdapter() IRPCServerAdapter {
	return &ttlMapServerAdapterImpl{}
}

type ttlMapServerAdapterImpl struct{}

func (adapter *ttlMapServerAdapterImpl) Handle(req *common.Message, backend any) *common.Message {
	m, ok := backend.(dttlmap.ITTLMap)
	if !ok || m == nil {
		return common.NewErrorResponse(fmt.Sprintf("handler: expected a dttlmap.ITTLMap backend, got %T", backend))
	}

	switch req.MsgType {
	case common.MsgTTLPut:
		prev, replaced, err := m.Put(req.Key, req.Value, time.Duration(req.ExpireIn)*time.Millisecond, req.IfAbsent)
		return common.NewTTLPutResponse(prev, replaced, err)
	case common.MsgTTLGet:
		val, found, err := m.Get(req.Key, defaultConsistency)
		return common.NewTTLGetResponse(val, found, err)
	case common.MsgTTLGetOrDefault:
		val, err := m.GetOrDefault(req.Key, req.Default, defaultConsistency)
		return common.NewTTLGetOrDefaultResponse(val, err)
	case common.MsgTTLContainsKey:
		ok, err := m.ContainsKey(req.Key, defaultConsistency)
		return common.NewTTLContainsKeyResponse(ok, err)
	case common.MsgTTLRemove:
		prev, removed, err := m.Remove(req.Key, req.Value)
		return common.NewTTLRemoveResponse(prev, removed, err)
	case common.MsgTTLSize:
		size, err := m.Size(defaultConsistency)
		return common.NewTTLSizeResponse(size, err)
	case common.MsgTTLIsEmpty:
		ok, err := m.IsEmpty(defaultConsistency)
		return common.NewTTLIsEmptyResponse(ok, err)
	case common.MsgTTLClear:
		err := m.Clear()
		return common.NewTTLClearResponse(err)
	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC TTLMapAdapter - Unsuported message type: %s", req.MsgType))
	}
}
