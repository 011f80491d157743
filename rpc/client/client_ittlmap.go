package client

import (
	"time"

	"github.com/finnhorsman/ensemble/rpc/common"
	"github.com/finnhorsman/ensemble/rpc/serializer"
	"github.com/finnhorsman/ensemble/rpc/transport"
)

// ITTLMapClient is the RPC-facing counterpart of dttlmap.ITTLMap: the same
// operations, minus the consistency knob - an RPC caller always gets
// rpc/server's configured default instead of choosing its own per call.
type ITTLMapClient interface {
	Put(key string, value []byte, ttl time.Duration, ifAbsent bool) (previous []byte, replaced bool, err error)
	Get(key string) (value []byte, found bool, err error)
	GetOrDefault(key string, def []byte) (value []byte, err error)
	ContainsKey(key string) (bool, error)
	Remove(key string, compareValue []byte) (previous []byte, removed bool, err error)
	Size() (int64, error)
	IsEmpty() (bool, error)
	Clear() error
}

// NewRPCTTLMap creates a new RPC ITTLMapClient bound to shardId.
func NewRPCTTLMap(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (ITTLMapClient, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	t := rpcTTLMap{rpcClientAdapter{shardId: shardId, config: config, transport: transport, serializer: serializer}}
	return &t, nil
}

type rpcTTLMap struct {
	rpcClientAdapter
}

func (i *rpcTTLMap) Put(key string, value []byte, ttl time.Duration, ifAbsent bool) ([]byte, bool, error) {
	req := common.NewTTLPutRequest(key, value, uint64(ttl.Milliseconds()), ifAbsent)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcTTLMap) Get(key string) ([]byte, bool, error) {
	req := common.NewTTLGetRequest(key)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcTTLMap) GetOrDefault(key string, def []byte) ([]byte, error) {
	req := common.NewTTLGetOrDefaultRequest(key, def)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (i *rpcTTLMap) ContainsKey(key string) (bool, error) {
	req := common.NewTTLContainsKeyRequest(key)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcTTLMap) Remove(key string, compareValue []byte) ([]byte, bool, error) {
	req := common.NewTTLRemoveRequest(key, compareValue)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcTTLMap) Size() (int64, error) {
	req := common.NewTTLSizeRequest()
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return 0, err
	}
	return resp.Size, nil
}

func (i *rpcTTLMap) IsEmpty() (bool, error) {
	req := common.NewTTLIsEmptyRequest()
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcTTLMap) Clear() error {
	req := common.NewTTLClearRequest()
	_, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	return err
}
