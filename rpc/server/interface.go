package server

import (
	"github.com/finnhorsman/ensemble/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It takes a Message and the shard's backend as parameters - a
	// dttlmap.ITTLMap for TTL map shards or a *groupBackend for group
	// shards. It returns a Message as a response
	// If an error occurs, it should be set in the response
	Handle(req *common.Message, backend any) (resp *common.Message)
}
