package server

import (
	"fmt"
	rsmdragonboat "github.com/finnhorsman/ensemble/lib/rsm/dragonboat"
	"github.com/finnhorsman/ensemble/lib/store/dttlmap"
	"github.com/finnhorsman/ensemble/rpc/common"
	"github.com/finnhorsman/ensemble/rpc/serializer"
	"github.com/finnhorsman/ensemble/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/puzpuzpuz/xsync/v3"
	"os/signal"
	"runtime"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the backend it encapsulates (a dttlmap.ITTLMap or a
// *groupBackend, depending on shard type) and the adapter that handles
// requests for it
type serverShard struct {
	Backend any
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := rpc.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// Create shards map
	shardMap := xsync.NewMapOf[uint64, serverShard]()

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	// Create the RPC server
	return rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     shardMap,
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Get appropriate shard
		shard, ok := s.shards.Load(shardId)

		// Case shard does not exist -> error
		if !ok {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     "shard not found",
			}
		} else {
			// Decode the request
			err := s.serializer.Deserialize(req, &msg)

			if err != nil {
				respMsg = common.Message{
					MsgType: common.MsgTError,
					Err:     fmt.Sprintf("failed to deserialize request: %s", err),
				}
			} else {
				// Let the adapter handle the request
				respMsg = *shard.Adapter.Handle(&msg, shard.Backend)
			}
		}

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to serialize response: %s", err),
			}
		}
		return val
	})
}

func (s *rpcServer) init() error {

	// Init logger
	common.InitLoggers(s.config)

	// Create the Dragonboat NodeHost
	var nodeHost *dragonboat.NodeHost
	var err error
	if s.config.HasRemoteShard() {
		// Only create the NodeHost if we have remote shards
		nodeHost, err = dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
	}

	// Configure the timeout for the distributed store
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of remote shards. Each
		shard is either a TTL map or a group. The following loop creates all
		the shards and stores them for the RPC server.
	*/

	for _, shardConfig := range s.config.Shards {

		switch shardConfig.Type {

		case common.ShardTypeRemoteITTLMap:
			if nodeHost == nil {
				return fmt.Errorf("node host is nil, cannot create remote ttlmap")
			}

			if err := nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, rsmdragonboat.NewTTLMapFactory(), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				Logger.Errorf("failed to start shard %v: %v", shardConfig.ShardID, err)
			}

			s.shards.Store(shardConfig.ShardID, serverShard{
				Backend: dttlmap.New(nodeHost, shardConfig.ShardID, timeout),
				Adapter: NewTTLMapServerAdapter(),
			})
			Logger.Infof("created remote ttlmap for shard %d", shardConfig.ShardID)

		case common.ShardTypeRemoteIGroup:
			if nodeHost == nil {
				return fmt.Errorf("node host is nil, cannot create remote group")
			}

			// Capture the concrete *rsmdragonboat.GroupFSM the factory
			// creates for this replica so the adapter can call Drain on it
			// directly - dragonboat only exposes the sm.IConcurrentStateMachine
			// it wraps, never the instance itself.
			var fsm *rsmdragonboat.GroupFSM
			innerFactory := rsmdragonboat.NewGroupFactory(s.config.GroupExpirationMs)
			factory := func(shardID, replicaID uint64) sm.IConcurrentStateMachine {
				f := innerFactory(shardID, replicaID)
				fsm = f.(*rsmdragonboat.GroupFSM)
				return f
			}

			if err := nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, factory, s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				Logger.Errorf("failed to start shard %v: %v", shardConfig.ShardID, err)
			}

			s.shards.Store(shardConfig.ShardID, serverShard{
				Backend: NewGroupBackend(nodeHost, shardConfig.ShardID, timeout, fsm),
				Adapter: NewGroupServerAdapter(),
			})
			Logger.Infof("created remote group for shard %d", shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	Logger.Infof("dKV setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer
func (s *rpcServer) Serve() error {
	err := s.init()
	if err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}
