// Package server implements the RPC server for the TTL map and group
// coordination system. It provides adapters for handling RPC requests
// to both shard types, along with the core server implementation that
// manages shards and request routing.
//
// The package focuses on:
//   - Server-side RPC request handling for TTL map and group operations
//   - Adapter pattern to decouple application logic from RPC mechanisms
//   - Dynamic creation of shards based on shard configuration
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a shard backend.
//
//   - NewTTLMapServerAdapter: Factory function creating an adapter for TTL map
//     operations, translating RPC requests to dttlmap.ITTLMap method calls.
//
//   - NewGroupServerAdapter: Factory function creating an adapter for group
//     membership/messaging operations, translating RPC requests to dgroup.IGroup
//     method calls and maintaining the per-session-key group registry.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 300, Type: common.ShardTypeRemoteITTLMap},
//	    {ShardID: 400, Type: common.ShardTypeRemoteIGroup},
//	  },
//	  Endpoint: "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel: "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(64 * 1024),
//	  serializer.NewBinarySerializer(),
//	)
//
//	// Start the server
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Both shard types run as distributed Raft-backed state machines. RAFT
// configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead,
// DataDir, ReplicaID, and ClusterMembers) must be properly configured
// whenever any shard is present.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	Across multiple connections. Each request is processed independently.
//	The Listen method is not thread-safe and should be called only once.
package server
