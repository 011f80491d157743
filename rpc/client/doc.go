// Package client implements RPC clients for the TTL map and group
// coordination system. It provides implementations of the dttlmap.ITTLMap
// and dgroup.IGroup interfaces that communicate with remote servers via RPC.
//
// The package focuses on:
//   - Transparent RPC access to TTL map and group implementations
//   - Integration with the transport and serialization layers
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewRPCTTLMap: Factory function that creates a client implementing the
//     ITTLMapClient interface. This client forwards all operations to remote
//     servers via the configured transport layer.
//
//   - NewRPCGroup: Factory function that creates a client implementing the
//     IGroupClient interface for group membership and messaging. Since the
//     underlying RPC transport is stateless request/response, the client
//     generates and carries its own opaque session key on every request.
//
// Usage Example:
//
//		// Configure the client
//		cfg := common.ClientConfig{
//		  Endpoints:              []string{"localhost:5000"},
//		  TimeoutSecond:          5,
//		  RetryCount:             3,
//		  ConnectionsPerEndpoint: 1,
//		}
//
//	 // Create a serializer
//		ser := serializer.NewBinarySerializer()
//
//		// Create a TTL map client
//		ttlMap, _ := client.NewRPCTTLMap(300, cfg, tcp.NewTCPClientTransport(), ser)
//
//		// Use the TTL map
//		ttlMap.Put("mykey", []byte("myvalue"), 30*time.Second, false)
//		value, exists, _ := ttlMap.Get("mykey")
//
//		// Create and use a group client
//		g, _ := client.NewRPCGroup(400, cfg, tcp.NewTCPClientTransport(), ser)
//		defer g.Close()
//		_, _ = g.Join("member-1", rsm.Persistent)
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - For small messages, a single connection per endpoint is often more efficient due to
//     reduced connection overhead.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
