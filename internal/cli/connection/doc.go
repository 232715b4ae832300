// Package connection is the JSON-RPC client for ledger nodes.
//
// Files:
//
//   - client.go: NodeClient and the storage, chain and diff-pull calls
//   - source.go: dense and sparse diff sources for the puller
//   - http.go: endpoint normalization and the HTTP transport
//   - socket.go: local IPC endpoints
//   - manager.go: lazily dialled client shared by CLI commands
//
// Transport is github.com/ethereum/go-ethereum/rpc, which speaks the same
// JSON-RPC 2.0 dialect as Substrate nodes over HTTP, WebSocket and IPC.
package connection
