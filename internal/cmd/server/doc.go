// Package serverrun exposes the entrypoints the CLI uses to start a coedit
// server (HTTP, websocket, gRPC health and in-process shard workers) or a
// standalone shard worker, handling lifecycle and shutdown.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", GRPCAddr: ":50051", HTTPAddr: ":8080", Config: config.Default()}
//	_ = serverrun.Run(ctx, opts)
package serverrun
