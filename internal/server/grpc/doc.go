// Package grpcserver hosts the gRPC endpoint of coedit. It serves the
// standard grpc.health.v1 protocol backed by a live store ping, plus server
// reflection, so orchestrators and grpcurl can probe a node.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Config: config.Default()})
//	s := grpcserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
