// Package httpserver is the client-facing gateway of coedit: a websocket
// endpoint per document running the collaboration protocol, JSON endpoints
// to read documents and submit operations, an SSE event stream, health,
// shard status and Prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Config: config.Default()})
//	svc, _ := rt.Collab()
//	s := httpserver.New(rt, svc, logger, httpserver.Options{})
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
