// Package runtime wires the shared store, document storage and event
// fan-out of one coedit process from its configuration. The pebble backend
// is single-process and fans out in memory; the redis backend is shared by
// every process and fans out over pub/sub.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Config: cfg})
//	defer rt.Close()
//	svc, _ := rt.Collab()
//	pool, _ := rt.Workers(nil)
//	go pool.Run(ctx)
//	ev, _ := svc.Join(ctx, store.GlobalDoc(), "client-1")
package runtime
