// Package pebblestore wraps Pebble with an fsync policy, atomic batches,
// prefix scans and a metrics hook. It backs the embedded store and the shard
// event logs.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Atomic updates with batches
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
//	// Everything under a prefix
//	_ = db.ScanPrefix([]byte("ot/history/"), func(k, v []byte) bool { return true })
package pebblestore
