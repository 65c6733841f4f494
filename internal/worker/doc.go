// Package worker consumes the sharded edit streams. A Worker owns one shard:
// it reads entries in order, runs them through the document's authority,
// persists the result together with the shard checkpoint, and publishes
// ack, operation and resync events. A Pool runs one Worker per shard.
//
// Entries are never retried forever. An entry that cannot be applied is
// dropped, its checkpoint is advanced, and the author is asked to resync.
// Store failures are retried from the last durable checkpoint.
package worker
