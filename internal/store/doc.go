// Package store defines the durable storage contract shared by every coedit
// process: document state, per-document edit history, client presence, and
// the sharded edit streams that feed the workers.
//
// Two implementations exist. pebblekv keeps everything in an embedded Pebble
// database and suits a single process running all shards. redisstore keeps
// the same records in Redis so connection servers and shard workers can run
// as separate processes.
//
// Key layout is shared by both backends:
//
//	ot:state:{room}:{path}      document state {doc, rev, base_rev, last_id}
//	ot:history:{room}:{path}    applied edits since base_rev, oldest first
//	ot:clients:{room}:{path}    client presence {name, selection, seen_at}
//	ot:ops:{shard}              edit stream for one shard
//	ot:ops:{shard}:checkpoint   last stream entry the shard worker committed
package store
