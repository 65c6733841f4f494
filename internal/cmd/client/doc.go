// Package client provides the `coedit` command-line client.
//
// The commands talk to the coedit HTTP API to inspect documents and submit
// edits from a terminal. They are meant for developers and operators; real
// editors use the websocket endpoint.
//
// # Address configuration
//
// The HTTP base URL is provided by the embedding application via a
// BaseURLFunc. The standalone binary reads COEDIT_HTTP and defaults to
// http://127.0.0.1:8080. The gRPC address used by `health --grpc` is read
// from COEDIT_GRPC (default 127.0.0.1:50051).
//
// Usage
//
//	coedit doc show                           # global document
//	coedit doc show --room 7 --path notes/a.md
//	coedit doc show --room 7 --path notes/a.md --raw
//
//	# Submit a raw operation written against revision 3
//	coedit doc submit --room 7 --path notes/a.md --revision 3 --op '[5,"!"]'
//
//	# Insert at an offset of whatever revision is current
//	coedit doc insert --text 'hello ' --at 0
//
//	coedit doc files --room 7
//	coedit shard status
//	coedit health --grpc
//
// Notes
//
//   - Submissions are asynchronous: "queued" means the edit reached its
//     shard stream. Use `doc show` to see the applied result.
package client
