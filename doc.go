// Package grnrelay relays streams of structured log-like records into a
// Groonga engine. Records arrive as tagged batches; plain records are
// batched into load commands against a lazily discovered schema, while
// records tagged with the reserved command prefix execute as explicit
// engine commands in arrival order.
//
// The engine is reached either over HTTP or by spawning it locally and
// speaking its line-oriented command protocol over dedicated pipes; see
// pkg/client for both implementations.
package grnrelay
