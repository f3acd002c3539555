// Copyright (c) SwarmFlow Authors.
// Licensed under the MIT License.

/*
Package transport connects remote export workers to an in-process
coordinator over websockets.

The Gateway listens on an HTTP endpoint and upgrades each authenticated
worker connection to a websocket session. A connecting agent presents an
HS256 bearer token minted with the gateway's shared secret, then introduces
its worker in a hello frame; the gateway answers with a welcome and from
that point on drives the worker through seq-correlated request frames.
Every admitted worker surfaces as an exchange.Handle, so the coordinator
treats remote and in-process workers identically.

The Agent side is a single call: ServeWorker dials the gateway,
authenticates, and serves exchange, reset, and best requests against a
local ExportWorker until the run ends or the context is cancelled.

Batches cross the wire by value through their JSON codec; a malformed
batch fails decoding at the boundary and never reaches the worker or the
parameter server. Inbound frames on the gateway side are rate limited per
connection.
*/
package transport
