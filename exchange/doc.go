// Copyright (c) SwarmFlow Authors.
// Licensed under the MIT License.

/*
Package exchange implements the asynchronous candidate exchange protocol at
the core of SwarmFlow.

A run wires three roles together:

  - ExportWorker owns one swarm and performs the import/step/export
    bookkeeping of a single exchange cycle.
  - ParamServer pools exported batches, tracks the global best candidate,
    and answers every exchange with an import batch.
  - Coordinator drives the loop: it keeps one asynchronous exchange step in
    flight per worker, forwards each completed export to the parameter
    server, and hands the returned import batch straight back to the same
    worker. Fast workers never wait for slow ones.

Workers are driven through the Handle interface. LocalHandle runs a worker
on an in-process goroutine; the transport package provides the remote
equivalent over websockets. At most one exchange step may be outstanding
per handle.

The exchange runs exactly MaxIters cycles per worker and then stops; the
best candidate is read from the parameter server afterwards.
*/
package exchange
