/*
Package harness drives a fixed set of worker threads through
create, wait, signal, cancel, join and destroy, to stress the interaction
between condition waits, signals and cancellation.

# Scenario

For each of Config.WorkerCount records, in index order, the controller
initializes the record's condition variable and mutex and spawns a worker.
Each worker locks its mutex and waits on its condition in a loop; every
wake, signaled or spurious, leads back to waiting. After
Config.StartupDelay the controller, again in index order, locks, signals,
unlocks, requests cancellation, joins, and only then destroys the record's
primitives.

The order signal, cancel, join, destroy is preserved exactly. Join always
returns before destroy; destroying a record whose handle is still set is a
fatal error.

# Errors

Failed primitives go to Config.FatalHandler, which aborts the process by
default. A worker that cannot be spawned for lack of thread resources is
reported as types.ErrSpawnFailed from Run, after Config.SpawnAttempts
tries when that is above one. Workers already started are
left waiting unless Config.CleanupOnSpawnFailure is set; Shutdown releases
them.

# Usage

	h, err := harness.New(harness.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	if err := h.Run(context.Background()); err != nil {
		log.Fatal(err)
	}

Repeated runs:

	result, err := harness.Stress(ctx, config, 1000)
*/
package harness
