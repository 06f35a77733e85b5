/*
Package workers sizes the bounded fan-outs used by the service.

Worker counts derive from runtime.GOMAXPROCS, which Go 1.19+ sets from the
container CPU limit, rather than runtime.NumCPU, which reports the host.

	// remote listings during sync and search (2 per CPU, at most 16)
	g.SetLimit(workers.ForIO(16))

	// concurrent image resizes (1 per CPU, at most 4)
	sem := make(chan struct{}, workers.ForCPU(4))

# Environment Variable Override

SYNC_WORKERS pins the count for every call, still capped by the limit:

	env:
	- name: SYNC_WORKERS
	  value: "4"

All functions are safe for concurrent use.
*/
package workers
