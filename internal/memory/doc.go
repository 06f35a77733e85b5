// Package memory sizes the Go soft memory limit for containers.
//
// GOMAXPROCS follows cgroup CPU limits on its own, GOMEMLIMIT does not. The
// service holds image bytes in the query cache and resizes through libvips,
// so without a limit the heap can grow past the container budget before
// the collector reacts. [ConfigureFromEnv] derives the limit from the
// container limit exposed through the Kubernetes Downward API:
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
//	  - name: MEMORY_RATIO
//	    value: "0.8"
//
// An explicit GOMEMLIMIT always takes precedence.
package memory
