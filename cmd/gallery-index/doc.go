// Command gallery-index serves photo galleries mirrored from a SharePoint
// drive (or a local directory) through a SQLite index and an in-process
// query cache.
//
// # Application Lifecycle
//
//  1. Memory configuration: GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  2. Configuration loading: defaults, config.yml, then the environment
//  3. Index database: SQLite with WAL and an FTS5 shadow table
//  4. Components:
//     - Remote store: Microsoft Graph or local directory
//     - Image codec: libvips when enabled, pure Go resizing otherwise
//     - Query cache with its janitor
//     - Sync job: full remote to index sync at startup, on an interval and
//     after each accepted cache refresh
//     - Metrics collector
//  5. HTTP servers and middleware
//  6. Graceful shutdown on SIGINT/SIGTERM
//
// # HTTP Servers
//
//  1. Main server (default port 3001): the /api endpoints and the health,
//     liveness, readiness and version probes. Requests pass through request
//     ID, access log, gzip compression and per-client rate limiting.
//
//  2. Metrics server (default port 9090, optional): /metrics and /health.
//
// See package startup for the configuration keys.
package main
