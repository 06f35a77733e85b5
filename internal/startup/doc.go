// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] layers configuration in this order, later layers winning:
//
//  1. Built-in defaults ([DefaultConfig])
//  2. A YAML file named by CONFIG_FILE (default config.yml, optional unless
//     CONFIG_FILE is set explicitly)
//  3. Environment variables
//
// The result is validated and the database directory is created if needed.
// Durations in the environment accept Go syntax ("90s", "1h") or a plain
// number of seconds. Supported variables:
//
//   - PORT, METRICS_PORT, METRICS_ENABLED: HTTP listeners (3001, 9090, true)
//   - DATABASE_PATH: SQLite index file (./data/gallery.db)
//   - WEBHOOK_SECRET: shared secret for POST /api/refresh-cache, plain or bcrypt
//   - REMOTE_BACKEND: graph or local (graph)
//   - AZURE_TENANT_ID, AZURE_CLIENT_ID, AZURE_CLIENT_SECRET: Graph app credentials
//   - SHAREPOINT_SITE_ID, SHAREPOINT_DRIVE_ID, SHAREPOINT_GALLERY_FOLDER_ID: gallery root
//   - LOCAL_GALLERY_DIR: gallery root for the local backend
//   - REMOTE_TIMEOUT: remote HTTP timeout (30s)
//   - SYNC_ENABLED, SYNC_INTERVAL: index sync job (true, 30m)
//   - SYNC_EXTRACT_METADATA: read EXIF from new or changed images during sync (true)
//   - CACHE_TTL_GALLERIES, CACHE_TTL_GALLERY_IMAGES, CACHE_TTL_SEARCH,
//     CACHE_TTL_IMAGES, CACHE_TTL_METADATA: query cache lifetimes
//   - CACHE_CLEANUP_INTERVAL, CACHE_MAX_ENTRIES: cache janitor and bound
//   - RATE_LIMIT_ENABLED, RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW: per-client budget (100 per 60s)
//   - VIPS_ENABLED: resize with libvips when it starts (true)
//   - LOG_HEALTH_CHECKS: include probe requests in the access log (false)
//
// LOG_LEVEL and LOG_FORMAT are read by the logging package itself.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogMemoryConfig], [LogDatabaseInit], [LogRemoteInit], [LogCodecInit]
//   - [LogIndexerInit], [LogIndexerStarted]
//   - [LogHTTPRoutes]: registered routes (debug level)
//   - [LogServerStarted], [LogShutdownInitiated], [LogShutdownStep],
//     [LogShutdownStepComplete], [LogShutdownComplete]
package startup
