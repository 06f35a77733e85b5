// Command refreshcache is an operator CLI for the gallery index service.
//
// Usage:
//
//	refreshcache <command>
//
// Commands:
//
//	refresh  POST /api/refresh-cache with the webhook secret in X-Signature.
//	         The service flushes its query cache, clears the index and
//	         starts a resync. The secret comes from WEBHOOK_SECRET or is
//	         read from the terminal without echo.
//
//	status   Print the /health summary: readiness, sync state and index
//	         counts. Exits non-zero unless the service answers 200.
//
//	hash     Read a secret twice and print its bcrypt hash. The service
//	         accepts a bcrypt hash as WEBHOOK_SECRET so the plain secret
//	         need not be stored in its configuration.
//
// Environment:
//
//	GALLERY_URL     Service base URL (default: http://localhost:3001)
//	WEBHOOK_SECRET  Secret for refresh
package main
