// Package handlers provides the HTTP handlers of the gallery API.
//
// It includes handlers for:
//   - Gallery listing and paginated gallery images
//   - Search across galleries
//   - Resized image bytes and image metadata
//   - The cache refresh webhook
//   - Health, readiness, version and Prometheus metrics
//
// Query parameters are decoded with gorilla/schema. Errors are logged with
// their detail and answered with a generic JSON body.
package handlers
