// Package middleware provides the HTTP middleware chain of the gallery
// service.
//
// It includes:
//   - Request IDs (X-Request-ID), generated with uuid when absent
//   - Access logging in W3C Extended Log Format
//   - Prometheus request metrics labeled by route template
//   - Per-client token bucket rate limiting with 429 and Retry-After
//   - gzip compression of JSON responses
package middleware
