// Package gallery implements the read path of the service and the two
// operations that change cached state.
//
// Service answers gallery listings, gallery image pages, searches and image
// metadata through the query cache. A cache miss is served by the SQLite
// index once a sync has completed, and by the remote store before that.
//
// Invalidator handles the change webhook: it checks the shared secret in
// constant time, then flushes the cache and clears the index.
//
// VariantCache serves resized image bytes. Resizes are cached; when the codec
// cannot resize, the original bytes are served and nothing is cached.
package gallery
