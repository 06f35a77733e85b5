/*
Package remote talks to the hierarchical photo store the index mirrors.

The Store interface exposes five calls: list the top-level collections,
list a collection's items, fetch the first file of a collection, fetch a
single item's metadata and download an item's bytes. Two adapters are
provided:

  - Graph reads a SharePoint document library through Microsoft Graph,
    authenticating with the OAuth2 client-credentials flow.
  - Local reads a directory tree on disk. Each subdirectory of the root is a
    collection; item IDs are URL-safe encodings of the relative path.

Errors are classified with the apperr package: unknown IDs become
*apperr.NotFoundError, anything else that prevents an answer becomes
*apperr.RemoteUnavailableError. Every call is timed into the
gallery_index_remote_* metrics.
*/
package remote
