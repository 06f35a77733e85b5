/*
Package filesystem wraps filesystem reads with retry logic for NFS stale file
handle errors.

The local gallery backend is often an NFS or SMB mount of the same photo
share the SharePoint drive syncs from. Such mounts return ESTALE for a short
while after files are replaced on the server. Stat, ReadDir, ReadFile and
Open retry those errors with exponential backoff and fail immediately on
anything else:

	info, err := filesystem.Stat(ctx, "/mnt/galleries/20240502 Barracca")

Defaults are 3 retries starting at 50ms and capped at 500ms. Retry runs any
operation under a custom RetryConfig. Retries and stale errors are counted
in the gallery_index_filesystem_* metrics.
*/
package filesystem
