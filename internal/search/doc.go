/*
Package search implements gallery and image search.

A search first narrows the gallery list with the date range and the
year/month buckets, then runs in two tiers:

 1. Galleries whose name or display name contains the query contribute
    every image they hold.
 2. The remaining galleries contribute only images whose name, display name
    or original filename contains the query.

The union is sorted newest first (capture date, falling back to the
modification time) and sliced into the requested page. With
CollectionsOnly set the matching galleries themselves are paginated and no
images are fetched.

Galleries are fetched concurrently through an errgroup bounded by
workers.ForIO. A gallery that fails to load contributes nothing and the
search continues. Sources that implement TextSearcher, like IndexSource,
evaluate the second tier in one FTS5 query instead of loading every image.
*/
package search
