// Package registry reads the plugin registry: the lightweight index, the
// per-plugin manifests and the collections document. Reads go through a disk
// cache keyed by source URL that revalidates with ETag / Last-Modified once an
// entry is older than the configured max age, and falls back to the stale copy
// when the registry cannot be reached. The Resolver expands "+collection"
// install targets into plugin names.
package registry
