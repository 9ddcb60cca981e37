// Package manifest models the plugin registry documents (index, per-plugin
// manifest, collections) and the manifest shipped inside an installed plugin.
// Every document is checked against an embedded JSON Schema and the
// invariants the schema cannot express before it is decoded; a document that
// fails any check is rejected whole with errdefs.ErrMalformedData.
package manifest
