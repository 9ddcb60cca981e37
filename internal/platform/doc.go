// Package platform names the running platform the way the plugin registry
// does ("linux-x86_64", "darwin-aarch64", ...) and selects the artifact a
// release publishes for it. It also wraps permission changes that are no-ops
// on Windows.
package platform
