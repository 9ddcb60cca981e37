// Package install is the plugin InstallEngine. It downloads a release
// artifact into a staging directory, verifies its SHA-256 digest, extracts
// it, validates the plugin manifest inside, and swaps the result into the
// plugins directory with a single rename. Every step before the swap works on
// staging only, so a failed or cancelled install leaves the previous version
// exactly as it was.
//
// Installs of the same plugin are serialized within the process and across
// processes (lockfile); installs of different plugins run in parallel.
package install
