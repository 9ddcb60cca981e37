// Package updater finds installed plugins that have a newer release in the
// registry index and prints the "updates available" banner. The banner reads
// only the cached index, so it never waits on the network, and it is shown
// again only when the set of outdated plugins changes or a day has passed.
package updater
