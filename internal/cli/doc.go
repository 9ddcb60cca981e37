// Package cli defines the Cobra command tree for the uniconv CLI. Each file
// registers one command (plugin install, plugin list, collections, etc.)
// with its parent. Commands build the registry store and install engine from
// the loaded configuration and only handle flag parsing and output.
package cli
