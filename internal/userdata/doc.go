// Package userdata describes the on-disk layout of installed plugins: one
// directory per plugin under the plugins root, plus reserved dot-directories
// for install records, staging areas and per-plugin lock files.
package userdata
