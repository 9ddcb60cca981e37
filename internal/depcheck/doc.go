// Package depcheck evaluates the dependencies a plugin release declares
// against the local system. Checks are advisory: the report says what is
// satisfied, missing, at the wrong version, or could not be checked, and the
// caller decides how to present it. Nothing is ever installed.
//
// Each dependency kind ("system", "python", "node", ...) maps to a Probe. New
// kinds are added with WithProbe without touching the checking loop. A
// declared custom check command replaces the kind's probe entirely.
package depcheck
