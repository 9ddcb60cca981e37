// Package errdefs defines the error kinds surfaced by the plugin engine and
// the OpError wrapper that attaches the failing operation and plugin name.
// Callers test kinds with errors.Is; the CLI maps kinds to exit codes.
package errdefs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrMalformedData         = errors.New("malformed data")
	ErrUnknownCollection     = errors.New("unknown collection")
	ErrCyclicCollection      = errors.New("cyclic collection")
	ErrNoArtifactForPlatform = errors.New("no artifact for platform")
	ErrIntegrityMismatch     = errors.New("integrity mismatch")
	ErrDependencyCheckFailed = errors.New("dependency check failed")
	ErrInstallInProgress     = errors.New("install in progress")
	ErrNotInstalled          = errors.New("not installed")
	ErrNetwork               = errors.New("network error")
	ErrCancelled             = errors.New("cancelled")
)

// OpError records the operation and plugin that produced Err.
type OpError struct {
	Op     string // e.g. "install", "fetch manifest"
	Plugin string
	Err    error
}

func (e *OpError) Error() string {
	if e.Plugin == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Plugin + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// Op wraps err with operation context. A nil err stays nil.
func Op(op, plugin string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Plugin: plugin, Err: err}
}

// Kind wraps a sentinel with a formatted detail message, keeping the
// sentinel reachable through errors.Is.
func Kind(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// FromContext converts context cancellation into ErrCancelled while keeping
// the original context error in the chain.
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}

// Exit codes returned by the CLI for each error kind.
const (
	ExitOK = iota
	ExitGeneric
	ExitNotFound
	ExitMalformedData
	ExitUnknownCollection
	ExitCyclicCollection
	ExitNoArtifact
	ExitIntegrity
	ExitDependency
	ExitInProgress
	ExitNotInstalled
	ExitNetwork
	ExitCancelled
)

var exitCodes = []struct {
	kind error
	code int
}{
	{ErrCancelled, ExitCancelled},
	{ErrIntegrityMismatch, ExitIntegrity},
	{ErrMalformedData, ExitMalformedData},
	{ErrUnknownCollection, ExitUnknownCollection},
	{ErrCyclicCollection, ExitCyclicCollection},
	{ErrNoArtifactForPlatform, ExitNoArtifact},
	{ErrDependencyCheckFailed, ExitDependency},
	{ErrInstallInProgress, ExitInProgress},
	{ErrNotInstalled, ExitNotInstalled},
	{ErrNotFound, ExitNotFound},
	{ErrNetwork, ExitNetwork},
}

// ExitCode maps err to a process exit code. Unknown errors map to ExitGeneric.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, ec := range exitCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return ExitGeneric
}

// Describe splits err into a one-line summary naming what failed and the
// underlying cause.
func Describe(err error) (summary, cause string) {
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 1 {
		parts := make([]string, len(merr.Errors))
		for i, e := range merr.Errors {
			parts[i] = e.Error()
		}
		return fmt.Sprintf("%d operations failed", len(merr.Errors)), strings.Join(parts, "; ")
	}

	var op *OpError
	if errors.As(err, &op) {
		if op.Plugin == "" {
			return op.Op + " failed", op.Err.Error()
		}
		return op.Op + " " + op.Plugin + " failed", op.Err.Error()
	}
	return err.Error(), ""
}
