package install

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/uniconv/uniconv/internal/manifest"
)

// Target is one plugin to install, as parsed from "name[@version]".
type Target struct {
	Name    string
	Version string
}

// ParseTargets parses "name[@version]" arguments.
func ParseTargets(args []string) []Target {
	out := make([]Target, len(args))
	for i, a := range args {
		out[i].Name, out[i].Version = manifest.ParseTarget(a)
	}
	return out
}

// Outcome pairs a target with its result or error.
type Outcome struct {
	Target Target
	Result *Result
	Err    error
}

// InstallMany installs targets independently with at most jobs running at
// once. A failing plugin does not stop the others. Outcomes are returned in
// target order; the error aggregates every failure.
func (e *Engine) InstallMany(ctx context.Context, targets []Target, jobs int, opts Options) ([]Outcome, error) {
	return e.each(ctx, targets, jobs, func(ctx context.Context, t Target) (*Result, error) {
		return e.Install(ctx, t.Name, t.Version, opts)
	})
}

// UpdateMany updates the named plugins the same way InstallMany installs.
func (e *Engine) UpdateMany(ctx context.Context, names []string, jobs int, opts Options) ([]Outcome, error) {
	targets := make([]Target, len(names))
	for i, n := range names {
		targets[i] = Target{Name: n, Version: manifest.VersionLatest}
	}
	return e.each(ctx, targets, jobs, func(ctx context.Context, t Target) (*Result, error) {
		return e.Update(ctx, t.Name, opts)
	})
}

func (e *Engine) each(ctx context.Context, targets []Target, jobs int, fn func(context.Context, Target) (*Result, error)) ([]Outcome, error) {
	if jobs < 1 {
		jobs = 1
	}
	outcomes := make([]Outcome, len(targets))

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, t := range targets {
		i, t := i, t // per-iteration copies (go 1.22 loopvar semantics)
		outcomes[i].Target = t
		g.Go(func() error {
			outcomes[i].Result, outcomes[i].Err = fn(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	var merr *multierror.Error
	for _, o := range outcomes {
		if o.Err != nil {
			merr = multierror.Append(merr, o.Err)
		}
	}
	return outcomes, merr.ErrorOrNil()
}
