package depcheck

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/logging"
	"github.com/uniconv/uniconv/internal/manifest"
)

// Status is the outcome of checking one dependency.
type Status string

// Dependency statuses.
const (
	StatusSatisfied       Status = "satisfied"
	StatusMissing         Status = "missing"
	StatusVersionMismatch Status = "version-mismatch"
	StatusCheckFailed     Status = "check-failed"
)

// Result is the report line for one dependency.
type Result struct {
	Dependency manifest.Dependency `json:"dependency"`
	Status     Status              `json:"status"`
	Found      string              `json:"found,omitempty"`  // detected version, when known
	Detail     string              `json:"detail,omitempty"` // why the check did not pass
}

// OK reports whether the dependency is satisfied.
func (r Result) OK() bool {
	return r.Status == StatusSatisfied
}

func (r Result) String() string {
	s := fmt.Sprintf("%s: %s", r.Dependency, r.Status)
	if r.Found != "" {
		s += " (found " + r.Found + ")"
	}
	if r.Detail != "" {
		s += ": " + r.Detail
	}
	return s
}

// Report is the ordered result of checking a dependency list.
type Report []Result

// OK reports whether every dependency is satisfied.
func (r Report) OK() bool {
	for _, res := range r {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Problems returns the results that are not satisfied, in order.
func (r Report) Problems() []Result {
	var out []Result
	for _, res := range r {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Err returns ErrDependencyCheckFailed describing the unsatisfied
// dependencies, or nil. It is advisory and never fails an install.
func (r Report) Err() error {
	problems := r.Problems()
	if len(problems) == 0 {
		return nil
	}
	parts := make([]string, len(problems))
	for i, p := range problems {
		parts[i] = p.String()
	}
	return errdefs.Kind(errdefs.ErrDependencyCheckFailed, "%s", strings.Join(parts, "; "))
}

// Probe checks one dependency of the kind it is registered for.
type Probe func(ctx context.Context, run Runner, dep manifest.Dependency) Result

// DefaultTimeout bounds each probe command.
const DefaultTimeout = 10 * time.Second

// Checker is the DependencyChecker.
type Checker struct {
	runner  Runner
	probes  map[manifest.DependencyKind]Probe
	timeout time.Duration
	log     logrus.FieldLogger
}

// Option configures a Checker.
type Option func(*Checker)

// WithRunner replaces the subprocess runner.
func WithRunner(r Runner) Option {
	return func(c *Checker) {
		c.runner = r
	}
}

// WithProbe registers (or replaces) the probe for a dependency kind.
func WithProbe(kind manifest.DependencyKind, p Probe) Option {
	return func(c *Checker) {
		c.probes[kind] = p
	}
}

// WithTimeout bounds each probe command.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithLogger sets the logger used to trace probe commands.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Checker) {
		c.log = log
	}
}

// New creates a Checker with the built-in probes for system, python and
// node dependencies.
func New(opts ...Option) *Checker {
	c := &Checker{
		runner: ExecRunner{},
		probes: map[manifest.DependencyKind]Probe{
			manifest.KindSystem: probeSystem,
			manifest.KindPython: probePython,
			manifest.KindNode:   probeNode,
		},
		timeout: DefaultTimeout,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check evaluates deps in order. It returns a result for every dependency;
// cancellation of ctx marks the remaining ones check-failed.
func (c *Checker) Check(ctx context.Context, deps []manifest.Dependency) Report {
	report := make(Report, 0, len(deps))
	for _, dep := range deps {
		report = append(report, c.checkOne(ctx, dep))
	}
	return report
}

func (c *Checker) checkOne(ctx context.Context, dep manifest.Dependency) Result {
	if err := ctx.Err(); err != nil {
		return failed(dep, "%v", errdefs.FromContext(err))
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	log := c.log.WithField("dependency", dep.Name)
	var res Result
	if dep.Check != "" {
		log.WithField("check", dep.Check).Debug("running custom dependency check")
		res = c.custom(ctx, dep)
	} else if probe, ok := c.probes[dep.Kind]; ok {
		log.WithField("kind", dep.Kind).Debug("probing dependency")
		res = probe(ctx, c.runner, dep)
	} else {
		res = failed(dep, "no probe for dependency type %q", dep.Kind)
	}
	res.Dependency = dep
	log.WithField("status", res.Status).Debug("dependency checked")
	return res
}

// custom runs a declared check command. Only the exit status matters: 0 is
// satisfied, and a shell reporting the command could not be run is
// check-failed rather than missing.
func (c *Checker) custom(ctx context.Context, dep manifest.Dependency) Result {
	shell, args := shellCommand(dep.Check)
	_, code, err := c.runner.Run(ctx, shell, args...)
	switch {
	case err != nil:
		return failed(dep, "running check: %v", err)
	case code == 0:
		return Result{Dependency: dep, Status: StatusSatisfied}
	case commandUnavailable(code):
		return failed(dep, "check command could not be run (exit %d)", code)
	default:
		return Result{Dependency: dep, Status: StatusMissing, Detail: fmt.Sprintf("check exited %d", code)}
	}
}

func failed(dep manifest.Dependency, format string, args ...any) Result {
	return Result{Dependency: dep, Status: StatusCheckFailed, Detail: fmt.Sprintf(format, args...)}
}
