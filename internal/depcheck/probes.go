package depcheck

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"

	"github.com/uniconv/uniconv/internal/manifest"
)

var versionPattern = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:[-+][0-9A-Za-z.-]+)?`)

// extractVersion finds the first version-looking token in probe output,
// e.g. "ffmpeg version 6.1.1-3ubuntu5" yields 6.1.1-3ubuntu5.
func extractVersion(output []byte) (*semver.Version, string) {
	raw := versionPattern.Find(output)
	if raw == nil {
		return nil, ""
	}
	v, err := semver.NewVersion(string(raw))
	if err != nil {
		return nil, string(raw)
	}
	return v, string(raw)
}

// compare turns a detected version into a result against the declared
// constraint.
func compare(dep manifest.Dependency, output []byte) Result {
	if dep.Version == "" {
		return Result{Dependency: dep, Status: StatusSatisfied}
	}
	c, err := manifest.ParseConstraint(dep.Version)
	if err != nil {
		return failed(dep, "invalid version constraint %q: %v", dep.Version, err)
	}
	v, raw := extractVersion(output)
	if v == nil {
		return failed(dep, "could not determine installed version")
	}
	// Prerelease suffixes such as distro build tags would otherwise fail
	// plain constraints.
	core, _ := semver.NewVersion(fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch()))
	if c.Check(v) || c.Check(core) {
		return Result{Dependency: dep, Status: StatusSatisfied, Found: raw}
	}
	return Result{Dependency: dep, Status: StatusVersionMismatch, Found: raw, Detail: "want " + dep.Version}
}

// probeSystem checks that an executable is on the path and, when a
// constraint is declared, that "<name> --version" reports a matching version.
func probeSystem(ctx context.Context, run Runner, dep manifest.Dependency) Result {
	path, err := run.LookPath(dep.Name)
	if err != nil {
		return Result{Dependency: dep, Status: StatusMissing, Detail: "not found on PATH"}
	}
	if dep.Version == "" {
		return Result{Dependency: dep, Status: StatusSatisfied}
	}
	out, code, err := run.Run(ctx, path, "--version")
	if err != nil || code != 0 {
		return failed(dep, "%s --version failed", dep.Name)
	}
	return compare(dep, out)
}

// interpreter returns the first of candidates found on the path.
func interpreter(run Runner, candidates ...string) (string, bool) {
	for _, c := range candidates {
		if p, err := run.LookPath(c); err == nil {
			return p, true
		}
	}
	return "", false
}

const pythonVersionScript = "import sys, importlib.metadata as m; print(m.version(sys.argv[1]))"

// probePython checks that a Python package is importable metadata-wise in
// the default interpreter.
func probePython(ctx context.Context, run Runner, dep manifest.Dependency) Result {
	py, ok := interpreter(run, "python3", "python")
	if !ok {
		return failed(dep, "no python interpreter on PATH")
	}
	out, code, err := run.Run(ctx, py, "-c", pythonVersionScript, dep.Name)
	if err != nil {
		return failed(dep, "running python: %v", err)
	}
	if code != 0 {
		return Result{Dependency: dep, Status: StatusMissing, Detail: "python package not installed"}
	}
	return compare(dep, out)
}

const nodeVersionScript = "require(process.argv[1] + '/package.json').version"

// probeNode checks that a Node.js package resolves from the default module
// paths.
func probeNode(ctx context.Context, run Runner, dep manifest.Dependency) Result {
	node, ok := interpreter(run, "node")
	if !ok {
		return failed(dep, "node is not on PATH")
	}
	out, code, err := run.Run(ctx, node, "-p", nodeVersionScript, dep.Name)
	if err != nil {
		return failed(dep, "running node: %v", err)
	}
	if code != 0 {
		return Result{Dependency: dep, Status: StatusMissing, Detail: "node package not installed"}
	}
	return compare(dep, out)
}
