package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// archNames maps GOARCH values to the architecture names used in registry
// platform keys.
var archNames = map[string]string{
	"amd64":   "x86_64",
	"arm64":   "aarch64",
	"386":     "x86",
	"arm":     "armv7",
	"riscv64": "riscv64",
	"ppc64le": "ppc64le",
	"s390x":   "s390x",
}

// Key returns the registry platform key for a GOOS/GOARCH pair.
func Key(goos, goarch string) string {
	arch, ok := archNames[goarch]
	if !ok {
		arch = goarch
	}
	return goos + "-" + arch
}

// Current returns the platform key of the running binary.
func Current() string {
	return Key(runtime.GOOS, runtime.GOARCH)
}

// Resolve returns override when set, otherwise the running platform key.
// An override must look like "<os>-<arch>".
func Resolve(override string) (string, error) {
	if override == "" {
		return Current(), nil
	}
	os, arch, ok := strings.Cut(override, "-")
	if !ok || os == "" || arch == "" {
		return "", fmt.Errorf("platform %q is not of the form <os>-<arch>", override)
	}
	return strings.ToLower(override), nil
}

// IsWindows returns true if the current OS is Windows.
func IsWindows() bool {
	return runtime.GOOS == "windows"
}
