package platform

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnsupportedPlatform is returned for any os/cpu pair outside a tool's
// supported set. It is fatal: callers must not fall back to another key.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// DefaultScope is the npm scope the platform packages are published under.
const DefaultScope = "@prebuilt-bin"

// Key is the canonical platform identifier, spelled the way node reports
// process.platform and process.arch.
type Key struct {
	OS  string // "darwin", "linux"
	CPU string // "x64", "arm64", "arm"
}

// String returns the "os-cpu" form used in package names and paths.
func (k Key) String() string {
	return k.OS + "-" + k.CPU
}

// ParseKey parses an "os-cpu" string. The result is not checked against
// any table.
func ParseKey(s string) (Key, error) {
	osName, cpu, ok := strings.Cut(s, "-")
	if !ok || osName == "" || cpu == "" {
		return Key{}, fmt.Errorf("%w: malformed platform key %q", ErrUnsupportedPlatform, s)
	}
	arch, err := normalizeArch(cpu)
	if err != nil {
		return Key{}, err
	}
	return Key{OS: normalizeOS(osName), CPU: nodeCPU(arch)}, nil
}

// Table is the closed set of platforms one tool is published for.
type Table struct {
	// Tool is the artifact name, used as the package name prefix.
	Tool string
	// Scope is the npm scope, including the leading "@".
	Scope string
	// Keys lists every supported platform.
	Keys []Key
}

// Patchelf is the platform table for the xPack patchelf build.
var Patchelf = Table{
	Tool:  "patchelf",
	Scope: DefaultScope,
	Keys: []Key{
		{OS: "darwin", CPU: "x64"},
		{OS: "darwin", CPU: "arm64"},
		{OS: "linux", CPU: "x64"},
		{OS: "linux", CPU: "arm64"},
		{OS: "linux", CPU: "arm"},
	},
}

// Python is the platform table for the standalone CPython build.
var Python = Table{
	Tool:  "python",
	Scope: DefaultScope,
	Keys: []Key{
		{OS: "linux", CPU: "x64"},
		{OS: "linux", CPU: "arm64"},
	},
}

// Lookup returns the built-in table for a tool name.
func Lookup(tool string) (Table, error) {
	switch tool {
	case Patchelf.Tool:
		return Patchelf, nil
	case Python.Tool:
		return Python, nil
	default:
		return Table{}, fmt.Errorf("unknown tool: %s", tool)
	}
}

// WithScope returns a copy of the table publishing under another scope.
func (t Table) WithScope(scope string) Table {
	if scope != "" {
		t.Scope = scope
	}
	return t
}

// Resolve maps an os/cpu pair to a supported key. Both Go spellings
// ("amd64") and node spellings ("x64") are accepted. Pairs not in the
// table fail with ErrUnsupportedPlatform.
func (t Table) Resolve(goos, cpu string) (Key, error) {
	arch, err := normalizeArch(cpu)
	if err != nil {
		return Key{}, fmt.Errorf("%s: %w", t.Tool, err)
	}
	key := Key{OS: normalizeOS(goos), CPU: nodeCPU(arch)}
	if !t.Supports(key) {
		return Key{}, fmt.Errorf("%w: %s is not published for %s", ErrUnsupportedPlatform, t.Tool, key)
	}
	return key, nil
}

// Supports reports whether key is in the table.
func (t Table) Supports(key Key) bool {
	return slices.Contains(t.Keys, key)
}

// PackageName returns the npm package carrying the tool for key, e.g.
// "@prebuilt-bin/python-linux-x64".
func (t Table) PackageName(key Key) string {
	name := fmt.Sprintf("%s-%s", t.Tool, key)
	if t.Scope == "" {
		return name
	}
	return t.Scope + "/" + name
}
