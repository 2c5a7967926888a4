package resolve

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blang/semver"
)

// Target is what a strategy looks for: a binary inside an installed npm
// package.
type Target struct {
	// Package is the npm package name, e.g. "@prebuilt-bin/python-linux-x64".
	Package string
	// Version optionally pins the package version in store layouts.
	Version string
	// Binary is the executable path relative to the package root.
	Binary string
}

// Strategy probes one install layout. Locate returns the candidate path
// and true when a regular file exists there.
type Strategy interface {
	Locate(target Target) (string, bool)
}

// Nested finds the platform package installed inside the wrapper
// package's own node_modules, as npm does when it cannot hoist.
//
//	<Root>/node_modules/<package>/<binary>
type Nested struct {
	Root string
}

// Locate implements Strategy.
func (n Nested) Locate(target Target) (string, bool) {
	if n.Root == "" {
		return "", false
	}
	return probe(filepath.Join(n.Root, "node_modules", filepath.FromSlash(target.Package), filepath.FromSlash(target.Binary)))
}

// Hoisted walks from Start towards the filesystem root and probes every
// ancestor's node_modules, matching flattened npm and yarn installs.
//
//	<ancestor>/node_modules/<package>/<binary>
type Hoisted struct {
	Start string
}

// Locate implements Strategy.
func (h Hoisted) Locate(target Target) (string, bool) {
	for _, dir := range ancestors(h.Start) {
		if p, ok := probe(filepath.Join(dir, "node_modules", filepath.FromSlash(target.Package), filepath.FromSlash(target.Binary))); ok {
			return p, true
		}
	}
	return "", false
}

// PnpmStore walks from Start towards the filesystem root looking for
// pnpm's virtual store.
//
//	<ancestor>/node_modules/.pnpm/<escaped>@<version>/node_modules/<package>/<binary>
//
// The escaped name replaces "/" with "+". A pinned Version is preferred;
// otherwise the highest store version wins.
type PnpmStore struct {
	Start string
}

// Locate implements Strategy.
func (s PnpmStore) Locate(target Target) (string, bool) {
	escaped := strings.ReplaceAll(target.Package, "/", "+")
	rel := filepath.Join("node_modules", filepath.FromSlash(target.Package), filepath.FromSlash(target.Binary))

	for _, dir := range ancestors(s.Start) {
		store := filepath.Join(dir, "node_modules", ".pnpm")

		if target.Version != "" {
			if p, ok := probe(filepath.Join(store, escaped+"@"+target.Version, rel)); ok {
				return p, true
			}
		}

		entries, err := filepath.Glob(filepath.Join(store, escaped+"@*"))
		if err != nil || len(entries) == 0 {
			continue
		}
		sortNewestFirst(entries, escaped+"@")

		for _, entry := range entries {
			if p, ok := probe(filepath.Join(entry, rel)); ok {
				return p, true
			}
		}
	}
	return "", false
}

// sortNewestFirst orders store entries by the version after prefix,
// highest first. Entries whose version does not parse go last, by name.
func sortNewestFirst(entries []string, prefix string) {
	versions := make(map[string]*semver.Version, len(entries))
	for _, entry := range entries {
		if v, err := parseStoreVersion(strings.TrimPrefix(filepath.Base(entry), prefix)); err == nil {
			versions[entry] = &v
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		vi, vj := versions[entries[i]], versions[entries[j]]
		switch {
		case vi != nil && vj != nil:
			if c := vi.Compare(*vj); c != 0 {
				return c > 0
			}
			return entries[i] > entries[j]
		case vi != nil:
			return true
		case vj != nil:
			return false
		default:
			return entries[i] > entries[j]
		}
	})
}

// parseStoreVersion parses a package version such as
// "3.10.4-install_only.1". Underscores are not valid in semver
// prerelease identifiers and are read as hyphens.
func parseStoreVersion(version string) (semver.Version, error) {
	return semver.ParseTolerant(strings.ReplaceAll(version, "_", "-"))
}

// Directory probes a single package root, such as a cache version's
// "package" directory.
//
//	<Root>/<binary>
type Directory struct {
	Root string
}

// Locate implements Strategy.
func (d Directory) Locate(target Target) (string, bool) {
	if d.Root == "" {
		return "", false
	}
	return probe(filepath.Join(d.Root, filepath.FromSlash(target.Binary)))
}

// DefaultStrategies returns the install layouts probed for a wrapper
// package at wrapperDir, in order: nested, hoisted, pnpm store.
func DefaultStrategies(wrapperDir string) []Strategy {
	return []Strategy{
		Nested{Root: wrapperDir},
		Hoisted{Start: wrapperDir},
		PnpmStore{Start: wrapperDir},
	}
}

// probe reports whether p is a regular file, following symlinks.
func probe(p string) (string, bool) {
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return p, true
}

// ancestors returns start and each of its parents up to the root.
func ancestors(start string) []string {
	if start == "" {
		return nil
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil
	}

	var out []string
	for {
		out = append(out, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			return out
		}
		dir = parent
	}
}
