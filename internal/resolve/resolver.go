// Package resolve locates an installed platform binary across the layouts
// different package managers produce.
//
// A Resolver holds an ordered list of Strategy values and returns the
// first regular file any of them finds. The built-in strategies cover
// nested npm installs, hoisted installs, the pnpm virtual store, and a
// plain directory such as the artifact cache.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/artifact"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/logging"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
)

// ErrNotFound reports that no strategy found the platform binary.
var ErrNotFound = errors.New("binary not found")

// Handle is a resolved binary. It is recomputed on every call and never
// persisted.
type Handle struct {
	// Path is the absolute path of the executable.
	Path string
	// Root is the payload directory containing it, e.g. ".../python".
	Root string
	// Executable reports whether any execute bit is set.
	Executable bool
}

// Resolver finds a tool's binary for a platform key.
type Resolver struct {
	tool       artifact.Tool
	strategies []Strategy
	detector   platform.Detector
	logger     logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDetector sets the detector used by ResolveInstalled.
func WithDetector(d platform.Detector) Option {
	return func(r *Resolver) {
		r.detector = d
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = logging.OrNop(logger)
	}
}

// NewResolver creates a resolver for tool trying strategies in order.
func NewResolver(tool artifact.Tool, strategies []Strategy, opts ...Option) *Resolver {
	r := &Resolver{
		tool:       tool,
		strategies: strategies,
		detector:   platform.NewDetector(),
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveBinary returns the tool's binary for key from the first strategy
// that finds it. Unsupported keys fail with platform.ErrUnsupportedPlatform;
// a supported key with no installed package fails with ErrNotFound.
func (r *Resolver) ResolveBinary(key platform.Key) (Handle, error) {
	return r.resolve(key, "")
}

// ResolveVersion is ResolveBinary with the package version pinned, which
// lets store layouts holding several versions pick the right one.
func (r *Resolver) ResolveVersion(key platform.Key, version string) (Handle, error) {
	return r.resolve(key, version)
}

// ResolveInstalled resolves the binary for the running host.
func (r *Resolver) ResolveInstalled(ctx context.Context) (Handle, error) {
	info, err := r.detector.Detect(ctx)
	if err != nil {
		return Handle{}, fmt.Errorf("detect platform: %w", err)
	}
	return r.ResolveBinary(info.Key())
}

func (r *Resolver) resolve(key platform.Key, version string) (Handle, error) {
	if !r.tool.Table.Supports(key) {
		return Handle{}, fmt.Errorf("%w: %s is not published for %s", platform.ErrUnsupportedPlatform, r.tool.Name(), key)
	}

	target := Target{
		Package: r.tool.Table.PackageName(key),
		Version: version,
		Binary:  r.tool.PackagePath(),
	}

	for _, strategy := range r.strategies {
		p, ok := strategy.Locate(target)
		if !ok {
			r.logger.Debug("no match", "strategy", fmt.Sprintf("%T", strategy), "package", target.Package)
			continue
		}
		return newHandle(p, r.tool.Binary)
	}

	return Handle{}, fmt.Errorf("%w: %s for %s; the optional dependency %s may not have been installed (check that optional dependencies are not omitted and reinstall)",
		ErrNotFound, r.tool.Name(), key, target.Package)
}

func newHandle(p, binary string) (Handle, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return Handle{}, fmt.Errorf("resolve %s: %w", p, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %w", ErrNotFound, abs, err)
	}

	root := abs
	for range strings.Split(binary, "/") {
		root = filepath.Dir(root)
	}

	return Handle{
		Path:       abs,
		Root:       root,
		Executable: info.Mode().Perm()&0o111 != 0,
	}, nil
}
