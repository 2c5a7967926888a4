package artifact

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/logging"
)

// DefaultNPM is the package manager executable used for registry fetches.
const DefaultNPM = "npm"

// RegistryTransport fetches platform packages from the npm registry by
// running "npm pack" and reading the tarball it leaves behind.
type RegistryTransport struct {
	npm    string
	logger logging.Logger
}

// NewRegistryTransport creates a registry transport. An empty npm uses
// DefaultNPM from PATH.
func NewRegistryTransport(npm string, logger logging.Logger) *RegistryTransport {
	if npm == "" {
		npm = DefaultNPM
	}
	return &RegistryTransport{
		npm:    npm,
		logger: logging.OrNop(logger),
	}
}

// Fetch packs src.Package@src.Version into a fresh temporary directory,
// reads the tarball into memory, and removes the directory.
func (r *RegistryTransport) Fetch(ctx context.Context, src Source) (*Archive, error) {
	if src.Package == "" {
		return nil, transportErr("registry source has no package name")
	}
	if err := ValidateVersion(src.Version); err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "prebuilt-pack-*")
	if err != nil {
		return nil, ioErr("create temp dir", os.TempDir(), err)
	}
	defer os.RemoveAll(tmpDir)

	spec := src.Package + "@" + src.Version
	r.logger.Info("packing from registry", "package", spec)

	cmd := exec.CommandContext(ctx, r.npm, "pack", spec, "--silent")
	cmd.Dir = tmpDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: npm pack %s: %w", ErrTransport, spec, ctx.Err())
		}
		return nil, transportErr("npm pack %s: %v: %s", spec, err, strings.TrimSpace(stderr.String()))
	}

	tarballs, err := filepath.Glob(filepath.Join(tmpDir, "*.tgz"))
	if err != nil {
		return nil, ioErr("list", tmpDir, err)
	}
	if len(tarballs) != 1 {
		return nil, transportErr("npm pack %s produced %d tarballs, want 1", spec, len(tarballs))
	}

	data, err := os.ReadFile(tarballs[0])
	if err != nil {
		return nil, ioErr("read", tarballs[0], err)
	}

	r.logger.Debug("packed", "package", spec, "file", filepath.Base(tarballs[0]), "bytes", len(data))

	return &Archive{
		Name: filepath.Base(tarballs[0]),
		Data: data,
	}, nil
}
