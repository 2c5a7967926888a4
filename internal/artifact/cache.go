package artifact

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/lock"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/logging"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
)

const (
	// MarkerFile is the completion marker at the root of a version directory.
	MarkerFile = ".prebuilt.json"
	// PackageDir is the directory npm tarballs unpack into.
	PackageDir = "package"

	locksDir = ".locks"
)

// Cache materializes npm platform packages under an explicit root:
//
//	<root>/<tool>/<version>/package/<payload-root>/...
//	<root>/<tool>/<version>/.prebuilt.json
//
// A version directory is trusted only when its marker exists. The marker
// is written after everything else, so a missing marker means the
// directory is discarded and rebuilt from scratch.
type Cache struct {
	root         string
	transport    Transport
	materializer *Materializer
	logger       logging.Logger
	clock        Clock
	locking      bool
	pollInterval time.Duration
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(logger logging.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logging.OrNop(logger)
	}
}

// WithClock sets the clock used to stamp markers.
func WithClock(clock Clock) CacheOption {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithLock serializes first materialization of a version across processes
// sharing the root. Off by default.
func WithLock(enabled bool) CacheOption {
	return func(c *Cache) {
		c.locking = enabled
	}
}

// WithPollInterval sets how often a held lock is retried.
func WithPollInterval(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewCache creates a cache rooted at root that fetches through transport.
func NewCache(root string, transport Transport, opts ...CacheOption) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	c := &Cache{
		root:         root,
		transport:    transport,
		logger:       logging.Nop(),
		clock:        RealClock{},
		pollInterval: lock.DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.materializer = NewMaterializer(c.logger)

	return c, nil
}

// Root returns the cache root.
func (c *Cache) Root() string {
	return c.root
}

// VersionDir returns the directory holding one materialized version.
func (c *Cache) VersionDir(tool, version string) string {
	return filepath.Join(c.root, tool, version)
}

// PayloadPath returns the payload directory inside a version directory.
func PayloadPath(versionDir string, tool Tool) string {
	return filepath.Join(versionDir, PackageDir, filepath.FromSlash(tool.PayloadRoot))
}

// GetOrMaterialize returns the payload directory for tool at version,
// fetching and unpacking the platform package only when no completion
// marker exists.
func (c *Cache) GetOrMaterialize(ctx context.Context, tool Tool, key platform.Key, version string) (string, error) {
	if err := ValidateVersion(version); err != nil {
		return "", err
	}
	return c.getOrMaterializeAt(ctx, tool, key, version, c.VersionDir(tool.Name(), version))
}

func (c *Cache) getOrMaterializeAt(ctx context.Context, tool Tool, key platform.Key, version, versionDir string) (string, error) {
	if !tool.Table.Supports(key) {
		return "", fmt.Errorf("%w: %s is not published for %s", platform.ErrUnsupportedPlatform, tool.Name(), key)
	}

	payload := PayloadPath(versionDir, tool)
	if c.complete(versionDir) {
		c.logger.Debug("cache hit", "tool", tool.Name(), "version", version, "path", payload)
		return payload, nil
	}

	if c.locking {
		held, err := lock.Wait(ctx, filepath.Join(c.root, tool.Name(), locksDir), version, c.pollInterval)
		if err != nil {
			return "", fmt.Errorf("lock %s@%s: %w", tool.Name(), version, err)
		}
		defer func() {
			if err := held.Release(); err != nil {
				c.logger.Warn("release lock failed", "path", held.Path(), "error", err)
			}
		}()

		// Another process may have finished while we waited
		if c.complete(versionDir) {
			return payload, nil
		}
	}

	if err := c.materialize(ctx, tool, key, version, versionDir); err != nil {
		if rmErr := os.RemoveAll(versionDir); rmErr != nil {
			c.logger.Error("rollback failed", "path", versionDir, "error", rmErr)
		}
		return "", err
	}

	return payload, nil
}

// materialize runs FETCHING and MATERIALIZING and writes the marker.
func (c *Cache) materialize(ctx context.Context, tool Tool, key platform.Key, version, versionDir string) error {
	// Whatever is here has no marker and cannot be trusted
	if err := os.RemoveAll(versionDir); err != nil {
		return ioErr("remove stale", versionDir, err)
	}

	src := Source{
		Package: tool.Table.PackageName(key),
		Version: version,
	}

	c.logger.Info("materializing", "tool", tool.Name(), "version", version, "platform", key.String(), "source", src.String())

	archive, err := c.transport.Fetch(ctx, src)
	if err != nil {
		return err
	}

	if err := c.materializer.Unpack(archive, versionDir, UnpackOptions{}); err != nil {
		return err
	}

	payload := PayloadPath(versionDir, tool)
	info, err := os.Stat(payload)
	if err != nil || !info.IsDir() {
		return corruptErr("%s has no %s/%s directory", archive.Name, PackageDir, tool.PayloadRoot)
	}

	record := Record{
		Tool:           tool.Name(),
		Version:        version,
		Platform:       key.String(),
		Package:        src.Package,
		Archive:        archive.Name,
		Digest:         Digest(archive.Data),
		MaterializedAt: c.clock.Now(),
	}
	return writeMarker(versionDir, record)
}

// complete reports whether versionDir holds a readable marker.
func (c *Cache) complete(versionDir string) bool {
	_, err := readMarker(versionDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("ignoring unreadable marker", "path", versionDir, "error", err)
	}
	return err == nil
}

// Record returns the completion marker of a materialized version.
// It returns an error wrapping os.ErrNotExist when the version is not
// materialized.
func (c *Cache) Record(tool, version string) (*Record, error) {
	return readMarker(c.VersionDir(tool, version))
}

// Versions lists the fully materialized versions of tool.
func (c *Cache) Versions(tool string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, tool))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ioErr("read", filepath.Join(c.root, tool), err)
	}

	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if c.complete(filepath.Join(c.root, tool, entry.Name())) {
			versions = append(versions, entry.Name())
		}
	}
	return versions, nil
}

// Prune removes every version directory of tool not named in keep,
// including incomplete ones. It returns the removed versions.
func (c *Cache) Prune(tool string, keep []string) ([]string, error) {
	toolDir := filepath.Join(c.root, tool)
	entries, err := os.ReadDir(toolDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ioErr("read", toolDir, err)
	}

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || slices.Contains(keep, name) {
			continue
		}
		dir := filepath.Join(toolDir, name)
		if err := os.RemoveAll(dir); err != nil {
			return removed, ioErr("remove", dir, err)
		}
		c.logger.Info("pruned", "tool", tool, "version", name)
		removed = append(removed, name)
	}
	return removed, nil
}

// Digest returns the BLAKE3 hex digest recorded for archive bytes.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func readMarker(versionDir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(versionDir, MarkerFile))
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse marker: %w", err)
	}
	if record.Version == "" {
		return nil, fmt.Errorf("parse marker: missing version")
	}
	return &record, nil
}

// writeMarker writes the marker through a temp file and rename so a crash
// never leaves a truncated marker behind.
func writeMarker(versionDir string, record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}

	tmp, err := os.CreateTemp(versionDir, MarkerFile+".tmp-*")
	if err != nil {
		return ioErr("create", versionDir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ioErr("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ioErr("close", tmpPath, err)
	}

	markerPath := filepath.Join(versionDir, MarkerFile)
	if err := os.Rename(tmpPath, markerPath); err != nil {
		os.Remove(tmpPath)
		return ioErr("rename", markerPath, err)
	}
	return nil
}
