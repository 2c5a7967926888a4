package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/logging"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
)

// Manager is the entry point tying the platform gate, transports,
// materializer and cache together.
type Manager struct {
	tools        map[string]Tool
	registry     Transport
	upstream     Transport
	releases     *ReleaseClient
	materializer *Materializer
	cache        *Cache
	logger       logging.Logger
}

// Config holds configuration for the manager.
type Config struct {
	// CacheRoot is the root of the artifact cache. Required.
	CacheRoot string
	// Scope overrides the npm scope of every tool's platform packages.
	Scope string
	// NPM is the package manager executable used by the registry transport.
	NPM string
	// Token authenticates upstream origin and release API requests.
	Token string
	// Lock enables the cross-process materialization lock.
	Lock bool
	// Tools replaces DefaultTools when non-empty.
	Tools []Tool
	// Logger receives progress and warnings. Nil discards them.
	Logger logging.Logger
	// Clock stamps completion markers. Nil uses RealClock.
	Clock Clock

	// Registry and Upstream override the default transports.
	Registry Transport
	Upstream Transport
	// ReleaseAPI overrides DefaultReleaseAPI.
	ReleaseAPI string
}

// NewManager creates a new manager.
func NewManager(config Config) (*Manager, error) {
	if config.CacheRoot == "" {
		return nil, fmt.Errorf("CacheRoot is required")
	}

	logger := logging.OrNop(config.Logger)

	tools := config.Tools
	if len(tools) == 0 {
		tools = DefaultTools()
	}
	byName := make(map[string]Tool, len(tools))
	for _, tool := range tools {
		tool.Table = tool.Table.WithScope(config.Scope)
		byName[tool.Name()] = tool
	}

	registry := config.Registry
	if registry == nil {
		registry = NewRegistryTransport(config.NPM, logger)
	}
	upstream := config.Upstream
	if upstream == nil {
		upstream = NewURLTransport(config.Token, logger)
	}

	clock := config.Clock
	if clock == nil {
		clock = RealClock{}
	}

	cache, err := NewCache(config.CacheRoot, registry,
		WithLogger(logger),
		WithClock(clock),
		WithLock(config.Lock),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Manager{
		tools:        byName,
		registry:     registry,
		upstream:     upstream,
		releases:     NewReleaseClient(config.ReleaseAPI, config.Token),
		materializer: NewMaterializer(logger),
		cache:        cache,
		logger:       logger,
	}, nil
}

// Cache returns the manager's artifact cache.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// Tool returns a configured tool by name.
func (m *Manager) Tool(name string) (Tool, error) {
	tool, ok := m.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool, nil
}

// ResolvePlatformKey maps an os/cpu pair to the tool's platform key.
// Unsupported pairs fail with platform.ErrUnsupportedPlatform.
func (m *Manager) ResolvePlatformKey(toolName, goos, cpu string) (platform.Key, error) {
	tool, err := m.Tool(toolName)
	if err != nil {
		return platform.Key{}, err
	}
	return tool.Table.Resolve(goos, cpu)
}

// FetchArchive fetches the npm platform package for req from the registry.
func (m *Manager) FetchArchive(ctx context.Context, req Request) (*Archive, error) {
	tool, err := m.checkRequest(req)
	if err != nil {
		return nil, err
	}
	return m.registry.Fetch(ctx, Source{
		Package: tool.Table.PackageName(req.Key),
		Version: req.Version,
	})
}

// FetchUpstream downloads the upstream release archive for req.
func (m *Manager) FetchUpstream(ctx context.Context, req Request) (*Archive, error) {
	tool, err := m.checkRequest(req)
	if err != nil {
		return nil, err
	}
	src, err := tool.Upstream(req.Version, req.Key, req.Libc)
	if err != nil {
		return nil, err
	}
	return m.upstream.Fetch(ctx, src)
}

// Materialize unpacks archive into destDir.
func (m *Manager) Materialize(archive *Archive, destDir string, opts UnpackOptions) error {
	return m.materializer.Unpack(archive, destDir, opts)
}

// GetArtifactPath returns the cached payload directory for req,
// materializing it on first use. req.DestDir, when set, replaces the
// cache's version directory and is wiped first unless it already holds a
// completed materialization.
func (m *Manager) GetArtifactPath(ctx context.Context, req Request) (string, error) {
	tool, err := m.checkRequest(req)
	if err != nil {
		return "", err
	}
	if req.DestDir != "" {
		return m.cache.getOrMaterializeAt(ctx, tool, req.Key, req.Version, req.DestDir)
	}
	return m.cache.GetOrMaterialize(ctx, tool, req.Key, req.Version)
}

// Package downloads the upstream release for req and lays its contents
// out as <outDir>/<payload-root>, ready to be published as the platform
// package. The archive's top-level directory is stripped.
func (m *Manager) Package(ctx context.Context, req Request, outDir string) (string, error) {
	tool, err := m.Tool(req.Tool)
	if err != nil {
		return "", err
	}

	archive, err := m.FetchUpstream(ctx, req)
	if err != nil {
		return "", err
	}

	payload := filepath.Join(outDir, filepath.FromSlash(tool.PayloadRoot))
	if err := os.RemoveAll(payload); err != nil {
		return "", ioErr("remove", payload, err)
	}

	if err := m.materializer.Unpack(archive, payload, UnpackOptions{StripComponents: 1}); err != nil {
		os.RemoveAll(payload)
		return "", err
	}

	binary := filepath.Join(payload, filepath.FromSlash(tool.Binary))
	if info, err := os.Stat(binary); err != nil || !info.Mode().IsRegular() {
		os.RemoveAll(payload)
		return "", corruptErr("%s does not contain %s", archive.Name, tool.Binary)
	}

	m.logger.Info("packaged", "tool", tool.Name(), "version", req.Version, "platform", req.Key.String(), "path", payload)
	return payload, nil
}

// LatestRelease returns the newest upstream release tag of a tool.
func (m *Manager) LatestRelease(ctx context.Context, toolName string) (string, error) {
	tool, err := m.Tool(toolName)
	if err != nil {
		return "", err
	}
	if tool.Repo == "" {
		return "", fmt.Errorf("%s has no upstream repository", tool.Name())
	}
	return m.releases.Latest(ctx, tool.Repo)
}

func (m *Manager) checkRequest(req Request) (Tool, error) {
	tool, err := m.Tool(req.Tool)
	if err != nil {
		return Tool{}, err
	}
	if err := ValidateVersion(req.Version); err != nil {
		return Tool{}, err
	}
	if !tool.Table.Supports(req.Key) {
		return Tool{}, fmt.Errorf("%w: %s is not published for %s", platform.ErrUnsupportedPlatform, tool.Name(), req.Key)
	}
	return tool, nil
}
