package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/artifact"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
)

// Config is the effective prebuilt configuration.
type Config struct {
	// CacheRoot is the artifact cache root.
	CacheRoot string `json:"cache_root,omitempty"`
	// Scope is the npm scope of platform packages.
	Scope string `json:"scope,omitempty"`
	// NPM is the package manager used for registry fetches.
	NPM string `json:"npm,omitempty"`
	// Lock enables the cross-process materialization lock.
	Lock bool `json:"lock,omitempty"`
	// Tools holds per-tool settings keyed by tool name.
	Tools map[string]ToolConfig `json:"tools,omitempty"`
}

// ToolConfig holds the settings for one tool.
type ToolConfig struct {
	// Version is the platform package version resolved at runtime.
	Version string `json:"version,omitempty"`
	// Upstream is the upstream release packaged at build time.
	Upstream string `json:"upstream,omitempty"`
	// Mirror and Origin replace the built-in upstream base URLs.
	Mirror string `json:"mirror,omitempty"`
	Origin string `json:"origin,omitempty"`
	// Verify toggles upstream checksum verification. Nil means on.
	Verify *bool `json:"verify,omitempty"`
	// Keyring enables OpenPGP signature checks against this file.
	Keyring string `json:"keyring,omitempty"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		CacheRoot: DefaultCacheRoot(),
		Scope:     platform.DefaultScope,
		NPM:       artifact.DefaultNPM,
		Tools:     map[string]ToolConfig{},
	}
}

// DefaultCacheRoot returns the per-user cache directory for prebuilt
// artifacts, falling back to the system temp directory.
func DefaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "prebuilt")
	}
	return filepath.Join(os.TempDir(), "prebuilt")
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		c.CacheRoot = dir
	}
	if npm := os.Getenv(EnvNPM); npm != "" {
		c.NPM = npm
	}
}

// Tool returns the settings for a tool, or the zero value.
func (c *Config) Tool(name string) ToolConfig {
	return c.Tools[name]
}

// ApplyTools returns copies of tools with this configuration's mirror,
// origin, verification, and keyring settings applied.
func (c *Config) ApplyTools(tools []artifact.Tool) []artifact.Tool {
	out := make([]artifact.Tool, 0, len(tools))
	for _, tool := range tools {
		tc, ok := c.Tools[tool.Name()]
		if ok {
			if tc.Mirror != "" {
				tool.Mirror = tc.Mirror
			}
			if tc.Origin != "" {
				tool.Origin = tc.Origin
			}
			if tc.Verify != nil {
				tool.SkipChecksum = !*tc.Verify
			}
			if tc.Keyring != "" {
				tool.Keyring = tc.Keyring
			}
		}
		out = append(out, tool)
	}
	return out
}

// ToolNames returns the configured tool names in sorted order.
func (c *Config) ToolNames() []string {
	names := make([]string, 0, len(c.Tools))
	for name := range c.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// scopePattern matches npm scopes: "@" followed by a lowercase name.
var scopePattern = regexp.MustCompile(`^@[a-z0-9][a-z0-9._-]*$`)

// Validate performs basic validation on a Config.
func (c *Config) Validate() error {
	if c.Scope != "" && !scopePattern.MatchString(c.Scope) {
		return &ValidationError{Field: luaFieldScope, Message: fmt.Sprintf("invalid npm scope %q (expected @name)", c.Scope)}
	}

	if c.CacheRoot != "" && strings.ContainsRune(c.CacheRoot, 0) {
		return &ValidationError{Field: luaFieldCacheRoot, Message: "path contains NUL byte"}
	}

	for _, name := range c.ToolNames() {
		tc := c.Tools[name]
		field := luaFieldTools + "." + name

		if _, err := platform.Lookup(name); err != nil {
			return &ValidationError{Field: field, Message: err.Error()}
		}

		if tc.Version != "" {
			if err := artifact.ValidateVersion(tc.Version); err != nil {
				return &ValidationError{Field: field + "." + luaFieldVersion, Message: err.Error()}
			}
		}

		for key, raw := range map[string]string{luaFieldMirror: tc.Mirror, luaFieldOrigin: tc.Origin} {
			if raw == "" {
				continue
			}
			if err := validateBaseURL(raw); err != nil {
				return &ValidationError{Field: field + "." + key, Message: err.Error()}
			}
		}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

// validateBaseURL accepts absolute http(s) URLs.
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use https:// or http:// scheme (got: %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %s", raw)
	}
	return nil
}
