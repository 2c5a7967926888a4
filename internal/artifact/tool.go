package artifact

import (
	"fmt"
	"path"
	"strings"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
)

// Tool describes one redistributed binary: which platforms it ships for,
// where its payload sits inside the npm package, and where upstream
// publishes it.
type Tool struct {
	Table platform.Table
	// PayloadRoot is the directory under "package/" holding the payload.
	PayloadRoot string
	// Binary is the executable path relative to PayloadRoot.
	Binary string
	// Mirror and Origin are upstream release base URLs.
	Mirror string
	Origin string
	// Repo is the GitHub "owner/name" publishing upstream releases.
	Repo string
	// Keyring optionally enables OpenPGP verification of upstream archives.
	Keyring string
	// SkipChecksum disables upstream SHA256 verification.
	SkipChecksum bool

	upstream func(t Tool, version string, key platform.Key, libc string) (Source, error)
}

// Name returns the tool name.
func (t Tool) Name() string {
	return t.Table.Tool
}

// PackagePath returns the executable path relative to the npm package
// root, e.g. "python/bin/python3".
func (t Tool) PackagePath() string {
	return path.Join(t.PayloadRoot, t.Binary)
}

// Upstream returns the download source for an upstream release.
func (t Tool) Upstream(version string, key platform.Key, libc string) (Source, error) {
	if t.upstream == nil {
		return Source{}, fmt.Errorf("%s has no upstream source", t.Name())
	}
	if !t.Table.Supports(key) {
		return Source{}, fmt.Errorf("%w: %s is not published for %s", platform.ErrUnsupportedPlatform, t.Name(), key)
	}
	src, err := t.upstream(t, version, key, libc)
	if err != nil {
		return Source{}, err
	}
	if t.SkipChecksum {
		src.ChecksumSuffix = ""
	}
	if t.Keyring != "" {
		src.Keyring = t.Keyring
		src.SignatureSuffix = ".asc"
	}
	return src, nil
}

// Patchelf is the xPack patchelf distribution.
var Patchelf = Tool{
	Table:       platform.Patchelf,
	PayloadRoot: "patchelf",
	Binary:      "bin/patchelf",
	Mirror:      "https://registry.npmmirror.com/-/binary/xpack-dev-tools/patchelf-xpack",
	Origin:      "https://github.com/xpack-dev-tools/patchelf-xpack/releases/download",
	Repo:        "xpack-dev-tools/patchelf-xpack",
	upstream:    patchelfSource,
}

// Python is the standalone CPython "install_only" distribution.
var Python = Tool{
	Table:       platform.Python,
	PayloadRoot: "python",
	Binary:      "bin/python3",
	Mirror:      "https://registry.npmmirror.com/-/binary/python-build-standalone",
	Origin:      "https://github.com/indygreg/python-build-standalone/releases/download",
	Repo:        "indygreg/python-build-standalone",
	upstream:    pythonSource,
}

// DefaultTools returns the built-in tools.
func DefaultTools() []Tool {
	return []Tool{Patchelf, Python}
}

// patchelfSource builds xPack URLs.
// Pattern: {base}/v{version}/xpack-patchelf-{version}-{os}-{cpu}.tar.gz
func patchelfSource(t Tool, version string, key platform.Key, libc string) (Source, error) {
	if err := ValidateVersion(version); err != nil {
		return Source{}, err
	}

	// xPack spells platforms the node way already
	name := fmt.Sprintf("xpack-patchelf-%s-%s-%s.tar.gz", version, key.OS, key.CPU)
	rel := fmt.Sprintf("v%s/%s", version, name)

	return Source{
		URL:            joinURL(t.Origin, rel),
		Mirror:         joinURL(t.Mirror, rel),
		ChecksumSuffix: ".sha",
	}, nil
}

// pythonSource builds python-build-standalone URLs. The version carries the
// release date as build metadata: "3.9.13+20220802".
// Pattern: {base}/{date}/cpython-{version}-{triple}-install_only.tar.gz
func pythonSource(t Tool, version string, key platform.Key, libc string) (Source, error) {
	if err := ValidateVersion(version); err != nil {
		return Source{}, err
	}

	_, release, ok := strings.Cut(version, "+")
	if !ok || release == "" {
		return Source{}, fmt.Errorf("%w: python version %q must look like 3.9.13+20220802", ErrVersionRequired, version)
	}

	triple, err := pythonTriple(key, libc)
	if err != nil {
		return Source{}, err
	}

	name := fmt.Sprintf("cpython-%s-%s-install_only.tar.gz", version, triple)
	rel := release + "/" + name

	return Source{
		URL:            joinURL(t.Origin, rel),
		Mirror:         joinURL(t.Mirror, rel),
		ChecksumSuffix: ".sha256",
	}, nil
}

// pythonTriple maps a platform key to the target triple python-build-standalone uses
func pythonTriple(key platform.Key, libc string) (string, error) {
	if key.OS != "linux" {
		return "", fmt.Errorf("%w: python is not published for %s", platform.ErrUnsupportedPlatform, key)
	}

	var arch string
	switch key.CPU {
	case "x64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", fmt.Errorf("%w: python is not published for %s", platform.ErrUnsupportedPlatform, key)
	}

	if libc == platform.LibcMusl {
		// Upstream only builds musl for x86_64
		if arch != "x86_64" {
			return "", fmt.Errorf("%w: python has no musl build for %s", platform.ErrUnsupportedPlatform, key)
		}
		return arch + "-unknown-linux-musl", nil
	}
	return arch + "-unknown-linux-gnu", nil
}

func joinURL(base, rel string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + rel
}
