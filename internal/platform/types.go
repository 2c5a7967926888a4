// Package platform identifies the host a prebuilt artifact is selected for.
//
// It maps an (operating system, CPU architecture) pair onto the canonical
// node-style key used in downstream npm package names ("linux-x64",
// "darwin-arm64"), gates every lookup against a closed per-tool table, and
// detects the running host. Linux distribution details come from gopsutil
// and are used to pick the libc flavour of upstream archives.
package platform

import "context"

// Linux distribution family constants.
// These represent canonical family names for grouping related distributions.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyGentoo  = "gentoo"  // Gentoo
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// C library flavours reported by Info.Libc.
const (
	LibcGlibc = "glibc"
	LibcMusl  = "musl"
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // "amd64", "arm64", "arm" (normalized GOARCH)
	ArchRaw  string // original GOARCH
	Platform string // distro ID (Linux only, e.g., "ubuntu", "alpine")
	Family   string // canonical family (e.g., "debian", "alpine")
	Version  string // distro version (Linux only, e.g., "22.04")
}

// Key returns the node-style platform key of the detected host.
// The key is not checked against any table; use Table.Resolve for that.
func (i *Info) Key() Key {
	return Key{OS: i.OS, CPU: nodeCPU(i.Arch)}
}

// Libc reports the C library the host most likely links against.
// Only Alpine is known to ship musl; everything else is assumed glibc.
func (i *Info) Libc() string {
	if i.OS == "linux" && i.Family == FamilyAlpine {
		return LibcMusl
	}
	return LibcGlibc
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// IsARM returns true if the architecture is 32-bit arm.
func (i *Info) IsARM() bool {
	return i.Arch == "arm"
}

// IsAlpine returns true if the Linux distribution is Alpine.
func (i *Info) IsAlpine() bool {
	return i.OS == "linux" && i.Family == FamilyAlpine
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. It lets callers pin the target
// platform (for example when packaging for another host).
type StaticDetector struct {
	Info *Info
}

// Detect returns the configured Info.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	return s.Info, nil
}
