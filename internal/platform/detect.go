package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// distroFunc reports a Linux host's distribution id, family and version.
type distroFunc func(ctx context.Context) (platform, family, version string, err error)

// RealDetector reports the running host from the Go runtime, plus the Linux
// distribution as seen by gopsutil.
type RealDetector struct {
	goos, goarch string
	distro       distroFunc
}

// NewDetector returns a Detector for the running host.
func NewDetector() Detector {
	return &RealDetector{
		goos:   runtime.GOOS,
		goarch: runtime.GOARCH,
		distro: host.PlatformInformationWithContext,
	}
}

// Detect returns the host's OS and normalized architecture. Info.Key turns
// these into the node-style key that names the platform package.
//
// The distribution is only read on Linux, where it decides Info.Libc. An
// unreadable distribution leaves the distro fields empty, which selects
// glibc archives. A cancelled ctx is an error.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	arch, err := normalizeArch(d.goarch)
	if err != nil {
		return nil, fmt.Errorf("detect %s/%s: %w", d.goos, d.goarch, err)
	}

	info := &Info{OS: d.goos, Arch: arch, ArchRaw: d.goarch}
	if d.goos != "linux" || d.distro == nil {
		return info, nil
	}

	if err := d.detectDistro(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (d *RealDetector) detectDistro(ctx context.Context, info *Info) error {
	id, family, version, err := d.distro(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("detect linux distribution: %w", ctx.Err())
		}
		return nil
	}

	id = normalizePlatform(id)
	if id == "" {
		return nil
	}

	// gopsutil reports Alpine with an empty family
	if family == "" {
		family = id
	}

	info.Platform = id
	info.Family = mapFamily(family)
	info.Version = normalizePlatform(version)
	return nil
}
