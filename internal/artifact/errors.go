package artifact

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport reports a failed registry or HTTP fetch. It is never
	// retried internally.
	ErrTransport = errors.New("transport failure")
	// ErrCorruptArchive reports an archive that could not be decompressed,
	// unpacked, or verified.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrIO reports a filesystem failure while materializing.
	ErrIO = errors.New("i/o failure")
	// ErrVersionRequired reports a missing, floating, or malformed version tag.
	ErrVersionRequired = errors.New("version tag required")
	// ErrUnknownTool reports a tool name with no configured distribution.
	ErrUnknownTool = errors.New("unknown tool")
)

// ValidateVersion rejects tags that cannot pin a reproducible artifact.
// "latest" is refused here; build tooling must resolve it explicitly with
// LatestRelease first.
func ValidateVersion(version string) error {
	switch {
	case strings.TrimSpace(version) == "":
		return ErrVersionRequired
	case version == "latest":
		return fmt.Errorf("%w: %q is not a pinned version", ErrVersionRequired, version)
	case strings.ContainsAny(version, `/\`) || strings.Contains(version, ".."):
		return fmt.Errorf("%w: invalid version %q", ErrVersionRequired, version)
	}
	return nil
}

func transportErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, args...))
}

func corruptErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptArchive, fmt.Sprintf(format, args...))
}

func ioErr(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}
