package artifact

import (
	"time"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
)

// Archive is a downloaded, still-compressed archive held in memory.
// Ownership passes from a Transport to the Materializer.
type Archive struct {
	// Name is the file name the archive was published under.
	Name string
	// Data is the raw compressed bytes.
	Data []byte
}

// Source describes where a Transport should fetch an archive from.
// Registry transports use Package and Version; URL transports use URL and
// Mirror.
type Source struct {
	Package string
	Version string

	// URL is the origin download URL.
	URL string
	// Mirror is tried before URL when set.
	Mirror string
	// ChecksumSuffix, when set, is appended to whichever URL served the
	// archive to locate its SHA256 checksum file (".sha256", ".sha").
	ChecksumSuffix string
	// SignatureSuffix, when set, locates a detached OpenPGP signature.
	SignatureSuffix string
	// Keyring is the armored or binary OpenPGP keyring signatures are
	// checked against. Signatures are only checked when both are set.
	Keyring string
}

// String identifies the source in logs and errors.
func (s Source) String() string {
	if s.Package != "" {
		return s.Package + "@" + s.Version
	}
	return s.URL
}

// Request names one artifact version for one platform.
type Request struct {
	Tool    string
	Key     platform.Key
	Version string
	// Libc selects the upstream C library flavour ("glibc" or "musl").
	// Only consulted by upstream fetches.
	Libc string
	// DestDir overrides the cache location of the version directory.
	// An existing DestDir without a completion marker is removed
	// entirely, unrelated files included, before materializing.
	DestDir string
}

// Record is the completion marker written after a successful
// materialization.
type Record struct {
	Tool           string    `json:"tool"`
	Version        string    `json:"version"`
	Platform       string    `json:"platform"`
	Package        string    `json:"package"`
	Archive        string    `json:"archive"`
	Digest         string    `json:"digest"`
	MaterializedAt time.Time `json:"materialized_at"`
}

// UnpackOptions tunes a single Materializer.Unpack call.
type UnpackOptions struct {
	// StripComponents drops this many leading path elements from every
	// entry, like tar --strip-components.
	StripComponents int
}
