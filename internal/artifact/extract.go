package artifact

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/logging"
)

// maxLinkDepth bounds nested directory-symlink copies.
const maxLinkDepth = 40

// ExecutableDirs names the directories whose regular files get mode 0755
// after unpacking.
var ExecutableDirs = []string{"bin", "libexec"}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Materializer unpacks archives into real files: symbolic links become
// copies of their targets and binaries regain their execute bit.
type Materializer struct {
	logger logging.Logger
}

// NewMaterializer creates a materializer.
func NewMaterializer(logger logging.Logger) *Materializer {
	return &Materializer{logger: logging.OrNop(logger)}
}

// Unpack decompresses archive and extracts it into destDir.
//
// Decompression and tar errors, path traversal, and links escaping destDir
// are ErrCorruptArchive. Failures writing destDir are ErrIO. On error the
// caller owns cleanup of destDir.
func (m *Materializer) Unpack(archive *Archive, destDir string, opts UnpackOptions) error {
	if archive == nil {
		return corruptErr("archive is nil")
	}

	stream, closeStream, err := decompress(bytes.NewReader(archive.Data))
	if err != nil {
		return fmt.Errorf("%s: %w", archive.Name, err)
	}
	defer closeStream()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return ioErr("create dest dir", destDir, err)
	}

	root, err := filepath.Abs(destDir)
	if err != nil {
		return ioErr("resolve", destDir, err)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return ioErr("resolve", destDir, err)
	}

	if err := m.extract(stream, root, realRoot, opts); err != nil {
		return fmt.Errorf("%s: %w", archive.Name, err)
	}

	// Copies take their target's mode, so targets in executable dirs are
	// fixed first. The second pass covers copies landing in those dirs.
	m.fixPermissions(root)
	if err := m.replaceSymlinks(root, realRoot); err != nil {
		return fmt.Errorf("%s: %w", archive.Name, err)
	}
	m.fixPermissions(root)
	return nil
}

// decompress sniffs the compression format from the magic bytes.
func decompress(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, corruptErr("read header: %v", err)
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gzipReader, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, corruptErr("create gzip reader: %v", err)
		}
		return gzipReader, func() { gzipReader.Close() }, nil

	case bytes.HasPrefix(magic, zstdMagic):
		decoder, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, corruptErr("create zstd reader: %v", err)
		}
		return decoder, decoder.Close, nil

	default:
		return nil, nil, corruptErr("unrecognized compression (want gzip or zstd)")
	}
}

// extract writes every tar entry below root. Symlinks are created as-is and
// replaced afterwards.
func (m *Materializer) extract(stream io.Reader, root, realRoot string, opts UnpackOptions) error {
	tarReader := tar.NewReader(stream)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return corruptErr("read tar header: %v", err)
		}

		name := stripComponents(header.Name, opts.StripComponents)
		if name == "" {
			continue
		}

		target, err := safeJoin(root, name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := mkdirInside(realRoot, target); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := mkdirInside(realRoot, filepath.Dir(target)); err != nil {
				return err
			}
			if err := writeEntry(target, tarReader, fileMode(header.Mode)); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := checkLinkTarget(root, target, header.Linkname); err != nil {
				return err
			}
			if err := mkdirInside(realRoot, filepath.Dir(target)); err != nil {
				return err
			}
			if err := removeExisting(target); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return ioErr("create symlink", target, err)
			}

		case tar.TypeLink:
			linkName := stripComponents(header.Linkname, opts.StripComponents)
			if linkName == "" {
				return corruptErr("hard link %s points outside the extracted tree", header.Name)
			}
			source, err := safeJoin(root, linkName)
			if err != nil {
				return err
			}
			if err := mkdirInside(realRoot, filepath.Dir(target)); err != nil {
				return err
			}
			info, err := os.Stat(source)
			if err != nil {
				return corruptErr("hard link %s: target %s not extracted", header.Name, header.Linkname)
			}
			if err := copyFile(source, target, info.Mode().Perm()); err != nil {
				return err
			}

		default:
			// Devices, fifos and extended headers carry no payload we can ship
			m.logger.Debug("skipping tar entry", "name", header.Name, "type", string(header.Typeflag))
		}
	}

	return nil
}

// replaceSymlinks swaps every symlink under root for a real copy of its
// target. npm drops symlinks when publishing, so a link left in place
// would arrive broken on the consumer side.
func (m *Materializer) replaceSymlinks(root, realRoot string) error {
	var links []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			links = append(links, p)
		}
		return nil
	})
	if err != nil {
		return ioErr("walk", root, err)
	}

	for _, link := range links {
		resolved, err := filepath.EvalSymlinks(link)
		if err != nil {
			m.logger.Warn("removing dangling symlink", "path", link, "error", err)
			if err := os.Remove(link); err != nil {
				return ioErr("remove", link, err)
			}
			continue
		}
		if !within(realRoot, resolved) {
			return corruptErr("symlink %s resolves outside the extracted tree", link)
		}

		info, err := os.Stat(resolved)
		if err != nil {
			return ioErr("stat", resolved, err)
		}

		if info.IsDir() {
			linkDir, err := filepath.EvalSymlinks(filepath.Dir(link))
			if err != nil {
				return ioErr("resolve", filepath.Dir(link), err)
			}
			if within(resolved, linkDir) {
				return corruptErr("symlink %s points at its own ancestor", link)
			}
		}

		if err := os.Remove(link); err != nil {
			return ioErr("remove", link, err)
		}

		if info.IsDir() {
			err = copyTree(realRoot, resolved, link, 0)
		} else {
			err = copyFile(resolved, link, info.Mode().Perm())
		}
		if err != nil {
			return err
		}
		m.logger.Debug("replaced symlink", "path", link, "target", resolved)
	}

	return nil
}

// fixPermissions sets 0755 on regular files under ExecutableDirs. Archive
// mode bits do not survive the pack/publish round trip reliably. Failures
// are logged and ignored.
func (m *Materializer) fixPermissions(root string) {
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			m.logger.Warn("walk failed during permission fix", "path", p, "error", err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil || !inExecutableDir(rel) {
			return nil
		}

		if err := os.Chmod(p, 0o755); err != nil {
			m.logger.Warn("could not set executable bit", "path", p, "error", err)
		}
		return nil
	})
}

func inExecutableDir(rel string) bool {
	parts := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	for _, part := range parts {
		for _, dir := range ExecutableDirs {
			if part == dir {
				return true
			}
		}
	}
	return false
}

// stripComponents drops n leading elements from a tar path. Empty and "."
// elements are ignored; ".." is kept so safeJoin can reject it. It returns
// "" when nothing remains.
func stripComponents(name string, n int) string {
	var parts []string
	for _, part := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		if part == "" || part == "." {
			continue
		}
		parts = append(parts, part)
	}
	if len(parts) <= n {
		return ""
	}
	return strings.Join(parts[n:], "/")
}

// safeJoin joins a tar entry name to root, rejecting traversal.
func safeJoin(root, name string) (string, error) {
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", corruptErr("illegal file path: %s", name)
		}
	}

	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", corruptErr("illegal file path: %s", name)
	}
	return target, nil
}

// checkLinkTarget rejects absolute link targets and relative ones that
// leave root.
func checkLinkTarget(root, link, linkname string) error {
	if linkname == "" || filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return corruptErr("symlink %s has illegal target %q", link, linkname)
	}
	resolved := filepath.Join(filepath.Dir(link), filepath.FromSlash(linkname))
	if !within(root, resolved) {
		return corruptErr("symlink %s escapes the extracted tree via %q", link, linkname)
	}
	return nil
}

// mkdirInside creates dir after checking that its closest existing ancestor
// resolves inside realRoot, so earlier symlinks cannot redirect writes.
func mkdirInside(realRoot, dir string) error {
	existing := dir
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return ioErr("resolve", existing, err)
	}
	if !within(realRoot, resolved) {
		return corruptErr("path %s leaves the extracted tree", dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioErr("create directory", dir, err)
	}
	return nil
}

// removeExisting clears a previous entry so files are never written
// through a symlink.
func removeExisting(target string) error {
	info, err := os.Lstat(target)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return corruptErr("entry %s replaces a directory", target)
	}
	if err := os.Remove(target); err != nil {
		return ioErr("remove", target, err)
	}
	return nil
}

// trackingReader records read errors so a truncated archive is reported as
// corrupt rather than as a write failure.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := removeExisting(target); err != nil {
		return err
	}

	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return ioErr("create file", target, err)
	}

	src := &trackingReader{r: r}
	if _, err := io.Copy(outFile, src); err != nil {
		outFile.Close()
		if src.err != nil {
			return corruptErr("read %s: %v", target, src.err)
		}
		return ioErr("write file", target, err)
	}

	if err := outFile.Close(); err != nil {
		return ioErr("close file", target, err)
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return ioErr("open", src, err)
	}
	defer in.Close()

	if err := removeExisting(dst); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return ioErr("create file", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return ioErr("copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return ioErr("close file", dst, err)
	}
	return nil
}

// copyTree recursively copies src to dst, following symlinks found inside
// src as long as they stay below realRoot.
func copyTree(realRoot, src, dst string, depth int) error {
	if depth > maxLinkDepth {
		return corruptErr("symlinks nested too deeply at %s", src)
	}

	info, err := os.Stat(src)
	if err != nil {
		return ioErr("stat", src, err)
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()|0o700); err != nil {
		return ioErr("create directory", dst, err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return ioErr("read directory", src, err)
	}

	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())

		if entry.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(from)
			if err != nil {
				// Dangling inside a copied directory; leave it out
				continue
			}
			if !within(realRoot, resolved) {
				return corruptErr("symlink %s resolves outside the extracted tree", from)
			}
			if within(resolved, src) {
				return corruptErr("symlink %s points at its own ancestor", from)
			}
			from = resolved
		}

		entryInfo, err := os.Stat(from)
		if err != nil {
			return ioErr("stat", from, err)
		}

		if entryInfo.IsDir() {
			if err := copyTree(realRoot, from, to, depth+1); err != nil {
				return err
			}
			continue
		}
		if !entryInfo.Mode().IsRegular() {
			continue
		}
		if err := copyFile(from, to, entryInfo.Mode().Perm()); err != nil {
			return err
		}
	}

	return nil
}

// within reports whether p is root or below it.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// fileMode keeps the permission bits of a tar header and guarantees the
// owner can read and write the file.
func fileMode(mode int64) os.FileMode {
	return os.FileMode(mode).Perm() | 0o600
}
