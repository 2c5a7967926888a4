package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Entry is one member of a fixture archive. Exactly one of Body, Link or
// Dir describes it; Hard turns Link into a hard link.
type Entry struct {
	Name string
	Body string
	Mode int64
	Link string
	Hard bool
	Dir  bool
}

// File returns a regular file entry with mode 0644.
func File(name, body string) Entry {
	return Entry{Name: name, Body: body, Mode: 0o644}
}

// Symlink returns a symbolic link entry.
func Symlink(name, target string) Entry {
	return Entry{Name: name, Link: target}
}

// TarGz builds a gzip-compressed tarball in memory.
func TarGz(t *testing.T, entries ...Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	writeTar(t, gzipWriter, entries)
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// TarZst builds a zstd-compressed tarball in memory.
func TarZst(t *testing.T, entries ...Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("failed to create zstd writer: %v", err)
	}
	writeTar(t, encoder, entries)
	if err := encoder.Close(); err != nil {
		t.Fatalf("failed to close zstd writer: %v", err)
	}
	return buf.Bytes()
}

// NPMPackage builds an npm-style tarball: every entry is placed below
// "package/", next to a minimal package.json.
func NPMPackage(t *testing.T, name, version string, entries ...Entry) []byte {
	t.Helper()

	manifest := fmt.Sprintf("{\n  \"name\": %q,\n  \"version\": %q\n}\n", name, version)
	all := []Entry{File("package/package.json", manifest)}
	for _, e := range entries {
		e.Name = "package/" + e.Name
		all = append(all, e)
	}
	return TarGz(t, all...)
}

func writeTar(t *testing.T, w io.Writer, entries []Entry) {
	t.Helper()

	tarWriter := tar.NewWriter(w)
	for _, e := range entries {
		header := &tar.Header{Name: e.Name, Mode: e.Mode}
		switch {
		case e.Dir:
			header.Typeflag = tar.TypeDir
			if header.Mode == 0 {
				header.Mode = 0o755
			}
		case e.Link != "" && e.Hard:
			header.Typeflag = tar.TypeLink
			header.Linkname = e.Link
		case e.Link != "":
			header.Typeflag = tar.TypeSymlink
			header.Linkname = e.Link
			header.Mode = 0o777
		default:
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(e.Body))
			if header.Mode == 0 {
				header.Mode = 0o644
			}
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("failed to write header for %s: %v", e.Name, err)
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := tarWriter.Write([]byte(e.Body)); err != nil {
				t.Fatalf("failed to write content for %s: %v", e.Name, err)
			}
		}
	}
	if err := tarWriter.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
}

// StubNPM writes a fake npm executable that answers "npm pack <spec>" by
// copying tarball into the working directory as <name>.tgz and appending
// its arguments to a call log. It returns the executable and the log path.
func StubNPM(t *testing.T, tarball []byte, name string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.tgz")
	if err := os.WriteFile(fixture, tarball, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	calls := filepath.Join(dir, "calls.log")

	script := fmt.Sprintf(`#!/bin/sh
echo "$@" >> %q
if [ "$1" != "pack" ]; then
  echo "unexpected command: $1" >&2
  exit 1
fi
cp %q %q
`, calls, fixture, name+".tgz")

	npm := filepath.Join(dir, "npm")
	if err := os.WriteFile(npm, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write stub npm: %v", err)
	}
	return npm, calls
}

// FailingNPM writes a fake npm executable that always exits with status 1.
func FailingNPM(t *testing.T, message string) string {
	t.Helper()

	npm := filepath.Join(t.TempDir(), "npm")
	script := fmt.Sprintf("#!/bin/sh\necho %q >&2\nexit 1\n", message)
	if err := os.WriteFile(npm, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write stub npm: %v", err)
	}
	return npm
}

// CountLines returns the number of lines in path, or 0 if it does not
// exist.
func CountLines(t *testing.T, path string) int {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return bytes.Count(data, []byte("\n"))
}
