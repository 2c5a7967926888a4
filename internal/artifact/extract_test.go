package artifact

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/testutil"
)

func unpack(t *testing.T, data []byte, opts UnpackOptions) (string, error) {
	t.Helper()

	destDir := filepath.Join(t.TempDir(), "out")
	err := NewMaterializer(nil).Unpack(&Archive{Name: "test.tgz", Data: data}, destDir, opts)
	return destDir, err
}

func testGzip(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestUnpack(t *testing.T) {
	tests := []struct {
		name    string
		entries []testutil.Entry
		want    map[string]string
	}{
		{
			name: "simple_extraction",
			entries: []testutil.Entry{
				testutil.File("file1.txt", "content1"),
				testutil.File("file2.txt", "content2"),
			},
			want: map[string]string{
				"file1.txt": "content1",
				"file2.txt": "content2",
			},
		},
		{
			name: "nested_directories",
			entries: []testutil.Entry{
				{Name: "dir1/", Dir: true},
				testutil.File("dir1/file1.txt", "content1"),
				testutil.File("dir1/dir2/file2.txt", "content2"),
				testutil.File("./dir3/file3.txt", "content3"),
			},
			want: map[string]string{
				"dir1/file1.txt":      "content1",
				"dir1/dir2/file2.txt": "content2",
				"dir3/file3.txt":      "content3",
			},
		},
		{
			name: "hard_link_copied",
			entries: []testutil.Entry{
				testutil.File("bin/python3.9", "interpreter"),
				{Name: "bin/python3", Link: "bin/python3.9", Hard: true},
			},
			want: map[string]string{
				"bin/python3.9": "interpreter",
				"bin/python3":   "interpreter",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			destDir, err := unpack(t, testutil.TarGz(t, tt.entries...), UnpackOptions{})
			if err != nil {
				t.Fatalf("Unpack() error = %v", err)
			}

			for name, want := range tt.want {
				if got := readFile(t, filepath.Join(destDir, name)); got != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestUnpack_Zstd(t *testing.T) {
	data := testutil.TarZst(t,
		testutil.File("python/bin/python3", "#!/bin/sh\n"),
		testutil.File("python/lib/libpython3.9.so", "elf"),
	)

	destDir, err := unpack(t, data, UnpackOptions{})
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}

	if got := readFile(t, filepath.Join(destDir, "python/lib/libpython3.9.so")); got != "elf" {
		t.Errorf("libpython = %q, want %q", got, "elf")
	}
}

func TestUnpack_StripComponents(t *testing.T) {
	data := testutil.TarGz(t,
		testutil.File("xpack-patchelf-0.18.0-1/bin/patchelf", "binary"),
		testutil.File("xpack-patchelf-0.18.0-1/README.md", "readme"),
		testutil.File("top-level-only", "dropped"),
	)

	destDir, err := unpack(t, data, UnpackOptions{StripComponents: 1})
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}

	if got := readFile(t, filepath.Join(destDir, "bin/patchelf")); got != "binary" {
		t.Errorf("bin/patchelf = %q, want %q", got, "binary")
	}
	if _, err := os.Stat(filepath.Join(destDir, "top-level-only")); !os.IsNotExist(err) {
		t.Errorf("entry shallower than strip depth was extracted: %v", err)
	}
}

func TestUnpack_ExecutableBits(t *testing.T) {
	data := testutil.TarGz(t,
		testutil.Entry{Name: "python/bin/python3", Body: "x", Mode: 0o644},
		testutil.Entry{Name: "python/libexec/helper", Body: "x", Mode: 0o600},
		testutil.Entry{Name: "python/lib/libpython.so", Body: "x", Mode: 0o644},
		testutil.Entry{Name: "python/share/binary.txt", Body: "x", Mode: 0o644},
	)

	destDir, err := unpack(t, data, UnpackOptions{})
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}

	tests := []struct {
		path string
		want os.FileMode
	}{
		{"python/bin/python3", 0o755},
		{"python/libexec/helper", 0o755},
		{"python/lib/libpython.so", 0o644},
		{"python/share/binary.txt", 0o644},
	}

	for _, tt := range tests {
		info, err := os.Stat(filepath.Join(destDir, tt.path))
		if err != nil {
			t.Fatalf("stat %s: %v", tt.path, err)
		}
		if got := info.Mode().Perm(); got != tt.want {
			t.Errorf("%s mode = %o, want %o", tt.path, got, tt.want)
		}
	}
}

func TestUnpack_SymlinksBecomeCopies(t *testing.T) {
	data := testutil.TarGz(t,
		testutil.Entry{Name: "python/bin/python3.9", Body: "interpreter", Mode: 0o755},
		testutil.Symlink("python/bin/python3", "python3.9"),
		testutil.Symlink("python/bin/python", "python3"),
		testutil.File("python/lib/python3.9/os.py", "import sys"),
		testutil.File("python/lib/python3.9/encodings/utf_8.py", "codec"),
		testutil.Symlink("python/lib/current", "python3.9"),
	)

	destDir, err := unpack(t, data, UnpackOptions{})
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}

	for _, rel := range []string{"python/bin/python3", "python/bin/python", "python/lib/current"} {
		info, err := os.Lstat(filepath.Join(destDir, rel))
		if err != nil {
			t.Fatalf("lstat %s: %v", rel, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			t.Errorf("%s is still a symlink", rel)
		}
	}

	if got := readFile(t, filepath.Join(destDir, "python/bin/python")); got != "interpreter" {
		t.Errorf("chained link content = %q, want %q", got, "interpreter")
	}
	if got := readFile(t, filepath.Join(destDir, "python/lib/current/encodings/utf_8.py")); got != "codec" {
		t.Errorf("copied directory content = %q, want %q", got, "codec")
	}

	info, err := os.Stat(filepath.Join(destDir, "python/bin/python3"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("copied binary lost execute bit: %o", info.Mode().Perm())
	}
}

func TestUnpack_LinkToExecutableKeepsExecBit(t *testing.T) {
	data := testutil.TarGz(t,
		testutil.Entry{Name: "python/bin/tool", Body: "x", Mode: 0o644},
		testutil.Symlink("python/share/tool", "../bin/tool"),
	)

	destDir, err := unpack(t, data, UnpackOptions{})
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}

	for _, rel := range []string{"python/bin/tool", "python/share/tool"} {
		info, err := os.Lstat(filepath.Join(destDir, rel))
		if err != nil {
			t.Fatalf("lstat %s: %v", rel, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			t.Fatalf("%s is still a symlink", rel)
		}
		if got := info.Mode().Perm(); got != 0o755 {
			t.Errorf("%s mode = %o, want 755", rel, got)
		}
	}
}

func TestUnpack_DanglingSymlinkRemoved(t *testing.T) {
	data := testutil.TarGz(t,
		testutil.File("pkg/bin/tool", "x"),
		testutil.Symlink("pkg/bin/missing", "does-not-exist"),
	)

	destDir, err := unpack(t, data, UnpackOptions{})
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}

	if _, err := os.Lstat(filepath.Join(destDir, "pkg/bin/missing")); !os.IsNotExist(err) {
		t.Errorf("dangling symlink still present: %v", err)
	}
}

func TestUnpack_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		entries []testutil.Entry
	}{
		{
			name:    "parent_traversal",
			entries: []testutil.Entry{testutil.File("../evil.txt", "x")},
		},
		{
			name:    "nested_traversal",
			entries: []testutil.Entry{testutil.File("pkg/../../evil.txt", "x")},
		},
		{
			name:    "absolute_symlink",
			entries: []testutil.Entry{testutil.Symlink("pkg/passwd", "/etc/passwd")},
		},
		{
			name:    "escaping_symlink",
			entries: []testutil.Entry{testutil.Symlink("pkg/up", "../../outside")},
		},
		{
			name: "write_through_symlink",
			entries: []testutil.Entry{
				{Name: "pkg/", Dir: true},
				testutil.Symlink("pkg/link", "."),
				testutil.File("pkg/link/../../evil.txt", "x"),
			},
		},
		{
			name: "symlink_cycle",
			entries: []testutil.Entry{
				testutil.File("pkg/bin/tool", "x"),
				testutil.Symlink("pkg/bin/self", ".."),
			},
		},
		{
			name: "hard_link_to_missing",
			entries: []testutil.Entry{
				{Name: "pkg/bin/tool", Link: "pkg/bin/absent", Hard: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unpack(t, testutil.TarGz(t, tt.entries...), UnpackOptions{})
			if !errors.Is(err, ErrCorruptArchive) {
				t.Errorf("Unpack() error = %v, want ErrCorruptArchive", err)
			}
		})
	}
}

func TestUnpack_CorruptInput(t *testing.T) {
	valid := testutil.TarGz(t, testutil.File("pkg/data.bin", string(make([]byte, 4096))))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"plain_text", []byte("this is not an archive")},
		{"truncated_gzip", valid[:len(valid)/2]},
		{"gzip_of_garbage", testGzip(t, []byte("not a tar stream, just some bytes that are long enough to fail"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unpack(t, tt.data, UnpackOptions{})
			if !errors.Is(err, ErrCorruptArchive) {
				t.Errorf("Unpack() error = %v, want ErrCorruptArchive", err)
			}
		})
	}
}

func TestUnpack_NilArchive(t *testing.T) {
	err := NewMaterializer(nil).Unpack(nil, t.TempDir(), UnpackOptions{})
	if !errors.Is(err, ErrCorruptArchive) {
		t.Errorf("Unpack(nil) error = %v, want ErrCorruptArchive", err)
	}
}

func TestUnpack_UnwritableDest(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	parent := t.TempDir()
	if err := os.Chmod(parent, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(parent, 0o755) })

	data := testutil.TarGz(t, testutil.File("pkg/file", "x"))
	err := NewMaterializer(nil).Unpack(&Archive{Name: "test.tgz", Data: data}, filepath.Join(parent, "out"), UnpackOptions{})
	if !errors.Is(err, ErrIO) {
		t.Errorf("Unpack() error = %v, want ErrIO", err)
	}
}

func TestStripComponents(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"no_strip", "a/b/c", 0, "a/b/c"},
		{"strip_one", "a/b/c", 1, "b/c"},
		{"dot_prefix", "./a/b", 1, "b"},
		{"directory_entry", "a/", 1, ""},
		{"too_shallow", "a", 1, ""},
		{"keeps_parent_refs", "a/../../b", 1, "../../b"},
		{"leading_slash", "/etc/passwd", 0, "etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripComponents(tt.in, tt.n); got != tt.want {
				t.Errorf("stripComponents(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}
