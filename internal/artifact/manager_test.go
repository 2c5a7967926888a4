package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/testutil"
)

func TestNewManager(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("NewManager() without CacheRoot should fail")
	}

	mgr, err := NewManager(Config{CacheRoot: t.TempDir(), Scope: "@acme"})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	for _, name := range []string{"patchelf", "python"} {
		tool, err := mgr.Tool(name)
		if err != nil {
			t.Errorf("Tool(%q) error = %v", name, err)
			continue
		}
		if tool.Table.Scope != "@acme" {
			t.Errorf("Tool(%q) scope = %q, want @acme", name, tool.Table.Scope)
		}
	}

	if _, err := mgr.Tool("node"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Tool(node) error = %v, want ErrUnknownTool", err)
	}
}

func TestManager_ResolvePlatformKey(t *testing.T) {
	mgr, err := NewManager(Config{CacheRoot: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		tool    string
		os      string
		cpu     string
		want    string
		wantErr error
	}{
		{"python", "linux", "amd64", "linux-x64", nil},
		{"python", "linux", "aarch64", "linux-arm64", nil},
		{"python", "darwin", "arm64", "", platform.ErrUnsupportedPlatform},
		{"patchelf", "darwin", "arm64", "darwin-arm64", nil},
		{"patchelf", "linux", "armv7l", "linux-arm", nil},
		{"patchelf", "windows", "x64", "", platform.ErrUnsupportedPlatform},
		{"patchelf", "linux", "riscv64", "", platform.ErrUnsupportedPlatform},
		{"node", "linux", "x64", "", ErrUnknownTool},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s_%s", tt.tool, tt.os, tt.cpu), func(t *testing.T) {
			key, err := mgr.ResolvePlatformKey(tt.tool, tt.os, tt.cpu)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if key.String() != tt.want {
				t.Errorf("key = %s, want %s", key, tt.want)
			}
		})
	}
}

// End to end through the real registry transport: npm pack, unpack into
// the cache, and find an executable interpreter.
func TestManager_GetArtifactPath_Python(t *testing.T) {
	const version = "3.9.13-install_only.1"
	testutil.SetupTestEnv(t)

	tarball := testutil.NPMPackage(t, "@prebuilt-bin/python-linux-x64", version,
		testutil.Entry{Name: "python/bin/python3.9", Body: "#!/bin/sh\necho 3.9.13\n", Mode: 0o644},
		testutil.Symlink("python/bin/python3", "python3.9"),
		testutil.File("python/lib/python3.9/os.py", "import sys\n"),
	)
	npm, calls := testutil.StubNPM(t, tarball, "prebuilt-bin-python-linux-x64-"+version)

	root := t.TempDir()
	mgr, err := NewManager(Config{CacheRoot: root, NPM: npm})
	if err != nil {
		t.Fatal(err)
	}

	req := Request{Tool: "python", Key: linuxX64, Version: version}
	ctx := context.Background()

	path, err := mgr.GetArtifactPath(ctx, req)
	if err != nil {
		t.Fatalf("GetArtifactPath() error = %v", err)
	}

	if !strings.HasSuffix(filepath.ToSlash(path), version+"/package/python") {
		t.Errorf("path = %q, want suffix %s/package/python", path, version)
	}

	info, err := os.Stat(filepath.Join(path, "bin", "python3"))
	if err != nil {
		t.Fatalf("bin/python3 missing: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("bin/python3 is not executable: %o", info.Mode().Perm())
	}

	again, err := mgr.GetArtifactPath(ctx, req)
	if err != nil {
		t.Fatalf("second GetArtifactPath() error = %v", err)
	}
	if again != path {
		t.Errorf("second path = %q, want %q", again, path)
	}
	if n := testutil.CountLines(t, calls); n != 1 {
		t.Errorf("npm invoked %d times, want 1", n)
	}
}

func TestManager_GetArtifactPath_DestDir(t *testing.T) {
	transport := &countingTransport{archives: []*Archive{pythonPackage(t, "1.0.0")}}
	mgr, err := NewManager(Config{CacheRoot: t.TempDir(), Registry: transport})
	if err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "vendored")
	path, err := mgr.GetArtifactPath(context.Background(), Request{Tool: "python", Key: linuxX64, Version: "1.0.0", DestDir: dest})
	if err != nil {
		t.Fatalf("GetArtifactPath() error = %v", err)
	}

	if want := filepath.Join(dest, "package", "python"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(filepath.Join(dest, MarkerFile)); err != nil {
		t.Errorf("marker missing in dest dir: %v", err)
	}
}

func TestManager_GetArtifactPath_DestDirWipesUnmarked(t *testing.T) {
	transport := &countingTransport{archives: []*Archive{pythonPackage(t, "1.0.0")}}
	mgr, err := NewManager(Config{CacheRoot: t.TempDir(), Registry: transport})
	if err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	unrelated := filepath.Join(dest, "notes.txt")
	if err := os.WriteFile(unrelated, []byte("keep me?"), 0o644); err != nil {
		t.Fatal(err)
	}

	req := Request{Tool: "python", Key: linuxX64, Version: "1.0.0", DestDir: dest}
	if _, err := mgr.GetArtifactPath(context.Background(), req); err != nil {
		t.Fatalf("GetArtifactPath() error = %v", err)
	}
	if _, err := os.Stat(unrelated); !os.IsNotExist(err) {
		t.Errorf("unmarked dest dir contents survived: %v", err)
	}

	// A completed dest dir is reused as-is
	extra := filepath.Join(dest, "extra.txt")
	if err := os.WriteFile(extra, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.GetArtifactPath(context.Background(), req); err != nil {
		t.Fatalf("second GetArtifactPath() error = %v", err)
	}
	if _, err := os.Stat(extra); err != nil {
		t.Errorf("marked dest dir was rewritten: %v", err)
	}
	if len(transport.sources) != 1 {
		t.Errorf("transport calls = %d, want 1", len(transport.sources))
	}
}

func TestManager_FetchArchive(t *testing.T) {
	transport := &countingTransport{archives: []*Archive{pythonPackage(t, "1.0.0")}}
	mgr, err := NewManager(Config{CacheRoot: t.TempDir(), Registry: transport, Scope: "@acme"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.FetchArchive(context.Background(), Request{Tool: "python", Key: linuxX64, Version: "1.0.0"}); err != nil {
		t.Fatalf("FetchArchive() error = %v", err)
	}
	if got := transport.sources[0].Package; got != "@acme/python-linux-x64" {
		t.Errorf("package = %q, want @acme/python-linux-x64", got)
	}

	_, err = mgr.FetchArchive(context.Background(), Request{Tool: "python", Key: platform.Key{OS: "linux", CPU: "arm"}, Version: "1.0.0"})
	if !errors.Is(err, platform.ErrUnsupportedPlatform) {
		t.Errorf("FetchArchive(linux-arm) error = %v, want ErrUnsupportedPlatform", err)
	}
	if len(transport.sources) != 1 {
		t.Errorf("transport called for unsupported platform")
	}
}

func TestManager_Materialize(t *testing.T) {
	mgr, err := NewManager(Config{CacheRoot: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := mgr.Materialize(pythonPackage(t, "1.0.0"), dest, UnpackOptions{}); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "package", "python", "bin", "python3")); err != nil {
		t.Errorf("bin/python3 missing: %v", err)
	}
}

func patchelfUpstream(t *testing.T, version string) *httptest.Server {
	t.Helper()

	name := fmt.Sprintf("xpack-patchelf-%s-linux-x64.tar.gz", version)
	archive := testutil.TarGz(t,
		testutil.Entry{Name: "xpack-patchelf-" + version + "/bin/patchelf", Body: "elf", Mode: 0o644},
		testutil.Symlink("xpack-patchelf-"+version+"/bin/patchelf-link", "patchelf"),
		testutil.File("xpack-patchelf-"+version+"/README.md", "readme"),
	)
	prefix := "/v" + version + "/" + name

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case prefix:
			w.Write(archive)
		case prefix + ".sha":
			fmt.Fprint(w, sha256Line(archive, name))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManager_Package(t *testing.T) {
	srv := patchelfUpstream(t, "0.18.0-1")

	tool := Patchelf
	tool.Mirror = srv.URL
	tool.Origin = "http://127.0.0.1:1/unreachable"

	mgr, err := NewManager(Config{CacheRoot: t.TempDir(), Tools: []Tool{tool}})
	if err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	payload, err := mgr.Package(context.Background(), Request{Tool: "patchelf", Key: linuxX64, Version: "0.18.0-1"}, outDir)
	if err != nil {
		t.Fatalf("Package() error = %v", err)
	}

	if payload != filepath.Join(outDir, "patchelf") {
		t.Errorf("payload = %q", payload)
	}

	for _, rel := range []string{"bin/patchelf", "bin/patchelf-link"} {
		info, err := os.Lstat(filepath.Join(payload, rel))
		if err != nil {
			t.Fatalf("%s missing: %v", rel, err)
		}
		if !info.Mode().IsRegular() {
			t.Errorf("%s mode = %v, want regular file", rel, info.Mode())
		}
		if info.Mode().Perm() != 0o755 {
			t.Errorf("%s perm = %o, want 755", rel, info.Mode().Perm())
		}
	}
}

func TestManager_Package_MissingBinary(t *testing.T) {
	archive := testutil.TarGz(t, testutil.File("top/README.md", "no binary here"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	tool := Patchelf
	tool.Mirror = srv.URL
	tool.SkipChecksum = true

	mgr, err := NewManager(Config{CacheRoot: t.TempDir(), Tools: []Tool{tool}})
	if err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	_, err = mgr.Package(context.Background(), Request{Tool: "patchelf", Key: linuxX64, Version: "0.18.0-1"}, outDir)
	if !errors.Is(err, ErrCorruptArchive) {
		t.Errorf("Package() error = %v, want ErrCorruptArchive", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "patchelf")); !os.IsNotExist(err) {
		t.Errorf("partial payload left behind: %v", err)
	}
}

func TestManager_LatestRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/xpack-dev-tools/patchelf-xpack/releases/latest" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"tag_name": "v0.18.0-1", "name": "xPack Patchelf v0.18.0-1"}`)
	}))
	defer srv.Close()

	mgr, err := NewManager(Config{CacheRoot: t.TempDir(), ReleaseAPI: srv.URL, Token: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := mgr.LatestRelease(context.Background(), "patchelf")
	if err != nil {
		t.Fatalf("LatestRelease() error = %v", err)
	}
	if got != "0.18.0-1" {
		t.Errorf("LatestRelease() = %q, want 0.18.0-1", got)
	}

	if _, err := mgr.LatestRelease(context.Background(), "python"); !errors.Is(err, ErrTransport) {
		t.Errorf("LatestRelease(python) error = %v, want ErrTransport for unknown repo", err)
	}
}
