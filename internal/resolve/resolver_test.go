package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/artifact"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/testutil"
)

var linuxX64 = platform.Key{OS: "linux", CPU: "x64"}

// installBinary writes an executable file at root/rel.
func installBinary(t *testing.T, root, rel, body string) string {
	t.Helper()

	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

// project lays out a wrapper package at <root>/node_modules/@prebuilt-bin/python.
func project(t *testing.T) (root, wrapper string) {
	t.Helper()

	root = t.TempDir()
	wrapper = filepath.Join(root, "node_modules", "@prebuilt-bin", "python")
	if err := os.MkdirAll(wrapper, 0o755); err != nil {
		t.Fatal(err)
	}
	return root, wrapper
}

func TestResolveBinary_Layouts(t *testing.T) {
	const binary = "python/bin/python3"

	tests := []struct {
		name    string
		install func(t *testing.T, root, wrapper string) string
	}{
		{
			name: "nested",
			install: func(t *testing.T, root, wrapper string) string {
				return installBinary(t, wrapper, "node_modules/@prebuilt-bin/python-linux-x64/"+binary, "nested")
			},
		},
		{
			name: "hoisted",
			install: func(t *testing.T, root, wrapper string) string {
				return installBinary(t, root, "node_modules/@prebuilt-bin/python-linux-x64/"+binary, "hoisted")
			},
		},
		{
			name: "hoisted_workspace_root",
			install: func(t *testing.T, root, wrapper string) string {
				// Wrapper lives in a workspace package, binary at the monorepo root
				return installBinary(t, filepath.Dir(root), "node_modules/@prebuilt-bin/python-linux-x64/"+binary, "workspace")
			},
		},
		{
			name: "pnpm_store",
			install: func(t *testing.T, root, wrapper string) string {
				return installBinary(t, root, "node_modules/.pnpm/@prebuilt-bin+python-linux-x64@3.9.13-install_only.1/node_modules/@prebuilt-bin/python-linux-x64/"+binary, "pnpm")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, wrapper := project(t)
			if tt.name == "hoisted_workspace_root" {
				root = filepath.Join(root, "packages", "app")
				wrapper = filepath.Join(root, "node_modules", "@prebuilt-bin", "python")
				if err := os.MkdirAll(wrapper, 0o755); err != nil {
					t.Fatal(err)
				}
			}
			want := tt.install(t, root, wrapper)

			handle, err := NewResolver(artifact.Python, DefaultStrategies(wrapper)).ResolveBinary(linuxX64)
			if err != nil {
				t.Fatalf("ResolveBinary() error = %v", err)
			}
			if handle.Path != want {
				t.Errorf("Path = %q, want %q", handle.Path, want)
			}
			if !handle.Executable {
				t.Error("Executable = false, want true")
			}
			if handle.Root != strings.TrimSuffix(want, filepath.FromSlash("/bin/python3")) {
				t.Errorf("Root = %q", handle.Root)
			}
		})
	}
}

func TestResolveBinary_Order(t *testing.T) {
	root, wrapper := project(t)
	nested := installBinary(t, wrapper, "node_modules/@prebuilt-bin/python-linux-x64/python/bin/python3", "nested")
	installBinary(t, root, "node_modules/@prebuilt-bin/python-linux-x64/python/bin/python3", "hoisted")

	handle, err := NewResolver(artifact.Python, DefaultStrategies(wrapper)).ResolveBinary(linuxX64)
	if err != nil {
		t.Fatalf("ResolveBinary() error = %v", err)
	}
	if handle.Path != nested {
		t.Errorf("Path = %q, want nested install %q first", handle.Path, nested)
	}
}

func TestResolveBinary_SkipsNonRegular(t *testing.T) {
	root, wrapper := project(t)

	// A directory where the binary should be does not count
	dir := filepath.Join(wrapper, "node_modules", "@prebuilt-bin", "python-linux-x64", "python", "bin", "python3")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	want := installBinary(t, root, "node_modules/@prebuilt-bin/python-linux-x64/python/bin/python3", "hoisted")

	handle, err := NewResolver(artifact.Python, DefaultStrategies(wrapper)).ResolveBinary(linuxX64)
	if err != nil {
		t.Fatalf("ResolveBinary() error = %v", err)
	}
	if handle.Path != want {
		t.Errorf("Path = %q, want %q", handle.Path, want)
	}
}

func TestResolveBinary_NotFound(t *testing.T) {
	_, wrapper := project(t)

	_, err := NewResolver(artifact.Python, DefaultStrategies(wrapper)).ResolveBinary(linuxX64)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResolveBinary() error = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "optional dependency @prebuilt-bin/python-linux-x64") {
		t.Errorf("error %q lacks optional dependency hint", err)
	}
}

func TestResolveBinary_NoStrategies(t *testing.T) {
	_, err := NewResolver(artifact.Patchelf, nil).ResolveBinary(linuxX64)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ResolveBinary() error = %v, want ErrNotFound", err)
	}
}

func TestResolveBinary_Unsupported(t *testing.T) {
	_, wrapper := project(t)

	_, err := NewResolver(artifact.Python, DefaultStrategies(wrapper)).ResolveBinary(platform.Key{OS: "darwin", CPU: "arm64"})
	if !errors.Is(err, platform.ErrUnsupportedPlatform) {
		t.Errorf("ResolveBinary() error = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestResolveVersion_PnpmPrefersPinned(t *testing.T) {
	root, wrapper := project(t)
	store := "node_modules/.pnpm/@prebuilt-bin+patchelf-linux-x64@%s/node_modules/@prebuilt-bin/patchelf-linux-x64/patchelf/bin/patchelf"
	old := installBinary(t, root, strings.Replace(store, "%s", "0.17.2", 1), "old")
	newer := installBinary(t, root, strings.Replace(store, "%s", "0.18.0", 1), "new")

	r := NewResolver(artifact.Patchelf, DefaultStrategies(wrapper))

	handle, err := r.ResolveVersion(linuxX64, "0.17.2")
	if err != nil {
		t.Fatal(err)
	}
	if handle.Path != old {
		t.Errorf("pinned Path = %q, want %q", handle.Path, old)
	}

	handle, err = r.ResolveBinary(linuxX64)
	if err != nil {
		t.Fatal(err)
	}
	if handle.Path != newer {
		t.Errorf("unpinned Path = %q, want highest entry %q", handle.Path, newer)
	}
}

func TestResolveBinary_PnpmPicksHighestVersion(t *testing.T) {
	root, wrapper := project(t)
	store := "node_modules/.pnpm/@prebuilt-bin+python-linux-x64@%s/node_modules/@prebuilt-bin/python-linux-x64/python/bin/python3"
	installBinary(t, root, strings.Replace(store, "%s", "3.9.13-install_only.1", 1), "3.9")
	want := installBinary(t, root, strings.Replace(store, "%s", "3.10.4-install_only.1", 1), "3.10")
	installBinary(t, root, strings.Replace(store, "%s", "3.10.4-install_only.0", 1), "3.10 older build")

	handle, err := NewResolver(artifact.Python, DefaultStrategies(wrapper)).ResolveBinary(linuxX64)
	if err != nil {
		t.Fatalf("ResolveBinary() error = %v", err)
	}
	if handle.Path != want {
		t.Errorf("Path = %q, want %q", handle.Path, want)
	}
}

func TestSortNewestFirst(t *testing.T) {
	entries := []string{
		"/s/pkg@0.9.0",
		"/s/pkg@not-a-version",
		"/s/pkg@0.18.0-1",
		"/s/pkg@0.18.0",
		"/s/pkg@0.17.2",
	}
	sortNewestFirst(entries, "pkg@")

	want := []string{
		"/s/pkg@0.18.0",
		"/s/pkg@0.18.0-1",
		"/s/pkg@0.17.2",
		"/s/pkg@0.9.0",
		"/s/pkg@not-a-version",
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("order = %v, want %v", entries, want)
		}
	}
}

func TestResolveInstalled(t *testing.T) {
	root, wrapper := project(t)
	want := installBinary(t, root, "node_modules/@prebuilt-bin/patchelf-linux-arm64/patchelf/bin/patchelf", "elf")

	detector := platform.StaticDetector{Info: &platform.Info{OS: "linux", Arch: "arm64"}}
	r := NewResolver(artifact.Patchelf, DefaultStrategies(wrapper), WithDetector(detector))

	handle, err := r.ResolveInstalled(context.Background())
	if err != nil {
		t.Fatalf("ResolveInstalled() error = %v", err)
	}
	if handle.Path != want {
		t.Errorf("Path = %q, want %q", handle.Path, want)
	}
}

func TestHandle_NotExecutable(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "patchelf", "bin", "patchelf")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	handle, err := NewResolver(artifact.Patchelf, []Strategy{Directory{Root: dir}}).ResolveBinary(linuxX64)
	if err != nil {
		t.Fatal(err)
	}
	if handle.Executable {
		t.Error("Executable = true for mode 0644")
	}
}

// Fetch through the cache, then resolve the materialized interpreter.
func TestResolve_MaterializedPython(t *testing.T) {
	const version = "3.9.13-install_only.1"

	data := testutil.NPMPackage(t, "@prebuilt-bin/python-linux-x64", version,
		testutil.Entry{Name: "python/bin/python3.9", Body: "#!/bin/sh\n", Mode: 0o644},
		testutil.Symlink("python/bin/python3", "python3.9"),
	)
	transport := artifact.TransportFunc(func(ctx context.Context, src artifact.Source) (*artifact.Archive, error) {
		return &artifact.Archive{Name: "python-linux-x64-" + src.Version + ".tgz", Data: data}, nil
	})

	mgr, err := artifact.NewManager(artifact.Config{CacheRoot: t.TempDir(), Registry: transport})
	if err != nil {
		t.Fatal(err)
	}
	payload, err := mgr.GetArtifactPath(context.Background(), artifact.Request{Tool: "python", Key: linuxX64, Version: version})
	if err != nil {
		t.Fatalf("GetArtifactPath() error = %v", err)
	}
	if !strings.HasSuffix(filepath.ToSlash(payload), version+"/package/python") {
		t.Fatalf("payload = %q", payload)
	}

	r := NewResolver(artifact.Python, []Strategy{Directory{Root: filepath.Dir(payload)}})
	handle, err := r.ResolveBinary(linuxX64)
	if err != nil {
		t.Fatalf("ResolveBinary() error = %v", err)
	}
	if handle.Path != filepath.Join(payload, "bin", "python3") {
		t.Errorf("Path = %q", handle.Path)
	}
	if !handle.Executable {
		t.Error("bin/python3 is not executable")
	}
	if handle.Root != payload {
		t.Errorf("Root = %q, want %q", handle.Root, payload)
	}
}
