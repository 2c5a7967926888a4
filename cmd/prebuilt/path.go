package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/artifact"
)

const pathUsage = "prebuilt path <tool> [version] [--platform <os-cpu>] [--dest <dir>] [--binary]"

// runPath handles the `prebuilt path` subcommand. It prints the cached
// payload directory, materializing the platform package on first use.
func runPath(args []string, stdout io.Writer) error {
	var g globalFlags
	var platformFlag, destDir string
	var binary bool

	fs := newFlagSet("path", &g)
	fs.StringVar(&platformFlag, "platform", "", "platform key, e.g. linux-x64 (default: detected)")
	fs.StringVar(&destDir, "dest", "", "version directory to use instead of the cache (its contents are deleted unless it holds a completed download)")
	fs.BoolVar(&binary, "binary", false, "print the executable instead of the payload directory")
	if err := parseFlags(fs, pathUsage, args, stdout); err != nil {
		return ignoreHelp(err)
	}
	toolName, version, err := toolArgs(fs, pathUsage)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	e, err := setup(ctx, g)
	if err != nil {
		return err
	}
	if version == "" {
		version = e.cfg.Tool(toolName).Version
	}
	if version == "" {
		return usageErrorf("no version given and tools.%s.version is not configured\nUsage: %s", toolName, pathUsage)
	}

	mgr, err := e.manager()
	if err != nil {
		return err
	}
	key, _, err := e.resolveKey(ctx, mgr, toolName, platformFlag, "")
	if err != nil {
		return err
	}

	dir, err := mgr.GetArtifactPath(ctx, artifact.Request{Tool: toolName, Key: key, Version: version, DestDir: destDir})
	if err != nil {
		return err
	}

	if binary {
		tool, err := mgr.Tool(toolName)
		if err != nil {
			return err
		}
		dir = filepath.Join(dir, filepath.FromSlash(tool.Binary))
	}

	fmt.Fprintln(stdout, dir)
	return nil
}
