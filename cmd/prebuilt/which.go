package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/artifact"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/resolve"
)

const whichUsage = "prebuilt which <tool> [--from <dir>] [--platform <os-cpu>] [--version <version>]"

// runWhich handles the `prebuilt which` subcommand. It looks for the
// platform package next to a wrapper package, then in the cache.
func runWhich(args []string, stdout io.Writer) error {
	var g globalFlags
	var from, platformFlag, version string

	fs := newFlagSet("which", &g)
	fs.StringVar(&from, "from", "", "wrapper package or project directory (default: current directory)")
	fs.StringVar(&platformFlag, "platform", "", "platform key, e.g. linux-x64 (default: detected)")
	fs.StringVar(&version, "version", "", "pin the package version (default: tools.<tool>.version)")
	if err := parseFlags(fs, whichUsage, args, stdout); err != nil {
		return ignoreHelp(err)
	}
	if fs.NArg() != 1 {
		return usageErrorf("expected <tool>\nUsage: %s", whichUsage)
	}
	toolName := fs.Arg(0)

	if from == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		from = wd
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	e, err := setup(ctx, g)
	if err != nil {
		return err
	}
	if version == "" {
		version = e.cfg.Tool(toolName).Version
	}

	mgr, err := e.manager()
	if err != nil {
		return err
	}
	tool, err := mgr.Tool(toolName)
	if err != nil {
		return err
	}
	key, _, err := e.resolveKey(ctx, mgr, toolName, platformFlag, "")
	if err != nil {
		return err
	}

	strategies := resolve.DefaultStrategies(from)
	if version != "" {
		cached := filepath.Join(mgr.Cache().VersionDir(toolName, version), artifact.PackageDir)
		strategies = append(strategies, resolve.Directory{Root: cached})
	}

	resolver := resolve.NewResolver(tool, strategies,
		resolve.WithDetector(e.detector),
		resolve.WithLogger(e.logger),
	)
	handle, err := resolver.ResolveVersion(key, version)
	if err != nil {
		return err
	}

	if !handle.Executable {
		e.logger.Warn("binary is not executable", "path", handle.Path)
	}
	fmt.Fprintln(stdout, handle.Path)
	return nil
}
