package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/artifact"
)

const fetchUsage = "prebuilt fetch <tool> [version] [--platform <os-cpu>] [--libc glibc|musl] [--out <dir>]"

// runFetch handles the `prebuilt fetch` subcommand. It downloads an
// upstream release and lays it out as the payload of a platform package.
func runFetch(args []string, stdout io.Writer) error {
	var g globalFlags
	var platformFlag, libcFlag, outDir string

	fs := newFlagSet("fetch", &g)
	fs.StringVar(&platformFlag, "platform", "", "target platform key, e.g. linux-x64 (default: detected)")
	fs.StringVar(&libcFlag, "libc", "", "upstream C library flavour (default: detected)")
	fs.StringVarP(&outDir, "out", "o", ".", "package directory to write the payload into")
	if err := parseFlags(fs, fetchUsage, args, stdout); err != nil {
		return ignoreHelp(err)
	}
	toolName, version, err := toolArgs(fs, fetchUsage)
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
		version = e.cfg.Tool(toolName).Upstream
	}
	if version == "" {
		return usageErrorf("no version given and tools.%s.upstream is not configured\nUsage: %s", toolName, fetchUsage)
	}

	mgr, err := e.manager()
	if err != nil {
		return err
	}
	key, libc, err := e.resolveKey(ctx, mgr, toolName, platformFlag, libcFlag)
	if err != nil {
		return err
	}

	payload, err := mgr.Package(ctx, artifact.Request{Tool: toolName, Key: key, Version: version, Libc: libc}, outDir)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, payload)
	return nil
}
