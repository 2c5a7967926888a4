package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/artifact"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
)

const platformUsage = "prebuilt platform [--tool <name>] [--os <os> --cpu <cpu>]"

// runPlatform handles the `prebuilt platform` subcommand
func runPlatform(args []string, stdout io.Writer) error {
	var g globalFlags
	var toolName, goos, cpu string

	fs := newFlagSet("platform", &g)
	fs.StringVar(&toolName, "tool", "", "only report this tool")
	fs.StringVar(&goos, "os", "", "operating system (default: detected)")
	fs.StringVar(&cpu, "cpu", "", "CPU architecture, Go or node spelling (default: detected)")
	if err := parseFlags(fs, platformUsage, args, stdout); err != nil {
		return ignoreHelp(err)
	}
	if (goos == "") != (cpu == "") {
		return usageErrorf("--os and --cpu must be given together\nUsage: %s", platformUsage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	e, err := setup(ctx, g)
	if err != nil {
		return err
	}
	mgr, err := e.manager()
	if err != nil {
		return err
	}

	libc := ""
	if goos == "" {
		info, err := e.detector.Detect(ctx)
		if err != nil {
			return fmt.Errorf("detect platform: %w", err)
		}
		goos, cpu = info.OS, info.Arch
		libc = info.Libc()
	}

	tools := []string{artifact.Patchelf.Name(), artifact.Python.Name()}
	if toolName != "" {
		tools = []string{toolName}
	}

	var errs []error
	for _, name := range tools {
		key, err := mgr.ResolvePlatformKey(name, goos, cpu)
		if err != nil {
			if toolName == "" && errors.Is(err, platform.ErrUnsupportedPlatform) {
				fmt.Fprintf(stdout, "%-10s (unsupported on %s/%s)\n", name, goos, cpu)
				errs = append(errs, err)
				continue
			}
			return err
		}
		tool, _ := mgr.Tool(name)
		fmt.Fprintf(stdout, "%-10s %-14s %s\n", name, key, tool.Table.PackageName(key))
	}

	if libc != "" {
		fmt.Fprintf(stdout, "libc       %s\n", libc)
	}

	// Only fail when nothing at all is published for this host
	if len(errs) == len(tools) {
		return errors.Join(errs...)
	}
	return nil
}

func ignoreHelp(err error) error {
	if errors.Is(err, errHelp) {
		return nil
	}
	return err
}
