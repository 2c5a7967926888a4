package main

import (
	"context"
	"fmt"
	"io"
	"time"
)

const latestUsage = "prebuilt latest <tool>"

// runLatest handles the `prebuilt latest` subcommand
func runLatest(args []string, stdout io.Writer) error {
	var g globalFlags

	fs := newFlagSet("latest", &g)
	if err := parseFlags(fs, latestUsage, args, stdout); err != nil {
		return ignoreHelp(err)
	}
	if fs.NArg() != 1 {
		return usageErrorf("expected <tool>\nUsage: %s", latestUsage)
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

	version, err := mgr.LatestRelease(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, version)
	return nil
}
