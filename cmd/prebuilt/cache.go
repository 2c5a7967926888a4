package main

import (
	"context"
	"fmt"
	"io"
	"time"
)

const (
	cacheListUsage  = "prebuilt cache list <tool>"
	cachePruneUsage = "prebuilt cache prune <tool> [--keep <version>]..."
)

// runCacheList handles the `prebuilt cache list` subcommand
func runCacheList(args []string, stdout io.Writer) error {
	var g globalFlags

	fs := newFlagSet("cache list", &g)
	if err := parseFlags(fs, cacheListUsage, args, stdout); err != nil {
		return ignoreHelp(err)
	}
	if fs.NArg() != 1 {
		return usageErrorf("expected <tool>\nUsage: %s", cacheListUsage)
	}
	toolName := fs.Arg(0)

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
	if _, err := mgr.Tool(toolName); err != nil {
		return err
	}

	cache := mgr.Cache()
	versions, err := cache.Versions(toolName)
	if err != nil {
		return err
	}

	if len(versions) == 0 {
		fmt.Fprintf(stdout, "No cached versions of %s in %s\n", toolName, cache.Root())
		return nil
	}

	for _, version := range versions {
		record, err := cache.Record(toolName, version)
		if err != nil {
			// Removed between listing and reading
			continue
		}
		fmt.Fprintf(stdout, "%-24s %-14s %s\n", version, record.Platform, record.MaterializedAt.Format(time.RFC3339))
	}
	return nil
}

// runCachePrune handles the `prebuilt cache prune` subcommand
func runCachePrune(args []string, stdout io.Writer) error {
	var g globalFlags
	var keep []string

	fs := newFlagSet("cache prune", &g)
	fs.StringSliceVar(&keep, "keep", nil, "version to keep (repeatable)")
	if err := parseFlags(fs, cachePruneUsage, args, stdout); err != nil {
		return ignoreHelp(err)
	}
	if fs.NArg() != 1 {
		return usageErrorf("expected <tool>\nUsage: %s", cachePruneUsage)
	}
	toolName := fs.Arg(0)

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
	if _, err := mgr.Tool(toolName); err != nil {
		return err
	}

	// Keep the configured version unless told otherwise
	if len(keep) == 0 {
		if v := e.cfg.Tool(toolName).Version; v != "" {
			keep = []string{v}
		}
	}

	removed, err := mgr.Cache().Prune(toolName, keep)
	for _, version := range removed {
		fmt.Fprintf(stdout, "removed %s %s\n", toolName, version)
	}
	return err
}
