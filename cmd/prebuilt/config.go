package main

import (
	"context"
	"io"
	"time"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/config"
)

const configUsage = "prebuilt config [--config <file>]"

// runConfig handles the `prebuilt config` subcommand. It prints the
// effective configuration, environment overrides included, as Lua.
func runConfig(args []string, stdout io.Writer) error {
	var g globalFlags

	fs := newFlagSet("config", &g)
	if err := parseFlags(fs, configUsage, args, stdout); err != nil {
		return ignoreHelp(err)
	}
	if fs.NArg() != 0 {
		return usageErrorf("unexpected arguments\nUsage: %s", configUsage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	e, err := setup(ctx, g)
	if err != nil {
		return err
	}

	code, err := config.NewGenerator().Generate(e.cfg)
	if err != nil {
		return err
	}

	_, err = io.WriteString(stdout, code)
	return err
}
