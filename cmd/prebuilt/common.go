package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/artifact"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/config"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/logging"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
)

// Environment variables read only by the CLI
const (
	envDebug      = "PREBUILT_DEBUG"
	envReleaseAPI = "PREBUILT_RELEASE_API"
)

// errHelp is returned by parseFlags after printing help.
var errHelp = errors.New("help requested")

// globalFlags are accepted by every command.
type globalFlags struct {
	configPath string
	verbose    bool
}

func newFlagSet(name string, g *globalFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.StringVar(&g.configPath, "config", "", "config file (default $"+config.EnvConfig+" or the user config dir)")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "log debug output to stderr")
	return fs
}

// parseFlags parses args, printing help to stdout for --help.
func parseFlags(fs *pflag.FlagSet, usage string, args []string, stdout io.Writer) error {
	err := fs.Parse(args)
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(stdout, "Usage: %s\n\nOptions:\n%s", usage, fs.FlagUsages())
		return errHelp
	}
	if err != nil {
		return usageErrorf("%v\nUsage: %s", err, usage)
	}
	return nil
}

// env is the state shared by commands after flags are parsed.
type env struct {
	cfg      *config.Config
	logger   logging.Logger
	detector platform.Detector
}

// newLogger returns a text slog logger on stderr. Debug output is enabled
// by --verbose or PREBUILT_DEBUG.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose || os.Getenv(envDebug) != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// configPath picks the config file: flag, environment, then the user
// config directory.
func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(config.EnvConfig); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "prebuilt", "prebuilt.lua")
}

func setup(ctx context.Context, g globalFlags) (*env, error) {
	logger := logging.NewSlog(newLogger(g.verbose))
	detector := platform.NewDetector()

	path := configPath(g.configPath)
	logger.Debug("loading config", "path", path)

	cfg, err := config.NewParser(detector, logger).Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %s", path, config.FormatError(err, g.verbose))
	}

	return &env{cfg: cfg, logger: logger, detector: detector}, nil
}

func (e *env) manager() (*artifact.Manager, error) {
	return artifact.NewManager(artifact.Config{
		CacheRoot:  e.cfg.CacheRoot,
		Scope:      e.cfg.Scope,
		NPM:        e.cfg.NPM,
		Token:      artifact.TokenFromEnv(),
		Lock:       e.cfg.Lock,
		Tools:      e.cfg.ApplyTools(artifact.DefaultTools()),
		Logger:     e.logger,
		ReleaseAPI: os.Getenv(envReleaseAPI),
	})
}

// resolveKey returns the platform key and libc for tool: from an explicit
// "os-cpu" value, or the detected host.
func (e *env) resolveKey(ctx context.Context, mgr *artifact.Manager, tool, platformFlag, libcFlag string) (platform.Key, string, error) {
	var goos, cpu string
	libc := platform.LibcGlibc

	if platformFlag != "" {
		parsed, err := platform.ParseKey(platformFlag)
		if err != nil {
			return platform.Key{}, "", err
		}
		goos, cpu = parsed.OS, parsed.CPU
	} else {
		info, err := e.detector.Detect(ctx)
		if err != nil {
			return platform.Key{}, "", fmt.Errorf("detect platform: %w", err)
		}
		goos, cpu = info.OS, info.Arch
		libc = info.Libc()
	}

	if libcFlag != "" {
		if libcFlag != platform.LibcGlibc && libcFlag != platform.LibcMusl {
			return platform.Key{}, "", usageErrorf("invalid --libc %q (glibc or musl)", libcFlag)
		}
		libc = libcFlag
	}

	key, err := mgr.ResolvePlatformKey(tool, goos, cpu)
	if err != nil {
		return platform.Key{}, "", err
	}
	return key, libc, nil
}

// toolArgs splits positional arguments into a tool name and an optional
// version.
func toolArgs(fs *pflag.FlagSet, usage string) (string, string, error) {
	switch fs.NArg() {
	case 1:
		return fs.Arg(0), "", nil
	case 2:
		return fs.Arg(0), fs.Arg(1), nil
	default:
		return "", "", usageErrorf("expected <tool> [version]\nUsage: %s", usage)
	}
}
