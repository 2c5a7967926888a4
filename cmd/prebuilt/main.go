package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/resolve"
)

// Version will be set at build time via -ldflags
var Version = "v0.0.1-alpha"

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitUnsupported = 3
	exitNotFound    = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout)
		return exitOK
	}

	var err error
	switch args[0] {
	case "--version", "version":
		fmt.Fprintf(stdout, "prebuilt %s\n", Version)
		return exitOK
	case "--help", "-h", "help":
		printUsage(stdout)
		return exitOK
	case "platform":
		err = runPlatform(args[1:], stdout)
	case "fetch":
		err = runFetch(args[1:], stdout)
	case "path":
		err = runPath(args[1:], stdout)
	case "which":
		err = runWhich(args[1:], stdout)
	case "latest":
		err = runLatest(args[1:], stdout)
	case "config":
		err = runConfig(args[1:], stdout)
	case "cache":
		if len(args) < 2 {
			err = usageErrorf("cache subcommand requires an action\nUsage: prebuilt cache list <tool>\n       prebuilt cache prune <tool> [--keep <version>]...")
			break
		}
		switch args[1] {
		case "list":
			err = runCacheList(args[2:], stdout)
		case "prune":
			err = runCachePrune(args[2:], stdout)
		default:
			err = usageErrorf("unknown cache action: %s", args[1])
		}
	default:
		err = usageErrorf("unknown command: %s\nRun 'prebuilt --help' for usage", args[0])
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usage):
		return exitUsage
	case errors.Is(err, platform.ErrUnsupportedPlatform):
		return exitUnsupported
	case errors.Is(err, resolve.ErrNotFound):
		return exitNotFound
	default:
		return exitFailure
	}
}

// usageError reports bad arguments.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "prebuilt - platform binaries from npm packages")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  prebuilt --version                         Show version information")
	fmt.Fprintln(w, "  prebuilt platform [options]                Show the platform key and package for a tool")
	fmt.Fprintln(w, "  prebuilt fetch <tool> [version] [options]  Package an upstream release for publishing")
	fmt.Fprintln(w, "  prebuilt path <tool> [version] [options]   Materialize a platform package into the cache")
	fmt.Fprintln(w, "  prebuilt which <tool> [options]            Locate an installed platform binary")
	fmt.Fprintln(w, "  prebuilt latest <tool>                     Show the newest upstream release")
	fmt.Fprintln(w, "  prebuilt config                            Print the effective configuration")
	fmt.Fprintln(w, "  prebuilt cache list <tool>                 List cached versions")
	fmt.Fprintln(w, "  prebuilt cache prune <tool> [options]      Remove cached versions")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tools: patchelf, python")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit codes: 0 ok, 1 failure, 2 usage, 3 unsupported platform, 4 not found")
}
