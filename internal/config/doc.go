// Package config loads prebuilt's optional Lua configuration.
//
// A config file assigns a global "prebuilt" table. The read-only
// "platform" table is injected before the file runs, so values can depend
// on the host:
//
//	prebuilt = {
//	  cache_root = "/var/cache/prebuilt",
//	  scope = "@prebuilt-bin",
//	  npm = "pnpm",
//	  lock = true,
//	  tools = {
//	    python = {
//	      version = "3.9.13-install_only.1",
//	      upstream = "3.9.13+20220802",
//	      mirror = "https://mirror.example.com/python-build-standalone",
//	    },
//	    patchelf = {
//	      version = platform.when(platform.is_linux, "0.18.0-1"),
//	      verify = false,
//	    },
//	  },
//	}
//
// Files run in a sandboxed gopher-lua VM with os, io, and module loading
// removed, and with a deadline so a runaway loop cannot hang the caller.
//
// Every field is optional. Defaults come from Defaults, and the
// PREBUILT_CACHE_DIR and PREBUILT_NPM environment variables override the
// file.
package config
