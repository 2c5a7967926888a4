package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalPrebuilt = "prebuilt"
	luaFieldCacheRoot = "cache_root"
	luaFieldScope     = "scope"
	luaFieldNPM       = "npm"
	luaFieldLock      = "lock"
	luaFieldTools     = "tools"
	luaFieldVersion   = "version"
	luaFieldUpstream  = "upstream"
	luaFieldMirror    = "mirror"
	luaFieldOrigin    = "origin"
	luaFieldVerify    = "verify"
	luaFieldKeyring   = "keyring"
)

// Environment variables read by ApplyEnv and the CLI.
const (
	EnvConfig   = "PREBUILT_CONFIG"
	EnvCacheDir = "PREBUILT_CACHE_DIR"
	EnvNPM      = "PREBUILT_NPM"
)

const (
	// DefaultParseTimeout bounds how long a config file may run.
	DefaultParseTimeout = 2 * time.Second

	// MaxConfigSize is the largest config file ParseFile accepts.
	MaxConfigSize = 1 << 20
)
