package config

import (
	"context"

	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed from every config VM. They could run
// commands (os), touch the filesystem (io), load code from disk or
// strings (require, dofile, loadfile, load, loadstring), or escape the
// sandbox (debug).
var blockedGlobals = []string{
	"os",
	"io",
	"require",
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"debug",
	"module",
	"collectgarbage",
}

// sandboxLuaVM removes blocked globals from L. string, table, math and
// the basic functions (type, tostring, pairs, ...) stay available so
// configs remain declarative but expressive.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a sandboxed Lua VM bound to ctx. Cancelling ctx
// aborts a running chunk.
func newSandboxedVM(ctx context.Context) *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize:       120,
		RegistrySize:        1024 * 20,
		IncludeGoStackTrace: false,
	})
	sandboxLuaVM(L)
	if ctx != nil {
		L.SetContext(ctx)
	}
	return L
}
