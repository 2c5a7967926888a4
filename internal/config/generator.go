package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Generator generates Lua configuration code from Go structs.
type Generator struct {
	indent string // Indentation string (default: two spaces)
	now    func() time.Time
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ", // Two spaces
		now:    time.Now,
	}
}

// Generate generates Lua code from a Config struct.
// The output parses back into an equal Config.
func (g *Generator) Generate(config *Config) (string, error) {
	var buf bytes.Buffer

	buf.WriteString("-- prebuilt configuration\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(g.now().UTC().Format(time.RFC3339))
	buf.WriteString("\n\n")

	buf.WriteString(luaGlobalPrebuilt)
	buf.WriteString(" = {\n")

	g.writeString(&buf, 1, luaFieldCacheRoot, config.CacheRoot)
	g.writeString(&buf, 1, luaFieldScope, config.Scope)
	g.writeString(&buf, 1, luaFieldNPM, config.NPM)
	if config.Lock {
		g.writeLine(&buf, 1, luaFieldLock+" = true,")
	}

	if len(config.Tools) > 0 {
		g.writeTools(&buf, config)
	}

	buf.WriteString("}\n")

	return buf.String(), nil
}

// writeTools writes the tools section to the buffer, sorted by name.
func (g *Generator) writeTools(buf *bytes.Buffer, config *Config) {
	g.writeLine(buf, 1, luaFieldTools+" = {")

	for _, name := range config.ToolNames() {
		tc := config.Tools[name]
		key := g.luaKey(name)

		// A bare version is written as a string
		if tc.Upstream == "" && tc.Mirror == "" && tc.Origin == "" && tc.Verify == nil && tc.Keyring == "" {
			g.writeLine(buf, 2, fmt.Sprintf("%s = %s,", key, g.quoteLuaString(tc.Version)))
			continue
		}

		g.writeLine(buf, 2, key+" = {")
		g.writeString(buf, 3, luaFieldVersion, tc.Version)
		g.writeString(buf, 3, luaFieldUpstream, tc.Upstream)
		g.writeString(buf, 3, luaFieldMirror, tc.Mirror)
		g.writeString(buf, 3, luaFieldOrigin, tc.Origin)
		if tc.Verify != nil {
			g.writeLine(buf, 3, fmt.Sprintf("%s = %t,", luaFieldVerify, *tc.Verify))
		}
		g.writeString(buf, 3, luaFieldKeyring, tc.Keyring)
		g.writeLine(buf, 2, "},")
	}

	g.writeLine(buf, 1, "},")
}

// writeString writes `name = "value",` unless value is empty.
func (g *Generator) writeString(buf *bytes.Buffer, depth int, name, value string) {
	if value == "" {
		return
	}
	g.writeLine(buf, depth, name+" = "+g.quoteLuaString(value)+",")
}

func (g *Generator) writeLine(buf *bytes.Buffer, depth int, line string) {
	buf.WriteString(strings.Repeat(g.indent, depth))
	buf.WriteString(line)
	buf.WriteString("\n")
}

// luaKey returns name as a table key, bracketed when it is not a plain
// identifier.
func (g *Generator) luaKey(name string) string {
	for i, r := range name {
		isAlpha := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !(isDigit && i > 0) {
			return "[" + g.quoteLuaString(name) + "]"
		}
	}
	return name
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	// Use double quotes and escape special characters
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"") // Escape double quotes
	s = strings.ReplaceAll(s, "\n", "\\n")  // Escape newlines
	s = strings.ReplaceAll(s, "\r", "\\r")  // Escape carriage returns
	s = strings.ReplaceAll(s, "\t", "\\t")  // Escape tabs
	return "\"" + s + "\""
}
