package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/prebuilt/internal/logging"
	"github.com/ZebulonRouseFrantzich/prebuilt/internal/platform"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
	timeout  time.Duration
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector, logger logging.Logger) *Parser {
	return &Parser{
		detector: detector,
		logger:   logging.OrNop(logger),
		timeout:  DefaultParseTimeout,
	}
}

// SetTimeout bounds how long a config may run. Zero disables the deadline.
func (p *Parser) SetTimeout(d time.Duration) {
	p.timeout = d
}

// Load reads the config file at path and applies environment overrides.
// A missing file is not an error: Defaults are used instead.
func (p *Parser) Load(ctx context.Context, path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Defaults()
	} else {
		parsed, err := p.ParseFile(ctx, path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			p.logger.Debug("no config file, using defaults", "path", path)
			cfg = Defaults()
		case err != nil:
			return nil, err
		default:
			cfg = parsed
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ParseFile parses the config file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxConfigSize),
		}
	}

	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string.
// Missing fields keep their Defaults.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	for _, finding := range DetectSensitiveData(luaCode) {
		p.logger.Warn("possible secret in config; use environment variables instead",
			"pattern", finding.PatternName, "line", finding.Line, "preview", finding.Preview)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	L := newSandboxedVM(ctx)
	defer L.Close()

	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctx.Err() != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: err.Error()}
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig reads the global "prebuilt" table over Defaults. An
// absent table yields Defaults.
func extractConfig(L *lua.LState) (*Config, error) {
	cfg := Defaults()

	global := L.GetGlobal(luaGlobalPrebuilt)
	switch global.Type() {
	case lua.LTNil:
		return cfg, nil
	case lua.LTTable:
	default:
		return nil, &ParseError{
			Message: fmt.Sprintf("invalid '%s' table", luaGlobalPrebuilt),
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}
	table := global.(*lua.LTable)

	var err error
	if cfg.CacheRoot, err = stringField(table, luaFieldCacheRoot, cfg.CacheRoot); err != nil {
		return nil, err
	}
	if cfg.Scope, err = stringField(table, luaFieldScope, cfg.Scope); err != nil {
		return nil, err
	}
	if cfg.NPM, err = stringField(table, luaFieldNPM, cfg.NPM); err != nil {
		return nil, err
	}
	if lockVal := table.RawGetString(luaFieldLock); lockVal.Type() != lua.LTNil {
		if lockVal.Type() != lua.LTBool {
			return nil, fieldTypeError(luaFieldLock, "boolean", lockVal)
		}
		cfg.Lock = bool(lockVal.(lua.LBool))
	}

	if toolsVal := table.RawGetString(luaFieldTools); toolsVal.Type() != lua.LTNil {
		toolsTable, ok := toolsVal.(*lua.LTable)
		if !ok {
			return nil, fieldTypeError(luaFieldTools, "table", toolsVal)
		}
		tools, err := extractTools(toolsTable)
		if err != nil {
			return nil, err
		}
		cfg.Tools = tools
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return cfg, nil
}

// extractTools reads the tools table, keyed by tool name.
func extractTools(table *lua.LTable) (map[string]ToolConfig, error) {
	tools := map[string]ToolConfig{}

	var firstErr error
	table.ForEach(func(key, value lua.LValue) {
		if firstErr != nil {
			return
		}
		if key.Type() != lua.LTString {
			firstErr = fieldTypeError(luaFieldTools, "table keyed by tool name", key)
			return
		}
		name := key.String()
		field := luaFieldTools + "." + name

		// Platform conditionals may leave a tool out entirely
		if value.Type() == lua.LTNil {
			return
		}
		if value.Type() == lua.LTString {
			tools[name] = ToolConfig{Version: value.String()}
			return
		}
		toolTable, ok := value.(*lua.LTable)
		if !ok {
			firstErr = fieldTypeError(field, "table or version string", value)
			return
		}

		tc, err := extractTool(toolTable, field)
		if err != nil {
			firstErr = err
			return
		}
		tools[name] = tc
	})

	return tools, firstErr
}

func extractTool(table *lua.LTable, field string) (ToolConfig, error) {
	var tc ToolConfig
	var err error

	if tc.Version, err = stringField(table, luaFieldVersion, ""); err != nil {
		return tc, prefixField(field, err)
	}
	if tc.Upstream, err = stringField(table, luaFieldUpstream, ""); err != nil {
		return tc, prefixField(field, err)
	}
	if tc.Mirror, err = stringField(table, luaFieldMirror, ""); err != nil {
		return tc, prefixField(field, err)
	}
	if tc.Origin, err = stringField(table, luaFieldOrigin, ""); err != nil {
		return tc, prefixField(field, err)
	}
	if tc.Keyring, err = stringField(table, luaFieldKeyring, ""); err != nil {
		return tc, prefixField(field, err)
	}

	if verifyVal := table.RawGetString(luaFieldVerify); verifyVal.Type() != lua.LTNil {
		if verifyVal.Type() != lua.LTBool {
			return tc, fieldTypeError(field+"."+luaFieldVerify, "boolean", verifyVal)
		}
		verify := bool(verifyVal.(lua.LBool))
		tc.Verify = &verify
	}

	return tc, nil
}

// stringField returns a string field, def when it is nil.
func stringField(table *lua.LTable, name, def string) (string, error) {
	value := table.RawGetString(name)
	switch value.Type() {
	case lua.LTNil:
		return def, nil
	case lua.LTString:
		return value.String(), nil
	default:
		return "", fieldTypeError(name, "string", value)
	}
}

func fieldTypeError(field, want string, got lua.LValue) error {
	return &ParseError{
		Message: fmt.Sprintf("invalid field '%s'", field),
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

func prefixField(prefix string, err error) error {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return &ParseError{
			Message: strings.Replace(parseErr.Message, "'", "'"+prefix+".", 1),
			Detail:  parseErr.Detail,
		}
	}
	return err
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
