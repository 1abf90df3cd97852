// Package config loads rr's settings from JSONC files and flag overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/flate"
	"github.com/tailscale/hujson"
)

// Errors returned by Load.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrWorkDirEmpty       = errors.New("work-dir cannot be empty")
	ErrLockDirEmpty       = errors.New("lock-dir cannot be empty")
	ErrLogLevel           = errors.New("log-level must be debug, info, warn or error")
	ErrCompressionLevel   = errors.New("compression-level must be between -1 and 9")
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	WorkDir          string `json:"work_dir,omitempty"`
	LockDir          string `json:"lock_dir,omitempty"`
	LogLevel         string `json:"log_level,omitempty"`
	CompressionLevel *int   `json:"compression_level,omitempty"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string `json:"global,omitempty"  yaml:"global,omitempty"`  // Path to global config if loaded, empty otherwise
	Project string `json:"project,omitempty" yaml:"project,omitempty"` // Path to project or explicit config if loaded, empty otherwise
}

// FileName is the project config file looked up in the working directory.
const FileName = ".rr.json"

// Default returns the default configuration. Temporary directories are
// derived from TMPDIR in env, falling back to os.TempDir.
func Default(env map[string]string) Config {
	tmp := env["TMPDIR"]
	if tmp == "" {
		tmp = os.TempDir()
	}

	level := flate.DefaultCompression

	return Config{
		WorkDir:          filepath.Join(tmp, "rr"),
		LockDir:          filepath.Join(tmp, "rr-locks"),
		LogLevel:         "info",
		CompressionLevel: &level,
	}
}

// Overrides are values from command-line flags. Nil fields are unset.
type Overrides struct {
	WorkDir          *string
	LockDir          *string
	LogLevel         *string
	CompressionLevel *int
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	Cwd        string            // directory relative paths resolve against; os.Getwd() if empty
	ConfigPath string            // -c/--config flag value
	Overrides  Overrides         // flag overrides
	Env        map[string]string // environment variables
}

// Load resolves the configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/rr/config.json or ~/.config/rr/config.json)
// 3. Project config (.rr.json in Cwd, if it exists) or the explicit -c file
// 4. Flag overrides.
//
// Directories in the returned Config are absolute.
func Load(input LoadInput) (Config, error) {
	cwd := input.Cwd
	if cwd == "" {
		var err error

		cwd, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default(input.Env)

	globalPath := globalConfigPath(input.Env)
	if globalPath != "" {
		globalCfg, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = globalPath
			cfg = merge(cfg, globalCfg)
		}
	}

	projectPath, mustExist := filepath.Join(cwd, FileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(cwd, projectPath)
		}
	}

	projectCfg, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
		cfg = merge(cfg, projectCfg)
	}

	cfg, err = applyOverrides(cfg, input.Overrides)
	if err != nil {
		return Config{}, err
	}

	err = validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.WorkDir = absFrom(cwd, cfg.WorkDir)
	cfg.LockDir = absFrom(cwd, cfg.LockDir)

	return cfg, nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLogLevel(c.LogLevel)

	return level
}

// Compression returns the configured deflate level.
func (c Config) Compression() int {
	if c.CompressionLevel == nil {
		return flate.DefaultCompression
	}

	return *c.CompressionLevel
}

// globalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/rr/config.json if set, otherwise ~/.config/rr/config.json.
// Returns empty string if home directory cannot be determined.
func globalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "rr", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "rr", "config.json")
	}

	return ""
}

// loadFile loads a config file. If mustExist is false, a missing file
// returns a zero config and loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var raw map[string]json.RawMessage

	err = json.Unmarshal(standardized, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	for _, key := range []string{"work_dir", "lock_dir", "log_level"} {
		if v, ok := raw[key]; ok && strings.TrimSpace(string(v)) == `""` {
			return Config{}, fmt.Errorf("%s cannot be empty", key)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	var cfg Config

	err = dec.Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.WorkDir != "" {
		base.WorkDir = overlay.WorkDir
	}

	if overlay.LockDir != "" {
		base.LockDir = overlay.LockDir
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.CompressionLevel != nil {
		level := *overlay.CompressionLevel
		base.CompressionLevel = &level
	}

	return base
}

func applyOverrides(cfg Config, o Overrides) (Config, error) {
	if o.WorkDir != nil {
		if *o.WorkDir == "" {
			return Config{}, ErrWorkDirEmpty
		}

		cfg.WorkDir = *o.WorkDir
	}

	if o.LockDir != nil {
		if *o.LockDir == "" {
			return Config{}, ErrLockDirEmpty
		}

		cfg.LockDir = *o.LockDir
	}

	if o.LogLevel != nil {
		cfg.LogLevel = *o.LogLevel
	}

	if o.CompressionLevel != nil {
		level := *o.CompressionLevel
		cfg.CompressionLevel = &level
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.WorkDir == "" {
		return ErrWorkDirEmpty
	}

	if cfg.LockDir == "" {
		return ErrLockDirEmpty
	}

	_, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	level := cfg.Compression()
	if level < flate.DefaultCompression || level > flate.BestCompression {
		return fmt.Errorf("%w, got %d", ErrCompressionLevel, level)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w, got %q", ErrLogLevel, s)
	}
}

func absFrom(cwd, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(cwd, path)
}
