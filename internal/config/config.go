// Package config loads, validates, and persists the host process's runtime
// settings: rendering preferences, completion/process-control behavior, the
// builtin dispatch level, and the color palette. It also watches the config
// file for external edits and re-applies them without a restart.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"tesh/internal/builtin"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond

	paletteThemeSize = 256
)

// defaultConfigDirFn is a test seam; tests override it to point the
// directory validateConfigPath accepts at a temporary directory.
var defaultConfigDirFn = defaultConfigDir
var userHomeDirFn = os.UserHomeDir

var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Palette holds the 256-entry indexed theme plus semantic color slots
// (foreground, background, cursor, selection, ...) layered over it.
type Palette struct {
	Theme    [paletteThemeSize]string `yaml:"theme,omitempty" json:"theme,omitempty"`
	Semantic map[string]string        `yaml:"semantic,omitempty" json:"semantic,omitempty"`
}

// OnSpawnScrollMode selects where the view scrolls to when a new pipeline
// starts producing output.
type OnSpawnScrollMode string

const (
	ScrollModeBottom OnSpawnScrollMode = "bottom"
	ScrollModeHold   OnSpawnScrollMode = "hold"
)

// Config is the host process's runtime configuration.
type Config struct {
	// EscapeCloses: Escape dismisses an open overlay (scrollback search,
	// completion popup) instead of being forwarded to the running program.
	EscapeCloses bool `yaml:"escape_closes" json:"escape_closes"`
	// OnSpawnAttach: a newly started pipeline's backlog becomes the
	// focused view immediately.
	OnSpawnAttach bool `yaml:"on_spawn_attach" json:"on_spawn_attach"`
	// OnSpawnScrollMode: "bottom" follows new output, "hold" keeps the
	// viewport where the user left it.
	OnSpawnScrollMode OnSpawnScrollMode `yaml:"on_spawn_scroll_mode" json:"on_spawn_scroll_mode"`
	// OnSelectAutoCopy: selecting backlog text copies it to the clipboard
	// without an explicit copy keystroke.
	OnSelectAutoCopy bool `yaml:"on_select_auto_copy" json:"on_select_auto_copy"`

	FontPath        string `yaml:"font_path,omitempty" json:"font_path,omitempty"`
	DefaultFontSize int    `yaml:"default_font_size" json:"default_font_size"`
	TabWidth        int    `yaml:"tab_width" json:"tab_width"`

	// MaxLength caps a single Backlog's retained byte length (Backlog's
	// max_length, not a file-size limit).
	MaxLength uint64 `yaml:"max_length" json:"max_length"`

	// WindowsWideTerminal clamps the pseudo-terminal's reported column
	// count to a large constant so the host PTY never wraps lines itself.
	WindowsWideTerminal bool `yaml:"windows_wide_terminal" json:"windows_wide_terminal"`

	CaseSensitiveCompletion  bool `yaml:"case_sensitive_completion" json:"case_sensitive_completion"`
	ControlDeleteKillProcess bool `yaml:"control_delete_kill_process" json:"control_delete_kill_process"`
	BacklogInfoRenderDate    bool `yaml:"backlog_info_render_date" json:"backlog_info_render_date"`

	// BuiltinLevel selects which builtins shadow an external program of
	// the same name: 0 = minimum, 1 = compromise, 2 = everything.
	BuiltinLevel builtin.Level `yaml:"builtin_level" json:"builtin_level"`

	Palette Palette `yaml:"palette" json:"palette"`
}

// DefaultConfig returns the configuration used when no file exists yet and
// as the base that a loaded file's zero-valued fields fall back to.
func DefaultConfig() Config {
	return Config{
		EscapeCloses:             true,
		OnSpawnAttach:            true,
		OnSpawnScrollMode:        ScrollModeBottom,
		OnSelectAutoCopy:         false,
		DefaultFontSize:          14,
		TabWidth:                 8,
		MaxLength:                1 << 20,
		WindowsWideTerminal:      runtime.GOOS == "windows",
		CaseSensitiveCompletion:  false,
		ControlDeleteKillProcess: true,
		BacklogInfoRenderDate:    false,
		BuiltinLevel:             builtin.LevelCompromise,
		Palette:                  defaultPalette(),
	}
}

func defaultPalette() Palette {
	return Palette{
		Semantic: map[string]string{
			"foreground": "#d4d4d4",
			"background": "#1e1e1e",
			"cursor":     "#d4d4d4",
			"selection":  "#264f78",
		},
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
// The temp-dir fallback is not a stable persistence location and may vary
// between sessions depending on environment configuration.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "tesh", "config.yaml")
}

// Load reads the config file. If the file does not exist, defaults are
// returned without error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes the default config if missing and returns the loaded
// config either way.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Clone returns a deep copy of cfg.
func Clone(src Config) Config {
	dst := src
	dst.Palette.Theme = src.Palette.Theme
	if src.Palette.Semantic != nil {
		dst.Palette.Semantic = make(map[string]string, len(src.Palette.Semantic))
		maps.Copy(dst.Palette.Semantic, src.Palette.Semantic)
	}
	return dst
}

// Save validates cfg, fills defaults, and atomically writes it to path.
// Returns the normalized config actually written to disk.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory when that directory is resolvable.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}

	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in
// place. Used by both Load and Save to ensure consistent normalization.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		*cfg = defaults
		return nil
	}

	if cfg.OnSpawnScrollMode == "" {
		cfg.OnSpawnScrollMode = defaults.OnSpawnScrollMode
	}
	if cfg.OnSpawnScrollMode != ScrollModeBottom && cfg.OnSpawnScrollMode != ScrollModeHold {
		return fmt.Errorf("on_spawn_scroll_mode: invalid value %q", cfg.OnSpawnScrollMode)
	}
	if cfg.DefaultFontSize <= 0 {
		cfg.DefaultFontSize = defaults.DefaultFontSize
	}
	if cfg.TabWidth <= 0 {
		cfg.TabWidth = defaults.TabWidth
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = defaults.MaxLength
	}
	if cfg.BuiltinLevel < builtin.LevelMinimum || cfg.BuiltinLevel > builtin.LevelEverything {
		slog.Warn("[WARN-CONFIG] builtin_level out of range, falling back to default",
			"configured", cfg.BuiltinLevel)
		cfg.BuiltinLevel = defaults.BuiltinLevel
	}
	if cfg.Palette.Semantic == nil {
		cfg.Palette.Semantic = defaults.Palette.Semantic
	}
	return nil
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
