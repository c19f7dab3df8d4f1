package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Script contains settings for the script-generation LLM endpoint.
type Script struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ParagraphCount int    `toml:"paragraph_count"`
	SearchTerms    int    `toml:"search_terms"`
}

// TTS contains settings for the speech-synthesis endpoint.
type TTS struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	Voices         []string `toml:"voices"`
	DefaultVoice   string   `toml:"default_voice"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Subtitles contains settings for subtitle generation.
type Subtitles struct {
	Enabled      bool   `toml:"enabled"`
	MaxCueLength int    `toml:"max_cue_length"`
	FontName     string `toml:"font_name"`
	FontSize     int    `toml:"font_size"`
}

// Materials contains settings for stock-clip search and download.
type Materials struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	MaxClips       int    `toml:"max_clips"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Assembly contains settings for the final video render.
type Assembly struct {
	FFmpegBinary  string   `toml:"ffmpeg_binary"`
	FFprobeBinary string   `toml:"ffprobe_binary"`
	Resolutions   []string `toml:"resolutions"`
	Threads       int      `toml:"threads"`
}

// Pipeline contains stage execution policy.
type Pipeline struct {
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
	RetryAttempts       int `toml:"retry_attempts"`
	RetryBaseSeconds    int `toml:"retry_base_seconds"`
}

// Scheduler contains worker pool settings.
type Scheduler struct {
	Workers           int `toml:"workers"`
	QueueCapacity     int `toml:"queue_capacity"`
	PollInterval      int `toml:"poll_interval"`
	ErrorRetryWaitSec int `toml:"error_retry_wait"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reelgen.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Script: LLM connection for script generation
//   - TTS: speech synthesis endpoint and supported voices
//   - Subtitles: subtitle generation toggles and styling
//   - Materials: stock-clip search provider
//   - Assembly: ffmpeg/ffprobe binaries and render limits
//   - Pipeline: per-stage timeout and retry policy
//   - Scheduler: worker pool sizing and store polling
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Script    Script    `toml:"script"`
	TTS       TTS       `toml:"tts"`
	Subtitles Subtitles `toml:"subtitles"`
	Materials Materials `toml:"materials"`
	Assembly  Assembly  `toml:"assembly"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Scheduler Scheduler `toml:"scheduler"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelgen/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("reelgen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.TasksDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TasksDir returns the directory holding per-task working directories.
func (c *Config) TasksDir() string {
	return filepath.Join(c.Paths.DataDir, "tasks")
}

// SupportedVoice reports whether a voice id is in the configured set.
func (c *Config) SupportedVoice(voice string) bool {
	voice = strings.TrimSpace(voice)
	for _, v := range c.TTS.Voices {
		if strings.EqualFold(v, voice) {
			return true
		}
	}
	return false
}

// SupportedResolution reports whether a resolution is in the configured set.
func (c *Config) SupportedResolution(resolution string) bool {
	resolution = strings.TrimSpace(resolution)
	for _, r := range c.Assembly.Resolutions {
		if strings.EqualFold(r, resolution) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
