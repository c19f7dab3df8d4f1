package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScript()
	c.normalizeTTS()
	c.normalizeMaterials()
	c.normalizeAssembly()
	c.normalizePipeline()
	c.normalizeScheduler()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeScript() {
	c.Script.APIKey = strings.TrimSpace(c.Script.APIKey)
	if c.Script.APIKey == "" {
		if value, ok := os.LookupEnv("REELGEN_SCRIPT_API_KEY"); ok {
			c.Script.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Script.APIKey = strings.TrimSpace(value)
		}
	}
	c.Script.BaseURL = strings.TrimSpace(c.Script.BaseURL)
	if c.Script.BaseURL == "" {
		c.Script.BaseURL = defaultScriptBaseURL
	}
	c.Script.Model = strings.TrimSpace(c.Script.Model)
	if c.Script.Model == "" {
		c.Script.Model = defaultScriptModel
	}
	if c.Script.TimeoutSeconds <= 0 {
		c.Script.TimeoutSeconds = defaultScriptTimeout
	}
	if c.Script.ParagraphCount <= 0 {
		c.Script.ParagraphCount = defaultParagraphCount
	}
	if c.Script.SearchTerms <= 0 {
		c.Script.SearchTerms = defaultSearchTerms
	}
}

func (c *Config) normalizeTTS() {
	c.TTS.BaseURL = strings.TrimSpace(c.TTS.BaseURL)
	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	if c.TTS.APIKey == "" {
		if value, ok := os.LookupEnv("REELGEN_TTS_API_KEY"); ok {
			c.TTS.APIKey = strings.TrimSpace(value)
		}
	}
	voices := make([]string, 0, len(c.TTS.Voices))
	seen := make(map[string]struct{}, len(c.TTS.Voices))
	for _, voice := range c.TTS.Voices {
		normalized := strings.TrimSpace(voice)
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		voices = append(voices, normalized)
	}
	if len(voices) == 0 {
		voices = Default().TTS.Voices
	}
	c.TTS.Voices = voices
	c.TTS.DefaultVoice = strings.TrimSpace(c.TTS.DefaultVoice)
	if c.TTS.DefaultVoice == "" {
		c.TTS.DefaultVoice = c.TTS.Voices[0]
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeout
	}
}

func (c *Config) normalizeMaterials() {
	c.Materials.Provider = strings.ToLower(strings.TrimSpace(c.Materials.Provider))
	if c.Materials.Provider == "" {
		c.Materials.Provider = defaultMaterialsProvider
	}
	c.Materials.APIKey = strings.TrimSpace(c.Materials.APIKey)
	if c.Materials.APIKey == "" {
		if value, ok := os.LookupEnv("PEXELS_API_KEY"); ok {
			c.Materials.APIKey = strings.TrimSpace(value)
		}
	}
	c.Materials.BaseURL = strings.TrimSpace(c.Materials.BaseURL)
	if c.Materials.BaseURL == "" {
		c.Materials.BaseURL = defaultMaterialsBaseURL
	}
	if c.Materials.MaxClips <= 0 {
		c.Materials.MaxClips = defaultMaterialsMaxClips
	}
	if c.Materials.TimeoutSeconds <= 0 {
		c.Materials.TimeoutSeconds = defaultMaterialsTimeout
	}
}

func (c *Config) normalizeAssembly() {
	c.Assembly.FFmpegBinary = strings.TrimSpace(c.Assembly.FFmpegBinary)
	if c.Assembly.FFmpegBinary == "" {
		c.Assembly.FFmpegBinary = "ffmpeg"
	}
	c.Assembly.FFprobeBinary = strings.TrimSpace(c.Assembly.FFprobeBinary)
	if c.Assembly.FFprobeBinary == "" {
		c.Assembly.FFprobeBinary = "ffprobe"
	}
	if len(c.Assembly.Resolutions) == 0 {
		c.Assembly.Resolutions = Default().Assembly.Resolutions
	}
	if c.Assembly.Threads <= 0 {
		c.Assembly.Threads = 2
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.StageTimeoutSeconds <= 0 {
		c.Pipeline.StageTimeoutSeconds = defaultStageTimeoutSeconds
	}
	if c.Pipeline.RetryAttempts <= 0 {
		c.Pipeline.RetryAttempts = defaultRetryAttempts
	}
	if c.Pipeline.RetryBaseSeconds <= 0 {
		c.Pipeline.RetryBaseSeconds = defaultRetryBaseSeconds
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = defaultWorkers
	}
	if c.Scheduler.QueueCapacity <= 0 {
		c.Scheduler.QueueCapacity = defaultQueueCapacity
	}
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = defaultPollInterval
	}
	if c.Scheduler.ErrorRetryWaitSec <= 0 {
		c.Scheduler.ErrorRetryWaitSec = defaultErrorRetryWait
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
