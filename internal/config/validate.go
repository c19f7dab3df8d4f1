package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateAssembly(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTTS() error {
	if len(c.TTS.Voices) == 0 {
		return errors.New("tts.voices must include at least one voice")
	}
	if !c.SupportedVoice(c.TTS.DefaultVoice) {
		return fmt.Errorf("tts.default_voice %q is not in tts.voices", c.TTS.DefaultVoice)
	}
	return nil
}

func (c *Config) validateAssembly() error {
	if len(c.Assembly.Resolutions) == 0 {
		return errors.New("assembly.resolutions must include at least one resolution")
	}
	for _, resolution := range c.Assembly.Resolutions {
		if _, _, err := ParseResolution(resolution); err != nil {
			return fmt.Errorf("assembly.resolutions: %w", err)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	return ensurePositiveMap(map[string]int{
		"pipeline.stage_timeout_seconds": c.Pipeline.StageTimeoutSeconds,
		"pipeline.retry_attempts":        c.Pipeline.RetryAttempts,
		"pipeline.retry_base_seconds":    c.Pipeline.RetryBaseSeconds,
	})
}

func (c *Config) validateScheduler() error {
	return ensurePositiveMap(map[string]int{
		"scheduler.workers":          c.Scheduler.Workers,
		"scheduler.queue_capacity":   c.Scheduler.QueueCapacity,
		"scheduler.poll_interval":    c.Scheduler.PollInterval,
		"scheduler.error_retry_wait": c.Scheduler.ErrorRetryWaitSec,
	})
}

// ParseResolution splits a WxH resolution string into its dimensions.
func ParseResolution(value string) (width, height int, err error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(value)), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("resolution %q must look like 1080x1920", value)
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &width); err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("resolution %q has invalid width", value)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &height); err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("resolution %q has invalid height", value)
	}
	return width, height, nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
