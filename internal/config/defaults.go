package config

const (
	defaultDataDir             = "~/.local/share/reelgen"
	defaultLogDir              = "~/.local/share/reelgen/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultScriptBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultScriptModel         = "google/gemini-3-flash-preview"
	defaultScriptTimeout       = 60
	defaultParagraphCount      = 3
	defaultSearchTerms         = 5
	defaultTTSTimeout          = 120
	defaultTTSVoice            = "en-US-1"
	defaultMaxCueLength        = 42
	defaultSubtitleFont        = "Arial"
	defaultSubtitleFontSize    = 48
	defaultMaterialsProvider   = "pexels"
	defaultMaterialsBaseURL    = "https://api.pexels.com/videos"
	defaultMaterialsMaxClips   = 6
	defaultMaterialsTimeout    = 180
	defaultStageTimeoutSeconds = 120
	defaultRetryAttempts       = 3
	defaultRetryBaseSeconds    = 1
	defaultWorkers             = 2
	defaultQueueCapacity       = 256
	defaultPollInterval        = 5
	defaultErrorRetryWait      = 10
)

// Default returns a Config populated with repository defaults.
func Default() *Config {
	return &Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Script: Script{
			BaseURL:        defaultScriptBaseURL,
			Model:          defaultScriptModel,
			TimeoutSeconds: defaultScriptTimeout,
			ParagraphCount: defaultParagraphCount,
			SearchTerms:    defaultSearchTerms,
		},
		TTS: TTS{
			Voices:         []string{"en-US-1", "en-US-2", "en-GB-1", "zh-CN-1"},
			DefaultVoice:   defaultTTSVoice,
			TimeoutSeconds: defaultTTSTimeout,
		},
		Subtitles: Subtitles{
			Enabled:      true,
			MaxCueLength: defaultMaxCueLength,
			FontName:     defaultSubtitleFont,
			FontSize:     defaultSubtitleFontSize,
		},
		Materials: Materials{
			Provider:       defaultMaterialsProvider,
			BaseURL:        defaultMaterialsBaseURL,
			MaxClips:       defaultMaterialsMaxClips,
			TimeoutSeconds: defaultMaterialsTimeout,
		},
		Assembly: Assembly{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			Resolutions:   []string{"1080x1920", "1920x1080", "720x1280"},
			Threads:       2,
		},
		Pipeline: Pipeline{
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			RetryAttempts:       defaultRetryAttempts,
			RetryBaseSeconds:    defaultRetryBaseSeconds,
		},
		Scheduler: Scheduler{
			Workers:           defaultWorkers,
			QueueCapacity:     defaultQueueCapacity,
			PollInterval:      defaultPollInterval,
			ErrorRetryWaitSec: defaultErrorRetryWait,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
