package config

import (
	"strings"
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/readaloud/readaloud/internal/device"
	"github.com/readaloud/readaloud/internal/download"
	"github.com/readaloud/readaloud/internal/playback"
	"github.com/readaloud/readaloud/internal/speech/client"
	"github.com/readaloud/readaloud/internal/speech/engine"
)

// ReaderConfig holds configuration for the read-aloud service.
type ReaderConfig struct {
	config.ConfigurationDefault

	// Speech
	TTSBackend       string `envDefault:"remote"                    env:"TTS_BACKEND"`
	TTSEndpointURL   string `envDefault:""                          env:"TTS_ENDPOINT_URL"`
	TTSAPIKey        string `envDefault:""                          env:"TTS_API_KEY"`
	OpenAIAPIKey     string `envDefault:""                          env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `envDefault:"https://api.openai.com/v1" env:"OPENAI_BASE_URL"`
	TTSModel         string `envDefault:""                          env:"TTS_MODEL"`
	ElevenLabsAPIKey string `envDefault:""                          env:"ELEVENLABS_API_KEY"`
	GoogleAPIKey     string `envDefault:""                          env:"GOOGLE_API_KEY"`
	PiperBinaryPath  string `envDefault:"piper"                     env:"PIPER_BINARY_PATH"`
	PiperModelDir    string `envDefault:"./models"                  env:"PIPER_MODEL_DIR"`
	PiperModel       string `envDefault:"en_US-amy-medium"          env:"PIPER_MODEL"`
	DefaultVoice     string `envDefault:"alloy"                     env:"DEFAULT_VOICE"`
	AudioFormat      string `envDefault:"mp3"                       env:"AUDIO_FORMAT"`

	// Playback
	ChunkSize       int  `envDefault:"500"  env:"CHUNK_SIZE"`
	PrefetchAhead   int  `envDefault:"2"    env:"PREFETCH_AHEAD"`
	PrefetchWaitMs  int  `envDefault:"5000" env:"PREFETCH_WAIT_MS"`
	ResetDelayMs    int  `envDefault:"2000" env:"RESET_DELAY_MS"`
	PauseWhenHidden bool `envDefault:"true" env:"PAUSE_WHEN_HIDDEN"`

	// Output device
	PlayerCommand string `envDefault:"ffplay"                                 env:"PLAYER_COMMAND"`
	PlayerArgs    string `envDefault:"-nodisp -autoexit -loglevel quiet -i -" env:"PLAYER_ARGS"`

	// Translation
	TranslateEndpointURL string `envDefault:"" env:"TRANSLATE_ENDPOINT_URL"`
	TranslateAPIKey      string `envDefault:"" env:"TRANSLATE_API_KEY"`

	// Voices and caching
	VoiceCatalogDir   string `envDefault:"./voices" env:"VOICE_CATALOG_DIR"`
	AudioCacheEnabled bool   `envDefault:"false"    env:"AUDIO_CACHE_ENABLED"`

	// Provider circuit breaker
	CBFailThreshold   int `envDefault:"5"  env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec int `envDefault:"30" env:"CB_RESET_TIMEOUT_SEC"`

	MaxUploadMB int `envDefault:"25" env:"MAX_UPLOAD_MB"`
}

// Format returns the configured audio format, falling back to mp3 when the
// value is not recognised.
func (c *ReaderConfig) Format() engine.Format {
	f, err := engine.ParseFormat(c.AudioFormat)
	if err != nil {
		return engine.FormatMP3
	}
	return f
}

// PlaybackConfig builds the controller settings.
func (c *ReaderConfig) PlaybackConfig() playback.Config {
	cfg := playback.DefaultConfig()
	if c.ChunkSize > 0 {
		cfg.ChunkSize = c.ChunkSize
	}
	if c.PrefetchAhead >= 0 {
		cfg.PrefetchAhead = c.PrefetchAhead
	}
	if c.PrefetchWaitMs > 0 {
		cfg.PrefetchWait = time.Duration(c.PrefetchWaitMs) * time.Millisecond
	}
	if c.ResetDelayMs >= 0 {
		cfg.ResetDelay = time.Duration(c.ResetDelayMs) * time.Millisecond
	}
	cfg.PauseWhenHidden = c.PauseWhenHidden
	if c.DefaultVoice != "" {
		cfg.Voice = c.DefaultVoice
	}
	cfg.Format = c.Format()
	return cfg
}

// DownloadConfig builds the download aggregator settings.
func (c *ReaderConfig) DownloadConfig() download.Config {
	return download.Config{ChunkSize: c.ChunkSize, Format: c.Format()}
}

// DeviceConfig builds the output device settings.
func (c *ReaderConfig) DeviceConfig() device.Config {
	cfg := device.DefaultConfig()
	if c.PlayerCommand != "" {
		cfg.Command = c.PlayerCommand
		cfg.Args = strings.Fields(c.PlayerArgs)
	}
	return cfg
}

// BreakerConfig builds the provider circuit breaker settings.
func (c *ReaderConfig) BreakerConfig() client.BreakerConfig {
	return client.BreakerConfig{
		FailureThreshold: c.CBFailThreshold,
		ResetTimeout:     time.Duration(c.CBResetTimeoutSec) * time.Second,
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *ReaderConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// BackendConfig returns the flat key/value config handed to the TTS backend
// factories.
func (c *ReaderConfig) BackendConfig() map[string]string {
	return map[string]string{
		"tts_endpoint_url":   c.TTSEndpointURL,
		"tts_api_key":        c.TTSAPIKey,
		"openai_api_key":     c.OpenAIAPIKey,
		"openai_base_url":    c.OpenAIBaseURL,
		"elevenlabs_api_key": c.ElevenLabsAPIKey,
		"google_api_key":     c.GoogleAPIKey,
		"piper_binary_path":  c.PiperBinaryPath,
		"piper_model_dir":    c.PiperModelDir,
		"piper_model":        c.PiperModel,
		"model":              c.TTSModel,
	}
}
