package elevenlabs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/readaloud/readaloud/internal/registry"
	"github.com/readaloud/readaloud/internal/restutil"
	"github.com/readaloud/readaloud/internal/speech/backends/backendutil"
	"github.com/readaloud/readaloud/internal/speech/engine"
)

const defaultBaseURL = "https://api.elevenlabs.io/v1"

func init() {
	registry.TTS.Register("elevenlabs", func(config map[string]string) (engine.TTSEngine, error) {
		apiKey := backendutil.First(config, "elevenlabs_api_key", backendutil.KeyAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("elevenlabs API key required (set elevenlabs_api_key in config)")
		}
		model := config[backendutil.KeyModel]
		if model == "" {
			model = "eleven_multilingual_v2"
		}
		baseURL := config["elevenlabs_base_url"]
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		return &ElevenLabsTTS{apiKey: apiKey, model: model, baseURL: baseURL}, nil
	})
}

type elevenLabsRequest struct {
	Text          string                `json:"text"`
	ModelID       string                `json:"model_id"`
	VoiceSettings elevenLabsVoiceConfig `json:"voice_settings"`
}

type elevenLabsVoiceConfig struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// ElevenLabsTTS implements TTSEngine using the ElevenLabs REST API. Only mp3
// output is offered.
type ElevenLabsTTS struct {
	apiKey  string
	model   string
	baseURL string
}

func (e *ElevenLabsTTS) Synthesize(ctx context.Context, req engine.Request) (*engine.Audio, error) {
	if req.Format != "" && req.Format != engine.FormatMP3 {
		return nil, &engine.TTSError{
			Op:      "elevenlabs synthesize",
			Message: fmt.Sprintf("format %s is not supported by elevenlabs", req.Format),
		}
	}

	voice := req.Voice
	if voice == "" {
		voice = "21m00Tcm4TlvDq8ikWAM" // Rachel
	}
	apiURL := fmt.Sprintf("%s/text-to-speech/%s?output_format=mp3_44100_128", e.baseURL, url.PathEscape(voice))

	body, err := restutil.MarshalJSON(elevenLabsRequest{
		Text:    req.Text,
		ModelID: e.model,
		VoiceSettings: elevenLabsVoiceConfig{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, backendutil.TTSError("elevenlabs synthesize", err)
	}

	headers := map[string]string{
		"xi-api-key":   e.apiKey,
		"Content-Type": "application/json",
		"Accept":       "audio/mpeg",
	}

	resp, err := restutil.DoRaw(ctx, http.MethodPost, apiURL, headers, body)
	if err != nil {
		return nil, backendutil.TTSError("elevenlabs synthesize", err)
	}
	if len(resp.Body) == 0 || resp.IsJSON() {
		return nil, backendutil.Malformed("elevenlabs synthesize", "speech provider returned no audio")
	}
	return &engine.Audio{Data: resp.Body, MimeType: engine.FormatMP3.MimeType()}, nil
}

func (e *ElevenLabsTTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Language: "en"},
		{ID: "AZnzlk1XvdvUeBnXmlld", Name: "Domi", Language: "en"},
		{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Bella", Language: "en"},
		{ID: "ErXwobaYiN019PkySvjV", Name: "Antoni", Language: "en"},
	}
}

func (e *ElevenLabsTTS) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: "eleven_multilingual_v2", DisplayName: "Multilingual v2", IsDefault: true},
		{ID: "eleven_monolingual_v1", DisplayName: "Monolingual v1"},
		{ID: "eleven_turbo_v2", DisplayName: "Turbo v2"},
	}
}

func (e *ElevenLabsTTS) Close() error {
	return nil
}
