package openai

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/readaloud/readaloud/internal/registry"
	"github.com/readaloud/readaloud/internal/restutil"
	"github.com/readaloud/readaloud/internal/speech/backends/backendutil"
	"github.com/readaloud/readaloud/internal/speech/engine"
)

const defaultBaseURL = "https://api.openai.com/v1"

func init() {
	registry.TTS.Register("openai", func(config map[string]string) (engine.TTSEngine, error) {
		apiKey := backendutil.First(config, "openai_api_key", backendutil.KeyAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key required (set openai_api_key in config)")
		}
		baseURL := backendutil.First(config, "openai_base_url", backendutil.KeyBaseURL)
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		model := config[backendutil.KeyModel]
		if model == "" {
			model = "tts-1"
		}
		return &OpenAITTS{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), model: model}, nil
	})
}

// OpenAITTS implements TTSEngine using the OpenAI-compatible speech API.
type OpenAITTS struct {
	apiKey  string
	baseURL string
	model   string
}

type openAITTSRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func (o *OpenAITTS) Synthesize(ctx context.Context, req engine.Request) (*engine.Audio, error) {
	voice := req.Voice
	if voice == "" {
		voice = "alloy"
	}

	body, err := restutil.MarshalJSON(openAITTSRequest{
		Model:          o.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: string(req.Format),
	})
	if err != nil {
		return nil, backendutil.TTSError("openai synthesize", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"Content-Type":  "application/json",
	}

	resp, err := restutil.DoRaw(ctx, http.MethodPost, o.baseURL+"/audio/speech", headers, body)
	if err != nil {
		return nil, backendutil.TTSError("openai synthesize", err)
	}
	if len(resp.Body) == 0 || resp.IsJSON() {
		return nil, backendutil.Malformed("openai synthesize", "speech provider returned no audio")
	}

	mimeType, _, _ := mime.ParseMediaType(resp.ContentType)
	if !strings.HasPrefix(mimeType, "audio/") {
		mimeType = req.Format.MimeType()
	}
	return &engine.Audio{Data: resp.Body, MimeType: mimeType}, nil
}

func (o *OpenAITTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "alloy", Name: "Alloy", Language: "en"},
		{ID: "echo", Name: "Echo", Language: "en"},
		{ID: "fable", Name: "Fable", Language: "en"},
		{ID: "onyx", Name: "Onyx", Language: "en"},
		{ID: "nova", Name: "Nova", Language: "en"},
		{ID: "shimmer", Name: "Shimmer", Language: "en"},
	}
}

func (o *OpenAITTS) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: "tts-1", DisplayName: "TTS 1", IsDefault: true},
		{ID: "tts-1-hd", DisplayName: "TTS 1 HD"},
	}
}

func (o *OpenAITTS) Close() error {
	return nil
}
