package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/readaloud/readaloud/internal/registry"
	"github.com/readaloud/readaloud/internal/restutil"
	"github.com/readaloud/readaloud/internal/speech/backends/backendutil"
	"github.com/readaloud/readaloud/internal/speech/engine"
)

const defaultEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

func init() {
	registry.TTS.Register("google", func(config map[string]string) (engine.TTSEngine, error) {
		apiKey := backendutil.First(config, "google_api_key", backendutil.KeyAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("google API key required (set google_api_key in config)")
		}
		endpoint := config["google_endpoint_url"]
		if endpoint == "" {
			endpoint = defaultEndpoint
		}
		return &GoogleTTS{apiKey: apiKey, endpoint: endpoint}, nil
	})
}

type googleSynthRequest struct {
	Input       googleSynthInput       `json:"input"`
	Voice       googleSynthVoice       `json:"voice"`
	AudioConfig googleSynthAudioConfig `json:"audioConfig"`
}

type googleSynthInput struct {
	Text string `json:"text"`
}

type googleSynthVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type googleSynthAudioConfig struct {
	AudioEncoding string `json:"audioEncoding"`
}

type googleSynthResponse struct {
	AudioContent string `json:"audioContent"` // base64-encoded
}

// GoogleTTS implements TTSEngine using the Google Cloud Text-to-Speech REST API.
type GoogleTTS struct {
	apiKey   string
	endpoint string
}

var encodings = map[engine.Format]string{
	engine.FormatMP3:  "MP3",
	engine.FormatOpus: "OGG_OPUS",
	engine.FormatWAV:  "LINEAR16",
}

func (g *GoogleTTS) Synthesize(ctx context.Context, req engine.Request) (*engine.Audio, error) {
	format := req.Format
	if format == "" {
		format = engine.FormatMP3
	}
	encoding, ok := encodings[format]
	if !ok {
		return nil, &engine.TTSError{
			Op:      "google synthesize",
			Message: fmt.Sprintf("format %s is not supported by google", format),
		}
	}

	voice := req.Voice
	if voice == "" {
		voice = "en-US-Neural2-A"
	}

	apiURL := g.endpoint + "?key=" + url.QueryEscape(g.apiKey)
	body := googleSynthRequest{
		Input: googleSynthInput{Text: req.Text},
		Voice: googleSynthVoice{
			LanguageCode: languageOf(voice),
			Name:         voice,
		},
		AudioConfig: googleSynthAudioConfig{AudioEncoding: encoding},
	}

	var resp googleSynthResponse
	if err := restutil.DoJSON(ctx, http.MethodPost, apiURL, nil, body, &resp); err != nil {
		return nil, backendutil.TTSError("google synthesize", err)
	}

	data, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil || len(data) == 0 {
		return nil, backendutil.Malformed("google synthesize", "speech provider returned undecodable audio")
	}
	return &engine.Audio{Data: data, MimeType: format.MimeType()}, nil
}

// languageOf derives the BCP-47 code from a voice name like "en-US-Neural2-A".
func languageOf(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}

func (g *GoogleTTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "en-US-Neural2-A", Name: "Neural2 A (Female)", Language: "en-US"},
		{ID: "en-US-Neural2-C", Name: "Neural2 C (Female)", Language: "en-US"},
		{ID: "en-US-Studio-M", Name: "Studio M (Male)", Language: "en-US"},
		{ID: "en-US-Studio-O", Name: "Studio O (Female)", Language: "en-US"},
	}
}

func (g *GoogleTTS) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: "neural2", DisplayName: "Neural2", IsDefault: true},
		{ID: "studio", DisplayName: "Studio"},
	}
}

func (g *GoogleTTS) Close() error {
	return nil
}
