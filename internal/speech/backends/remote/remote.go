// Package remote implements the generic HTTP TTS provider contract: a JSON
// POST of {text, voice, response_format} answered either with raw audio bytes
// or with a {success, audio, mime_type} envelope carrying base64 audio.
package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/readaloud/readaloud/internal/registry"
	"github.com/readaloud/readaloud/internal/restutil"
	"github.com/readaloud/readaloud/internal/speech/backends/backendutil"
	"github.com/readaloud/readaloud/internal/speech/engine"
)

const op = "synthesize"

func init() {
	registry.TTS.Register("remote", func(config map[string]string) (engine.TTSEngine, error) {
		endpoint := backendutil.First(config, "tts_endpoint_url", backendutil.KeyEndpoint)
		if endpoint == "" {
			return nil, fmt.Errorf("remote TTS endpoint required (set tts_endpoint_url in config)")
		}
		return New(endpoint, backendutil.First(config, "tts_api_key", backendutil.KeyAPIKey)), nil
	})
}

type synthesizeRequest struct {
	Text           string `json:"text"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

type envelope struct {
	Success  bool   `json:"success"`
	Audio    string `json:"audio"`
	MimeType string `json:"mime_type"`
	Error    string `json:"error"`
}

// RemoteTTS implements TTSEngine against a remote TTS endpoint.
type RemoteTTS struct {
	endpoint string
	apiKey   string
}

// New creates a client for the endpoint. apiKey may be empty.
func New(endpoint, apiKey string) *RemoteTTS {
	return &RemoteTTS{endpoint: endpoint, apiKey: apiKey}
}

func (r *RemoteTTS) Synthesize(ctx context.Context, req engine.Request) (*engine.Audio, error) {
	body, err := restutil.MarshalJSON(synthesizeRequest{
		Text:           req.Text,
		Voice:          req.Voice,
		ResponseFormat: string(req.Format),
	})
	if err != nil {
		return nil, backendutil.TTSError(op, err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       req.Format.MimeType() + ", application/json",
	}
	if r.apiKey != "" {
		headers["Authorization"] = "Bearer " + r.apiKey
	}

	resp, err := restutil.DoRaw(ctx, http.MethodPost, r.endpoint, headers, body)
	if err != nil {
		return nil, backendutil.TTSError(op, err)
	}
	return decodeResponse(resp, req.Format)
}

// decodeResponse normalizes both response shapes into one binary payload.
func decodeResponse(resp *restutil.Response, format engine.Format) (*engine.Audio, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.ContentType)

	switch {
	case strings.HasPrefix(mediaType, "audio/"):
		if len(resp.Body) == 0 {
			return nil, backendutil.Malformed(op, "speech provider returned empty audio")
		}
		return &engine.Audio{Data: resp.Body, MimeType: mediaType}, nil

	case strings.HasSuffix(mediaType, "json"):
		var env envelope
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return nil, backendutil.Malformed(op, "speech provider returned invalid JSON")
		}
		if !env.Success {
			if env.Error != "" {
				return nil, backendutil.Malformed(op, env.Error)
			}
			return nil, backendutil.Malformed(op, "speech provider reported failure")
		}
		data, err := decodeAudio(env.Audio)
		if err != nil || len(data) == 0 {
			return nil, backendutil.Malformed(op, "speech provider returned undecodable audio")
		}
		mimeType := env.MimeType
		if mimeType == "" {
			mimeType = format.MimeType()
		}
		return &engine.Audio{Data: data, MimeType: mimeType}, nil

	default:
		return nil, backendutil.Malformed(op, fmt.Sprintf("unexpected response content type %q", resp.ContentType))
	}
}

// decodeAudio accepts standard, unpadded and URL-safe base64, optionally
// wrapped in a data URL.
func decodeAudio(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *RemoteTTS) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "alloy", Name: "Alloy", Language: "en"},
		{ID: "echo", Name: "Echo", Language: "en"},
		{ID: "fable", Name: "Fable", Language: "en"},
		{ID: "onyx", Name: "Onyx", Language: "en"},
		{ID: "nova", Name: "Nova", Language: "en"},
		{ID: "shimmer", Name: "Shimmer", Language: "en"},
	}
}

func (r *RemoteTTS) Models() []engine.ModelInfo {
	return []engine.ModelInfo{
		{ID: "default", DisplayName: "Provider default", IsDefault: true},
	}
}

func (r *RemoteTTS) Close() error {
	return nil
}
