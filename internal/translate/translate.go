// Package translate calls the document translation endpoint.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/readaloud/readaloud/internal/restutil"
)

var (
	ErrNotConfigured = errors.New("translation endpoint not configured")
	ErrEmptyText     = errors.New("no text to translate")
	ErrNoLanguage    = errors.New("target language required")
)

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	Success        bool   `json:"success"`
	TranslatedText string `json:"translated_text"`
	LanguageName   string `json:"language_name"`
	Error          string `json:"error"`
}

// Result is a completed translation.
type Result struct {
	Text         string `json:"text"`
	LanguageName string `json:"language_name"`
}

// Client translates whole documents.
type Client struct {
	endpoint string
	apiKey   string
}

// New creates a client. An empty endpoint makes every call fail with
// ErrNotConfigured.
func New(endpoint, apiKey string) *Client {
	return &Client{endpoint: endpoint, apiKey: apiKey}
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool { return c.endpoint != "" }

// Translate returns text rendered in target, a language code such as "fr".
func (c *Client) Translate(ctx context.Context, text, target string) (*Result, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrNoLanguage
	}

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.apiKey}
	}

	var resp translateResponse
	err := restutil.DoJSON(ctx, http.MethodPost, c.endpoint, headers,
		translateRequest{Text: text, TargetLanguage: target}, &resp)
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "translation service reported failure"
		}
		return nil, fmt.Errorf("translate: %s", msg)
	}
	if strings.TrimSpace(resp.TranslatedText) == "" {
		return nil, errors.New("translate: empty translation")
	}

	name := resp.LanguageName
	if name == "" {
		name = target
	}
	return &Result{Text: resp.TranslatedText, LanguageName: name}, nil
}
