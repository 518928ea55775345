// Package backendutil holds helpers shared by the TTS backends.
package backendutil

import (
	"context"
	"errors"

	"github.com/readaloud/readaloud/internal/restutil"
	"github.com/readaloud/readaloud/internal/speech/engine"
)

// Backend config keys shared by several providers.
const (
	KeyAPIKey   = "api_key"
	KeyBaseURL  = "base_url"
	KeyModel    = "model"
	KeyEndpoint = "endpoint_url"
)

// First returns the first non-empty config value among keys.
func First(config map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := config[k]; v != "" {
			return v
		}
	}
	return ""
}

// TTSError converts a transport or status failure into an *engine.TTSError.
func TTSError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *engine.TTSError
	if errors.As(err, &te) {
		return te
	}
	var se *restutil.StatusError
	if errors.As(err, &se) {
		return &engine.TTSError{Op: op, StatusCode: se.StatusCode, Message: se.Message, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &engine.TTSError{Op: op, Message: "speech request cancelled", Err: err}
	}
	return &engine.TTSError{Op: op, Message: "speech provider unreachable", Err: err}
}

// Malformed reports a response body that could not be turned into audio.
func Malformed(op, msg string) error {
	return &engine.TTSError{Op: op, Message: msg}
}
