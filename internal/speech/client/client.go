// Package client turns one chunk of text into one audio payload through the
// configured TTS backend.
package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/readaloud/readaloud/internal/speech/engine"
	"github.com/readaloud/readaloud/pkg/chunker"
)

const op = "synthesize"

// ErrCircuitOpen is wrapped by the TTSError returned while the breaker is open.
var ErrCircuitOpen = errors.New("speech provider temporarily disabled after repeated failures")

// Cache stores synthesized audio by content key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*engine.Audio, bool, error)
	Put(ctx context.Context, key string, audio *engine.Audio) error
}

// Option configures a Client.
type Option func(*Client)

// WithBackendName sets the name mixed into cache keys.
func WithBackendName(name string) Option {
	return func(c *Client) { c.backend = name }
}

// WithBreaker enables fail-fast while the provider is down.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithCache enables read-through caching of synthesized audio.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// Client performs one synthesis per call and never retries.
type Client struct {
	tts     engine.TTSEngine
	backend string
	breaker *Breaker
	cache   Cache
}

// New wraps a TTS engine.
func New(tts engine.TTSEngine, opts ...Option) *Client {
	c := &Client{tts: tts, backend: "default"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize returns the audio for text. Every failure is an *engine.TTSError.
func (c *Client) Synthesize(ctx context.Context, text, voice string, format engine.Format) (*engine.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &engine.TTSError{Op: op, Message: "no text to synthesize"}
	}
	if n := utf8.RuneCountInString(text); n > chunker.MaxRequestChars {
		return nil, &engine.TTSError{
			Op:      op,
			Message: fmt.Sprintf("text is %d characters, the limit is %d", n, chunker.MaxRequestChars),
		}
	}
	if format == "" {
		format = engine.FormatMP3
	}
	if !format.Valid() {
		return nil, &engine.TTSError{Op: op, Message: fmt.Sprintf("unsupported audio format %q", format)}
	}

	key := CacheKey(c.backend, voice, format, text)
	if c.cache != nil {
		audio, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "audio cache read failed", slog.String("error", err.Error()))
		} else if ok {
			return audio, nil
		}
	}

	if c.breaker != nil && !c.breaker.Allow() {
		return nil, &engine.TTSError{Op: op, Message: ErrCircuitOpen.Error(), Err: ErrCircuitOpen}
	}

	audio, err := c.tts.Synthesize(ctx, engine.Request{Text: text, Voice: voice, Format: format})
	if err == nil && (audio == nil || len(audio.Data) == 0) {
		err = &engine.TTSError{Op: op, Message: "speech provider returned empty audio"}
	}
	if err != nil {
		c.record(err)
		var te *engine.TTSError
		if !errors.As(err, &te) {
			err = &engine.TTSError{Op: op, Err: err}
		}
		return nil, err
	}
	c.record(nil)

	if audio.MimeType == "" {
		audio.MimeType = format.MimeType()
	}
	if c.cache != nil {
		if err := c.cache.Put(ctx, key, audio); err != nil {
			slog.WarnContext(ctx, "audio cache write failed", slog.String("error", err.Error()))
		}
	}
	return audio, nil
}

// record feeds the breaker. Cancellation and client-side (4xx) rejections
// say nothing about provider health.
func (c *Client) record(err error) {
	if c.breaker == nil {
		return
	}
	if err == nil {
		c.breaker.Success()
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	var te *engine.TTSError
	if errors.As(err, &te) && te.StatusCode >= 400 && te.StatusCode < 500 && te.StatusCode != http.StatusTooManyRequests {
		return
	}
	c.breaker.Failure()
}

// Voices lists the backend's voices.
func (c *Client) Voices() []engine.Voice {
	return c.tts.Voices()
}

// Close releases the backend.
func (c *Client) Close() error {
	return c.tts.Close()
}

// CacheKey identifies one synthesis result.
func CacheKey(backend, voice string, format engine.Format, text string) string {
	h := sha256.New()
	for _, part := range []string{backend, voice, string(format), text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
