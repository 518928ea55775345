package engine

import (
	"context"
	"fmt"
	"strings"
)

// Format is an audio container requested from a TTS provider.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatOpus Format = "opus"
	FormatFLAC Format = "flac"
)

// ParseFormat validates a response format name. Empty selects mp3.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatMP3, nil
	}
	if !f.Valid() {
		return "", fmt.Errorf("unsupported audio format %q", s)
	}
	return f, nil
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	switch f {
	case FormatMP3, FormatWAV, FormatOpus, FormatFLAC:
		return true
	}
	return false
}

// MimeType returns the content type providers use for f.
func (f Format) MimeType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatOpus:
		return "audio/ogg"
	case FormatFLAC:
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == FormatOpus {
		return "ogg"
	}
	if !f.Valid() {
		return string(FormatMP3)
	}
	return string(f)
}

// Request is one synthesis call.
type Request struct {
	Text   string
	Voice  string
	Format Format
}

// Audio is a decoded audio payload ready to be played or saved.
type Audio struct {
	Data     []byte
	MimeType string
}

// Voice describes an available TTS voice.
type Voice struct {
	ID       string `json:"id"       yaml:"id"`
	Name     string `json:"name"     yaml:"name"`
	Language string `json:"language" yaml:"language"`
}

// ModelInfo describes an available model for a backend.
type ModelInfo struct {
	ID          string
	DisplayName string
	IsDefault   bool
}

// TTSEngine synthesizes speech from text. Implementations issue exactly one
// provider call per Synthesize and never retry.
type TTSEngine interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
	Voices() []Voice
	Models() []ModelInfo
	Close() error
}
