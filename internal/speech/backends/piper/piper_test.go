//go:build unix

package piper

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/readaloud/readaloud/internal/audio"
	"github.com/readaloud/readaloud/internal/registry"
	"github.com/readaloud/readaloud/internal/speech/engine"
)

// fakeBinary writes a script that stands in for the piper executable.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("write fake piper: %v", err)
	}
	return path
}

func TestSynthesizeWrapsPCMInWAV(t *testing.T) {
	p := NewPiperTTS(fakeBinary(t, "cat"), t.TempDir(), "en_US-amy-medium", 16000)

	got, err := p.Synthesize(t.Context(), engine.Request{Text: "abcd", Format: engine.FormatMP3})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.MimeType != "audio/wav" {
		t.Errorf("mime = %q", got.MimeType)
	}
	w, err := audio.ParseWAV(got.Data)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if string(w.PCM) != "abcd" || w.Format.SampleRate != 16000 || w.Format.Channels != 1 {
		t.Errorf("wav = %+v pcm %q", w.Format, w.PCM)
	}
}

func TestSynthesizeFailures(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		voice string
		msg   string
	}{
		{"stderr", "echo 'model not found' >&2; exit 1", "", "model not found"},
		{"no output", "cat >/dev/null", "", "local speech engine produced no audio"},
		{"escaping voice", "cat", "../secret", "invalid piper voice name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPiperTTS(fakeBinary(t, tt.body), t.TempDir(), "en_US-amy-medium", 0)
			_, err := p.Synthesize(t.Context(), engine.Request{Text: "hello", Voice: tt.voice})
			var te *engine.TTSError
			if !errors.As(err, &te) {
				t.Fatalf("expected TTSError, got %v", err)
			}
			if te.Message != tt.msg {
				t.Errorf("message = %q, want %q", te.Message, tt.msg)
			}
		})
	}
}

func TestRegistered(t *testing.T) {
	if !registry.TTS.Has("piper") {
		t.Fatal("piper backend not registered")
	}
	if _, err := registry.TTS.Create("piper", map[string]string{"piper_sample_rate": "fast"}); err == nil {
		t.Error("expected an error for a bad sample rate")
	}
	e, err := registry.TTS.Create("piper", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if v := e.Voices(); len(v) != 1 || v[0].Language != "en-US" {
		t.Errorf("voices = %+v", v)
	}
}
