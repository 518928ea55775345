package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/readaloud/readaloud/internal/audio"
	"github.com/readaloud/readaloud/internal/registry"
	"github.com/readaloud/readaloud/internal/speech/engine"
)

const defaultSampleRate = 22050

func init() {
	registry.TTS.Register("piper", func(config map[string]string) (engine.TTSEngine, error) {
		binaryPath := config["piper_binary_path"]
		if binaryPath == "" {
			binaryPath = "piper"
		}
		modelDir := config["piper_model_dir"]
		if modelDir == "" {
			modelDir = "./models"
		}
		model := config["piper_model"]
		if model == "" {
			model = "en_US-amy-medium"
		}
		rate := defaultSampleRate
		if v := config["piper_sample_rate"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("piper sample rate %q is not a positive integer", v)
			}
			rate = n
		}
		return NewPiperTTS(binaryPath, modelDir, model, rate), nil
	})
}

// PiperTTS implements TTSEngine using a local Piper binary. Piper emits raw
// 16-bit mono PCM, so every result is WAV regardless of the requested format.
type PiperTTS struct {
	binaryPath   string
	modelDir     string
	defaultModel string
	sampleRate   int
}

// NewPiperTTS creates a new Piper TTS engine. Voices name model files in
// modelDir, without the .onnx extension.
func NewPiperTTS(binaryPath, modelDir, defaultModel string, sampleRate int) *PiperTTS {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &PiperTTS{
		binaryPath:   binaryPath,
		modelDir:     modelDir,
		defaultModel: defaultModel,
		sampleRate:   sampleRate,
	}
}

// Synthesize runs Piper once for req.Text.
func (p *PiperTTS) Synthesize(ctx context.Context, req engine.Request) (*engine.Audio, error) {
	model, err := p.modelPath(req.Voice)
	if err != nil {
		return nil, &engine.TTSError{Op: "piper", Message: err.Error(), Err: err}
	}

	cmd := exec.CommandContext(ctx, p.binaryPath, "--model", model, "--output-raw")
	cmd.Stdin = strings.NewReader(req.Text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "local speech engine failed"
		}
		if ctx.Err() != nil {
			msg = "speech request cancelled"
		}
		return nil, &engine.TTSError{Op: "piper", Message: msg, Err: err}
	}
	if stdout.Len() == 0 {
		return nil, &engine.TTSError{Op: "piper", Message: "local speech engine produced no audio"}
	}

	var out bytes.Buffer
	out.Grow(44 + stdout.Len())
	if err := audio.WriteWAVHeader(&out, pcmFormat(p.sampleRate), stdout.Len()); err != nil {
		return nil, &engine.TTSError{Op: "piper", Message: "could not encode audio", Err: err}
	}
	out.Write(stdout.Bytes())

	return &engine.Audio{Data: out.Bytes(), MimeType: engine.FormatWAV.MimeType()}, nil
}

// modelPath maps a voice to a model file. Voices may not leave modelDir.
func (p *PiperTTS) modelPath(voice string) (string, error) {
	if voice == "" || voice == "default" {
		voice = p.defaultModel
	}
	if voice != filepath.Base(voice) || strings.HasPrefix(voice, ".") {
		return "", errors.New("invalid piper voice name")
	}
	return filepath.Join(p.modelDir, strings.TrimSuffix(voice, ".onnx")+".onnx"), nil
}

func pcmFormat(rate int) audio.WAVFormat {
	return audio.WAVFormat{
		AudioFormat:   1,
		Channels:      1,
		SampleRate:    uint32(rate),
		ByteRate:      uint32(rate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
	}
}

// Voices returns the default model as the only built-in voice.
func (p *PiperTTS) Voices() []engine.Voice {
	return []engine.Voice{{ID: p.defaultModel, Name: p.defaultModel, Language: languageOf(p.defaultModel)}}
}

// Models returns the default Piper model.
func (p *PiperTTS) Models() []engine.ModelInfo {
	return []engine.ModelInfo{{ID: p.defaultModel, DisplayName: p.defaultModel, IsDefault: true}}
}

// Close releases TTS resources.
func (p *PiperTTS) Close() error {
	return nil
}

// languageOf reads the locale prefix of a Piper model name, e.g. "en_US".
func languageOf(model string) string {
	if i := strings.IndexByte(model, '-'); i > 0 {
		return strings.ReplaceAll(model[:i], "_", "-")
	}
	return ""
}
