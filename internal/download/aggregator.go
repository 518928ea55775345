// Package download synthesizes a whole document into one audio file.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/readaloud/readaloud/internal/audio"
	"github.com/readaloud/readaloud/internal/speech/engine"
	"github.com/readaloud/readaloud/pkg/chunker"
	"github.com/readaloud/readaloud/pkg/events"
)

var (
	// ErrBusy is returned when another download is still running.
	ErrBusy = errors.New("a download is already in progress")
	// ErrNoText is returned for empty documents.
	ErrNoText = errors.New("no text to download")
)

// AggregationError reports the chunk that made a download fail. ChunkIndex
// is -1 when the failure happened while combining.
type AggregationError struct {
	ChunkIndex int
	Total      int
	Err        error
}

func (e *AggregationError) Error() string {
	if e.ChunkIndex < 0 {
		return fmt.Sprintf("download: combining %d chunks: %v", e.Total, e.Err)
	}
	return fmt.Sprintf("download: chunk %d of %d: %v", e.ChunkIndex+1, e.Total, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// Synthesizer produces audio for one chunk.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, format engine.Format) (*engine.Audio, error)
}

// Emitter publishes download events.
type Emitter interface {
	Emit(ctx context.Context, eventType events.EventType, sessionID string, data any) error
}

// Config controls chunking and the requested format.
type Config struct {
	ChunkSize int
	Format    engine.Format
}

// Result is a finished download.
type Result struct {
	Data     []byte
	MimeType string
	Chunks   int
	FileName string
}

// Aggregator runs at most one download at a time.
type Aggregator struct {
	tts    Synthesizer
	cfg    Config
	events Emitter

	busy     atomic.Bool
	progress atomic.Uint64
}

// NewAggregator creates an aggregator. emitter may be nil.
func NewAggregator(tts Synthesizer, cfg Config, emitter Emitter) *Aggregator {
	if cfg.Format == "" {
		cfg.Format = engine.FormatMP3
	}
	return &Aggregator{tts: tts, cfg: cfg, events: emitter}
}

// Busy reports whether a download is running.
func (a *Aggregator) Busy() bool { return a.busy.Load() }

// Progress returns the running download's completion in percent.
func (a *Aggregator) Progress() float64 {
	return math.Float64frombits(a.progress.Load())
}

func (a *Aggregator) setProgress(p float64) {
	a.progress.Store(math.Float64bits(p))
}

// DownloadAll fetches every chunk of text in order and joins them. Any
// failed chunk fails the whole download and nothing is returned.
func (a *Aggregator) DownloadAll(ctx context.Context, text, voice string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}
	if !a.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer a.busy.Store(false)

	id := xid.New().String()
	a.setProgress(0)

	chunks := chunker.Split(text, a.cfg.ChunkSize)
	total := len(chunks)
	payloads := make([][]byte, 0, total)
	var mimeType string

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, a.fail(ctx, id, &AggregationError{ChunkIndex: i, Total: total, Err: err})
		}
		out, err := a.tts.Synthesize(ctx, c.Text, voice, a.cfg.Format)
		if err != nil {
			return nil, a.fail(ctx, id, &AggregationError{ChunkIndex: i, Total: total, Err: err})
		}
		if i == 0 {
			mimeType = out.MimeType
		} else if audio.Family(out.MimeType) != audio.Family(mimeType) {
			return nil, a.fail(ctx, id, &AggregationError{
				ChunkIndex: i,
				Total:      total,
				Err:        fmt.Errorf("audio type %s does not match %s", out.MimeType, mimeType),
			})
		}
		payloads = append(payloads, out.Data)
		a.setProgress(float64(i+1) / float64(total) * 90)
	}

	data, err := combine(payloads, mimeType)
	if err != nil {
		return nil, a.fail(ctx, id, &AggregationError{ChunkIndex: -1, Total: total, Err: err})
	}
	a.setProgress(100)

	res := &Result{
		Data:     data,
		MimeType: mimeType,
		Chunks:   total,
		FileName: fmt.Sprintf("readaloud-%s.%s", id, audio.Extension(mimeType)),
	}
	a.emit(ctx, events.DownloadCompleted, id, events.DownloadCompletedData{
		FileName:  res.FileName,
		MimeType:  res.MimeType,
		Chunks:    res.Chunks,
		SizeBytes: len(res.Data),
	})
	return res, nil
}

func (a *Aggregator) fail(ctx context.Context, id string, err *AggregationError) error {
	a.setProgress(0)
	slog.WarnContext(ctx, "download failed", slog.String("download_id", id), slog.String("error", err.Error()))
	a.emit(ctx, events.DownloadFailed, id, events.DownloadFailedData{
		ChunkIndex: err.ChunkIndex,
		Error:      err.Error(),
	})
	return err
}

func (a *Aggregator) emit(ctx context.Context, t events.EventType, id string, data any) {
	if a.events == nil {
		return
	}
	if err := a.events.Emit(ctx, t, id, data); err != nil {
		slog.WarnContext(ctx, "download event not published", slog.String("error", err.Error()))
	}
}

// combine joins payloads in order. WAV files are merged into one header;
// frame-based formats concatenate as is.
func combine(payloads [][]byte, mimeType string) ([]byte, error) {
	if audio.Family(mimeType) == "wav" {
		return audio.ConcatWAV(payloads)
	}
	return bytes.Join(payloads, nil), nil
}
