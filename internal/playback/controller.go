// Package playback drives chunked read-aloud sessions: it prefetches audio
// ahead of the output device and keeps a single observable status.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"
	"github.com/rs/xid"

	"github.com/readaloud/readaloud/internal/speech/engine"
	"github.com/readaloud/readaloud/pkg/chunker"
	"github.com/readaloud/readaloud/pkg/events"
)

// Status lines shown to the reader.
const (
	StatusReady          = "Ready"
	StatusStopped        = "Stopped"
	StatusFinished       = "Finished"
	StatusPaused         = "Paused"
	StatusNoText         = "No text to read"
	StatusAlreadyPlaying = "Already playing"
)

// Config controls chunking and prefetching.
type Config struct {
	ChunkSize       int
	PrefetchAhead   int
	PrefetchWait    time.Duration
	ResetDelay      time.Duration
	PauseWhenHidden bool
	Voice           string
	Format          engine.Format
}

// DefaultConfig returns the stock playback settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       chunker.DefaultChunkSize,
		PrefetchAhead:   2,
		PrefetchWait:    5 * time.Second,
		ResetDelay:      2 * time.Second,
		PauseWhenHidden: true,
		Voice:           "alloy",
		Format:          engine.FormatMP3,
	}
}

// Synthesizer produces audio for one chunk.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, format engine.Format) (*engine.Audio, error)
}

// Emitter publishes playback events.
type Emitter interface {
	Emit(ctx context.Context, eventType events.EventType, sessionID string, data any) error
}

// Snapshot is the observable controller status.
type Snapshot struct {
	SessionID    string  `json:"session_id,omitempty"`
	State        State   `json:"state"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	CurrentChunk int     `json:"current_chunk"`
	TotalChunks  int     `json:"total_chunks"`
	Voice        string  `json:"voice"`
	Visible      bool    `json:"visible"`
	IsPlaying    bool    `json:"is_playing"`
	IsPaused     bool    `json:"is_paused"`
	IsLoading    bool    `json:"is_loading"`
	CanPlay      bool    `json:"can_play"`
	CanPause     bool    `json:"can_pause"`
	CanResume    bool    `json:"can_resume"`
	CanStop      bool    `json:"can_stop"`
	Error        string  `json:"error,omitempty"`
}

type session struct {
	id       string
	chunks   []chunker.Chunk
	voice    string
	index    int
	fraction float64
	queue    *Queue
	current  *Handle
	// ended is set when the current chunk ran out while paused.
	ended  bool
	ctx    context.Context
	cancel context.CancelFunc
}

type emission struct {
	eventType events.EventType
	sessionID string
	data      any
}

// Controller owns at most one playback session at a time.
type Controller struct {
	cfg    Config
	tts    Synthesizer
	device Device
	pool   workerpool.WorkerPool
	events Emitter
	ctx    context.Context

	mu         sync.Mutex
	text       string
	voice      string
	session    *session
	state      State
	status     string
	progress   float64
	lastErr    error
	visible    bool
	generation uint64
	closed     bool
	pending    []emission

	watchers    map[int]chan Snapshot
	nextWatcher int
}

// NewController wires a controller to its synthesizer and output device.
// pool and emitter may be nil.
func NewController(ctx context.Context, cfg Config, tts Synthesizer, device Device, pool workerpool.WorkerPool, emitter Emitter) *Controller {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.PrefetchAhead < 0 {
		cfg.PrefetchAhead = 0
	}
	if cfg.PrefetchWait <= 0 {
		cfg.PrefetchWait = 5 * time.Second
	}
	if cfg.Format == "" {
		cfg.Format = engine.FormatMP3
	}

	c := &Controller{
		cfg:      cfg,
		tts:      tts,
		device:   device,
		pool:     pool,
		events:   emitter,
		ctx:      ctx,
		voice:    cfg.Voice,
		state:    StateIdle,
		status:   StatusReady,
		visible:  true,
		watchers: make(map[int]chan Snapshot),
	}
	device.SetListener(c)
	return c
}

// SetText replaces the document text. Any active session is stopped.
func (c *Controller) SetText(text, source string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.session != nil {
		c.stopSessionLocked()
	}
	c.transitionLocked(StateIdle)
	c.generation++
	c.text = text
	c.progress = 0
	c.lastErr = nil
	c.status = StatusReady
	c.emitLocked(events.DocumentChanged, "", events.DocumentChangedData{
		Characters: len([]rune(text)),
		Source:     source,
	})
	c.unlock()
	return nil
}

// Text returns the current document text.
func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// SetVoice selects the voice for the next session.
func (c *Controller) SetVoice(voice string) {
	c.mu.Lock()
	c.voice = voice
	c.unlock()
}

// Speak starts reading the document from the first chunk and returns once
// chunk 0 is playing or has failed. It does nothing while a session is
// loading or playing; a paused session is replaced.
func (c *Controller) Speak(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateLoading, StatePlaying:
		c.status = StatusAlreadyPlaying
		c.unlock()
		return nil
	case StatePaused:
		c.stopSessionLocked()
		c.transitionLocked(StateIdle)
	}
	return c.startAndPlay(ctx)
}

// Restart stops whatever is playing and reads from the first chunk again.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.session != nil {
		c.stopSessionLocked()
	}
	c.transitionLocked(StateIdle)
	return c.startAndPlay(ctx)
}

// startAndPlay is entered with c.mu held and releases it.
func (c *Controller) startAndPlay(ctx context.Context) error {
	if strings.TrimSpace(c.text) == "" {
		c.transitionLocked(StateIdle)
		c.status = StatusNoText
		c.unlock()
		return nil
	}

	chunks := chunker.Split(c.text, c.cfg.ChunkSize)
	if len(chunks) == 0 {
		err := &ChunkingError{Err: errors.New("text produced no chunks")}
		c.lastErr = err
		c.status = "Could not split the text into chunks"
		c.unlock()
		return err
	}

	sctx, cancel := context.WithCancel(c.ctx)
	s := &session{
		id:     xid.New().String(),
		chunks: chunks,
		voice:  c.voice,
		ctx:    sctx,
		cancel: cancel,
	}
	s.queue = NewQueue(sctx, chunks, c.fetcher(s), c.pool)

	c.session = s
	c.generation++
	c.lastErr = nil
	c.progress = 0
	c.transitionLocked(StateLoading)
	c.status = loadingStatus(0, len(chunks))
	c.emitLocked(events.PlaybackStarted, s.id, events.PlaybackStartedData{
		TotalChunks: len(chunks),
		Voice:       s.voice,
	})
	c.unlock()

	slog.InfoContext(ctx, "playback session started",
		slog.String("session_id", s.id), slog.Int("chunks", len(chunks)))

	h, err := c.fetch(s, 0)
	return c.bindAndPlay(s, 0, h, err)
}

// Pause suspends output. Only valid while playing.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StatePlaying {
		err := &TransitionError{From: c.state, Op: "pause"}
		c.mu.Unlock()
		return err
	}
	err := c.pauseLocked()
	c.unlock()
	return err
}

func (c *Controller) pauseLocked() error {
	s := c.session
	if err := c.device.Pause(); err != nil {
		derr := &PlaybackDeviceError{ChunkIndex: s.index, Err: err}
		c.failLocked(derr)
		return derr
	}
	c.transitionLocked(StatePaused)
	c.status = StatusPaused
	c.emitLocked(events.PlaybackPaused, s.id, events.PlaybackPositionData{
		ChunkIndex: s.index,
		Progress:   c.progress,
	})
	return nil
}

// Resume continues a paused session.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StatePaused {
		err := &TransitionError{From: c.state, Op: "resume"}
		c.mu.Unlock()
		return err
	}

	s := c.session
	if !s.ended {
		if err := c.device.Resume(); err != nil {
			derr := &PlaybackDeviceError{ChunkIndex: s.index, Err: err}
			c.failLocked(derr)
			c.unlock()
			return derr
		}
	}
	c.transitionLocked(StatePlaying)
	c.status = playingStatus(s.index, len(s.chunks))
	c.emitLocked(events.PlaybackResumed, s.id, events.PlaybackPositionData{
		ChunkIndex: s.index,
		Progress:   c.progress,
	})
	if !s.ended {
		c.unlock()
		return nil
	}

	next, ok := c.endChunkLocked(s)
	c.unlock()
	if ok {
		c.submit(s.ctx, func() { c.advance(s, next) })
	}
	return nil
}

// Stop ends the session. The status shows "Stopped" until ResetDelay passes.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if s := c.session; s != nil {
		c.emitLocked(events.PlaybackStopped, s.id, events.PlaybackPositionData{
			ChunkIndex: s.index,
			Progress:   c.progress,
		})
		c.stopSessionLocked()
	}
	c.transitionLocked(StateIdle)
	c.generation++
	c.progress = 0
	c.status = StatusStopped
	c.scheduleResetLocked()
	c.unlock()
	return nil
}

// SetVisible records whether the document view is on screen. Hiding it
// pauses playback when PauseWhenHidden is set.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.visible = visible
	if !visible && c.cfg.PauseWhenHidden && c.state == StatePlaying {
		if err := c.pauseLocked(); err != nil {
			slog.WarnContext(c.ctx, "pause on hide failed", slog.String("error", err.Error()))
		}
	}
	c.unlock()
}

// Close stops playback and ends every status subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.session != nil {
		c.stopSessionLocked()
	}
	c.closed = true
	c.state = StateIdle
	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Chunks returns the chunks of the active session, or of the current text
// when nothing is playing.
func (c *Controller) Chunks() []chunker.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session.chunks
	}
	if strings.TrimSpace(c.text) == "" {
		return nil
	}
	return chunker.Split(c.text, c.cfg.ChunkSize)
}

// Subscribe returns a channel carrying the latest snapshot after every
// change. Slow readers only see the newest value. The returned func
// unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ch
	ch <- c.snapshotLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w, ok := c.watchers[id]; ok {
			close(w)
			delete(c.watchers, id)
		}
	}
}

// HandleEnded advances to the next chunk or finishes the session.
func (c *Controller) HandleEnded(h *Handle) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.current != h {
		c.mu.Unlock()
		return
	}
	if c.state == StatePaused {
		s.ended = true
		c.mu.Unlock()
		return
	}
	if c.state != StatePlaying {
		c.mu.Unlock()
		return
	}
	next, ok := c.endChunkLocked(s)
	c.unlock()

	if ok {
		c.submit(s.ctx, func() { c.advance(s, next) })
	}
}

// endChunkLocked moves past the chunk that just ended. It reports the next
// chunk to load, or false when the session finished.
func (c *Controller) endChunkLocked(s *session) (int, bool) {
	if s.index >= len(s.chunks)-1 {
		c.finishLocked()
		return 0, false
	}

	s.current.Release()
	s.current = nil
	s.ended = false
	s.index++
	s.fraction = 0
	c.transitionLocked(StateLoading)
	c.progress = c.progressLocked()
	c.status = loadingStatus(s.index, len(s.chunks))
	return s.index, true
}

// HandleTimeUpdate refreshes progress within the current chunk.
func (c *Controller) HandleTimeUpdate(h *Handle, position, duration time.Duration) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.current != h || c.state != StatePlaying || duration <= 0 {
		c.mu.Unlock()
		return
	}
	s.fraction = min(max(float64(position)/float64(duration), 0), 1)
	c.progress = c.progressLocked()
	c.unlock()
}

// HandleDeviceError aborts the session. Errors for a handle that is no
// longer current, such as those raised by tearing down output, are ignored.
func (c *Controller) HandleDeviceError(h *Handle, err error) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.current != h {
		c.mu.Unlock()
		return
	}
	c.failLocked(&PlaybackDeviceError{ChunkIndex: s.index, Err: err})
	c.unlock()
}

// advance waits for the prefetched unit of chunk i and plays it, fetching
// it directly when the prefetch is too slow.
func (c *Controller) advance(s *session, i int) {
	u, resolved := s.queue.Await(s.ctx, i, c.cfg.PrefetchWait)
	if resolved {
		switch u.Status {
		case UnitReady:
			if h, ok := s.queue.Take(i); ok {
				c.bindAndPlay(s, i, h, nil)
				return
			}
		case UnitError:
			c.bindAndPlay(s, i, nil, u.Err)
			return
		}
	}
	if s.ctx.Err() != nil {
		return
	}

	slog.DebugContext(s.ctx, "prefetch not ready, fetching directly",
		slog.String("session_id", s.id), slog.Int("chunk", i))
	s.queue.Discard(i)
	h, err := c.fetch(s, i)
	c.bindAndPlay(s, i, h, err)
}

// bindAndPlay hands a fetched chunk to the device if the session is still
// waiting for exactly that chunk; otherwise the result is released.
func (c *Controller) bindAndPlay(s *session, i int, h *Handle, fetchErr error) error {
	c.mu.Lock()
	if c.closed || c.session != s || c.state != StateLoading || s.index != i {
		c.mu.Unlock()
		if h != nil {
			h.Release()
		}
		return nil
	}
	if fetchErr != nil {
		c.failLocked(fetchErr)
		c.unlock()
		return fetchErr
	}

	s.queue.EnsureFetching(i+1, c.cfg.PrefetchAhead)
	s.current = h
	s.fraction = 0

	if err := c.device.Load(h); err != nil {
		derr := &PlaybackDeviceError{ChunkIndex: i, Err: err}
		c.failLocked(derr)
		c.unlock()
		return derr
	}
	if err := c.device.Play(); err != nil {
		derr := &PlaybackDeviceError{ChunkIndex: i, Err: err}
		c.failLocked(derr)
		c.unlock()
		return derr
	}

	c.transitionLocked(StatePlaying)
	c.progress = c.progressLocked()
	c.status = playingStatus(i, len(s.chunks))
	c.emitLocked(events.ChunkStarted, s.id, events.ChunkStartedData{
		ChunkIndex:  i,
		TotalChunks: len(s.chunks),
		MimeType:    h.MimeType(),
	})
	c.unlock()
	return nil
}

func (c *Controller) fetcher(s *session) FetchFunc {
	return func(ctx context.Context, chunk chunker.Chunk) (*Handle, error) {
		audio, err := c.tts.Synthesize(ctx, chunk.Text, s.voice, c.cfg.Format)
		if err != nil {
			return nil, err
		}
		return NewHandle(chunk.Index, audio), nil
	}
}

func (c *Controller) fetch(s *session, i int) (*Handle, error) {
	return c.fetcher(s)(s.ctx, s.chunks[i])
}

func (c *Controller) submit(ctx context.Context, fn func()) {
	if c.pool != nil {
		if err := c.pool.Submit(ctx, fn); err == nil {
			return
		}
		slog.WarnContext(ctx, "playback pool rejected job, running inline goroutine")
	}
	go fn()
}

// stopSessionLocked tears down the active session. Completions still in
// flight for it are ignored afterwards.
func (c *Controller) stopSessionLocked() {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil
	c.device.Clear()
	if s.current != nil {
		s.current.Release()
		s.current = nil
	}
	s.queue.Close()
	s.cancel()
	c.generation++
}

func (c *Controller) finishLocked() {
	s := c.session
	c.emitLocked(events.PlaybackFinished, s.id, events.PlaybackFinishedData{TotalChunks: len(s.chunks)})
	c.stopSessionLocked()
	c.transitionLocked(StateFinished)
	c.progress = 100
	c.status = StatusFinished
	c.scheduleResetLocked()

	slog.InfoContext(c.ctx, "playback session finished", slog.String("session_id", s.id))
}

func (c *Controller) failLocked(err error) {
	s := c.session
	if s != nil {
		c.emitLocked(events.PlaybackError, s.id, events.PlaybackErrorData{
			ChunkIndex: s.index,
			Kind:       errorKind(err),
			Error:      err.Error(),
		})
		slog.WarnContext(c.ctx, "playback session failed",
			slog.String("session_id", s.id),
			slog.Int("chunk", s.index),
			slog.String("error", err.Error()))
	}
	c.stopSessionLocked()
	c.transitionLocked(StateIdle)
	c.lastErr = err
	c.status = errorStatus(err)
}

// scheduleResetLocked returns the status to Ready after ResetDelay unless
// something else happened in the meantime.
func (c *Controller) scheduleResetLocked() {
	gen := c.generation
	time.AfterFunc(c.cfg.ResetDelay, func() {
		c.mu.Lock()
		if c.closed || c.generation != gen {
			c.mu.Unlock()
			return
		}
		c.transitionLocked(StateIdle)
		c.progress = 0
		c.status = StatusReady
		c.unlock()
	})
}

func (c *Controller) transitionLocked(to State) {
	if !CanTransition(c.state, to) {
		slog.ErrorContext(c.ctx, "illegal playback transition",
			slog.String("from", c.state.String()), slog.String("to", to.String()))
		return
	}
	c.state = to
}

func (c *Controller) progressLocked() float64 {
	s := c.session
	if s == nil || len(s.chunks) == 0 {
		return 0
	}
	return (float64(s.index) + s.fraction) / float64(len(s.chunks)) * 100
}

func (c *Controller) emitLocked(t events.EventType, sessionID string, data any) {
	if c.events == nil {
		return
	}
	c.pending = append(c.pending, emission{t, sessionID, data})
}

// unlock publishes the new status to watchers, releases c.mu and then
// emits the events queued while it was held.
func (c *Controller) unlock() {
	snap := c.snapshotLocked()
	for _, ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, e := range pending {
		if err := c.events.Emit(c.ctx, e.eventType, e.sessionID, e.data); err != nil {
			slog.WarnContext(c.ctx, "playback event not published",
				slog.String("event_type", string(e.eventType)),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        c.state,
		Status:       c.status,
		Progress:     c.progress,
		CurrentChunk: -1,
		Voice:        c.voice,
		Visible:      c.visible,
		IsPlaying:    c.state == StatePlaying,
		IsPaused:     c.state == StatePaused,
		IsLoading:    c.state == StateLoading,
		CanPause:     c.state == StatePlaying,
		CanResume:    c.state == StatePaused,
		CanStop:      c.state == StateLoading || c.state == StatePlaying || c.state == StatePaused,
	}
	snap.CanPlay = (c.state == StateIdle || c.state == StateFinished) && strings.TrimSpace(c.text) != ""
	if s := c.session; s != nil {
		snap.SessionID = s.id
		snap.CurrentChunk = s.index
		snap.TotalChunks = len(s.chunks)
		snap.Voice = s.voice
	}
	if c.lastErr != nil {
		snap.Error = c.lastErr.Error()
	}
	return snap
}

func loadingStatus(i, n int) string {
	return fmt.Sprintf("Loading chunk %d of %d", i+1, n)
}

func playingStatus(i, n int) string {
	return fmt.Sprintf("Playing chunk %d of %d", i+1, n)
}

func errorStatus(err error) string {
	var te *engine.TTSError
	if errors.As(err, &te) {
		return engine.UserMessage(err)
	}
	var de *PlaybackDeviceError
	if errors.As(err, &de) {
		return "Playback failed: " + de.Err.Error()
	}
	return "Error: " + err.Error()
}

func errorKind(err error) string {
	var (
		te *engine.TTSError
		de *PlaybackDeviceError
		ce *ChunkingError
	)
	switch {
	case errors.As(err, &te):
		return "tts"
	case errors.As(err, &de):
		return "device"
	case errors.As(err, &ce):
		return "chunking"
	default:
		return "unknown"
	}
}
