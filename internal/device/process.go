// Package device plays chunk audio through an external player process.
package device

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/readaloud/readaloud/internal/audio"
	"github.com/readaloud/readaloud/internal/playback"
)

var (
	errNoHandle = errors.New("no audio loaded")
	errReleased = errors.New("audio handle already released")
	errIdle     = errors.New("nothing is playing")
)

// Config selects the player command. The payload is written to its stdin.
type Config struct {
	Command      string
	Args         []string
	TickInterval time.Duration
}

// DefaultConfig plays through ffplay without a window.
func DefaultConfig() Config {
	return Config{
		Command:      "ffplay",
		Args:         []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "-"},
		TickInterval: 250 * time.Millisecond,
	}
}

type run struct {
	handle   *playback.Handle
	cmd      *exec.Cmd
	done     chan struct{}
	duration time.Duration

	started time.Time
	elapsed time.Duration
	paused  bool
}

func (r *run) position(now time.Time) time.Duration {
	if r.paused {
		return r.elapsed
	}
	return r.elapsed + now.Sub(r.started)
}

// ProcessDevice implements playback.Device with one player process per chunk.
type ProcessDevice struct {
	cfg Config

	mu       sync.Mutex
	listener playback.Listener
	loaded   *playback.Handle
	current  *run
	// exited is the handle whose run finished but may not be reported yet.
	exited *playback.Handle
}

// NewProcessDevice creates a device for cfg. Empty fields take defaults.
func NewProcessDevice(cfg Config) *ProcessDevice {
	def := DefaultConfig()
	if cfg.Command == "" {
		cfg.Command = def.Command
		if cfg.Args == nil {
			cfg.Args = def.Args
		}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	return &ProcessDevice{cfg: cfg}
}

func (d *ProcessDevice) SetListener(l playback.Listener) {
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()
}

// Load stops whatever is playing and makes h the next thing to play.
func (d *ProcessDevice) Load(h *playback.Handle) error {
	if h == nil {
		return errNoHandle
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.loaded = h
	d.exited = nil
	return nil
}

// Play starts the player for the loaded handle.
func (d *ProcessDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.loaded
	if h == nil {
		return errNoHandle
	}
	data := h.Data()
	if data == nil {
		return errReleased
	}
	d.stopLocked()

	cmd := exec.Command(d.cfg.Command, d.cfg.Args...)
	cmd.Stdin = bytes.NewReader(data)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", d.cfg.Command, err)
	}

	r := &run{
		handle:   h,
		cmd:      cmd,
		done:     make(chan struct{}),
		duration: audio.EstimateDuration(data, h.MimeType()),
		started:  time.Now(),
	}
	d.current = r
	go d.wait(r)
	go d.tick(r)
	return nil
}

// Pause suspends the player. Between a run exiting and its end being
// reported, Pause and Resume succeed without doing anything.
func (d *ProcessDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.current
	if r == nil {
		if d.exited != nil {
			return nil
		}
		return errIdle
	}
	if r.paused {
		return nil
	}
	if err := suspend(r.cmd.Process); err != nil {
		return fmt.Errorf("pause player: %w", err)
	}
	now := time.Now()
	r.elapsed += now.Sub(r.started)
	r.paused = true
	return nil
}

func (d *ProcessDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.current
	if r == nil {
		if d.exited != nil {
			return nil
		}
		return errIdle
	}
	if !r.paused {
		return nil
	}
	if err := resume(r.cmd.Process); err != nil {
		return fmt.Errorf("resume player: %w", err)
	}
	r.started, r.paused = time.Now(), false
	return nil
}

// Clear kills the player. The killed run reports nothing.
func (d *ProcessDevice) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.loaded = nil
	d.exited = nil
}

func (d *ProcessDevice) stopLocked() {
	r := d.current
	if r == nil {
		return
	}
	d.current = nil
	if r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
}

func (d *ProcessDevice) wait(r *run) {
	err := r.cmd.Wait()
	close(r.done)

	d.mu.Lock()
	live := d.current == r
	if live {
		d.current = nil
		d.exited = r.handle
	}
	l := d.listener
	d.mu.Unlock()

	if !live || l == nil {
		return
	}
	if err != nil {
		l.HandleDeviceError(r.handle, fmt.Errorf("%s: %w", d.cfg.Command, err))
		return
	}
	if r.duration > 0 {
		l.HandleTimeUpdate(r.handle, r.duration, r.duration)
	}
	l.HandleEnded(r.handle)
}

func (d *ProcessDevice) tick(r *run) {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			d.mu.Lock()
			if d.current != r {
				d.mu.Unlock()
				return
			}
			paused := r.paused
			pos := min(r.position(now), r.duration)
			l := d.listener
			d.mu.Unlock()

			if !paused && l != nil && r.duration > 0 {
				l.HandleTimeUpdate(r.handle, pos, r.duration)
			}
		}
	}
}
