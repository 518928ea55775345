//go:build unix

package device

import (
	"sync"
	"testing"
	"time"

	"github.com/readaloud/readaloud/internal/playback"
	"github.com/readaloud/readaloud/internal/speech/engine"
)

type recorder struct {
	mu      sync.Mutex
	ended   []*playback.Handle
	errs    []error
	updates int
}

func (r *recorder) HandleEnded(h *playback.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, h)
}

func (r *recorder) HandleTimeUpdate(*playback.Handle, time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
}

func (r *recorder) HandleDeviceError(_ *playback.Handle, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ended), len(r.errs)
}

func handle() *playback.Handle {
	return playback.NewHandle(0, &engine.Audio{Data: []byte("audio bytes"), MimeType: "audio/mpeg"})
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPlayReportsEnded(t *testing.T) {
	rec := &recorder{}
	d := NewProcessDevice(Config{Command: "cat", Args: []string{}})
	d.SetListener(rec)

	h := handle()
	if err := d.Load(h); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := d.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	eventually(t, func() bool { ended, _ := rec.counts(); return ended == 1 })
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.ended[0] != h {
		t.Error("ended reported for the wrong handle")
	}
}

func TestPlayerFailureReportsError(t *testing.T) {
	rec := &recorder{}
	d := NewProcessDevice(Config{Command: "false", Args: []string{}})
	d.SetListener(rec)

	d.Load(handle())
	if err := d.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	eventually(t, func() bool { _, errs := rec.counts(); return errs == 1 })
}

func TestClearSuppressesEvents(t *testing.T) {
	rec := &recorder{}
	d := NewProcessDevice(Config{Command: "sleep", Args: []string{"5"}})
	d.SetListener(rec)

	d.Load(handle())
	if err := d.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	d.Clear()
	time.Sleep(100 * time.Millisecond)

	if ended, errs := rec.counts(); ended != 0 || errs != 0 {
		t.Errorf("events after Clear: ended=%d errors=%d", ended, errs)
	}
}

func TestPauseResume(t *testing.T) {
	d := NewProcessDevice(Config{Command: "sleep", Args: []string{"5"}})
	d.SetListener(&recorder{})
	defer d.Clear()

	if err := d.Pause(); err == nil {
		t.Error("Pause with nothing playing should fail")
	}
	d.Load(handle())
	if err := d.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := d.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := d.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
}

func TestPlayReleasedHandle(t *testing.T) {
	d := NewProcessDevice(Config{Command: "cat", Args: []string{}})
	h := handle()
	d.Load(h)
	h.Release()
	if err := d.Play(); err == nil {
		t.Error("Play of a released handle should fail")
	}
}

func TestPauseAfterRunExited(t *testing.T) {
	rec := &recorder{}
	d := NewProcessDevice(Config{Command: "cat", Args: []string{}})
	d.SetListener(rec)

	d.Load(handle())
	if err := d.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	eventually(t, func() bool { ended, _ := rec.counts(); return ended == 1 })

	if err := d.Pause(); err != nil {
		t.Errorf("Pause after exit: %v", err)
	}
	if err := d.Resume(); err != nil {
		t.Errorf("Resume after exit: %v", err)
	}
	d.Clear()
	if err := d.Pause(); err == nil {
		t.Error("Pause after Clear should fail")
	}
}
