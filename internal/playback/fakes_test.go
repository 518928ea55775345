package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/readaloud/readaloud/internal/speech/engine"
	"github.com/readaloud/readaloud/pkg/events"
)

const fourSentences = "Alpha is first. Bravo is second. Charlie is third. Delta is fourth."

type fakeSynth struct {
	mu    sync.Mutex
	calls map[string]int
	gates map[string]chan struct{}
	first map[string]chan struct{}
	errs  map[string]error
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{
		calls: map[string]int{},
		gates: map[string]chan struct{}{},
		first: map[string]chan struct{}{},
		errs:  map[string]error{},
	}
}

// gate blocks synthesis of text until the returned func is called.
func (f *fakeSynth) gate(text string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[text] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// gateFirst blocks only the first synthesis of text.
func (f *fakeSynth) gateFirst(text string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.first[text] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeSynth) fail(text string, err error) {
	f.mu.Lock()
	f.errs[text] = err
	f.mu.Unlock()
}

func (f *fakeSynth) count(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func (f *fakeSynth) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeSynth) Synthesize(_ context.Context, text, _ string, format engine.Format) (*engine.Audio, error) {
	f.mu.Lock()
	f.calls[text]++
	gate := f.gates[text]
	if f.calls[text] == 1 && f.first[text] != nil {
		gate = f.first[text]
	}
	err := f.errs[text]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &engine.Audio{Data: []byte("audio:" + text), MimeType: format.MimeType()}, nil
}

type fakeDevice struct {
	mu       sync.Mutex
	listener Listener
	loaded   []*Handle
	current  *Handle
	playing  bool
	paused   bool
	clears   int
	loadErr  error
}

func (d *fakeDevice) SetListener(l Listener) { d.listener = l }

func (d *fakeDevice) Load(h *Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return d.loadErr
	}
	d.loaded = append(d.loaded, h)
	d.current = h
	return nil
}

func (d *fakeDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing, d.paused = true, false
	return nil
}

func (d *fakeDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	return nil
}

func (d *fakeDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	return nil
}

func (d *fakeDevice) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = nil
	d.playing, d.paused = false, false
	d.clears++
}

func (d *fakeDevice) Current() *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *fakeDevice) Loaded() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Handle(nil), d.loaded...)
}

func (d *fakeDevice) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// end simulates the device finishing the current chunk.
func (d *fakeDevice) end() {
	if h := d.Current(); h != nil {
		d.listener.HandleEnded(h)
	}
}

type recordingEmitter struct {
	mu    sync.Mutex
	types []events.EventType
}

func (r *recordingEmitter) Emit(_ context.Context, t events.EventType, _ string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, t)
	return nil
}

func (r *recordingEmitter) has(t events.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.types {
		if got == t {
			return true
		}
	}
	return false
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = 20
	cfg.PrefetchWait = time.Second
	cfg.ResetDelay = 100 * time.Millisecond
	return cfg
}

func newTestController(t *testing.T, cfg Config) (*Controller, *fakeSynth, *fakeDevice) {
	t.Helper()
	synth := newFakeSynth()
	dev := &fakeDevice{}
	c := NewController(t.Context(), cfg, synth, dev, nil, nil)
	t.Cleanup(c.Close)
	return c, synth, dev
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func playingChunk(c *Controller, i int) func() bool {
	return func() bool {
		s := c.Snapshot()
		return s.State == StatePlaying && s.CurrentChunk == i
	}
}
