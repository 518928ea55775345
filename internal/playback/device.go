package playback

import "time"

// Device plays one chunk at a time. Implementations must deliver Listener
// callbacks from their own goroutines, never from inside a Device method.
type Device interface {
	Load(h *Handle) error
	Play() error
	Pause() error
	Resume() error
	// Clear stops output and forgets the loaded handle. No callbacks for
	// that handle are delivered afterwards.
	Clear()
	SetListener(l Listener)
}

// Listener receives device events for the handle that produced them.
type Listener interface {
	HandleEnded(h *Handle)
	HandleTimeUpdate(h *Handle, position, duration time.Duration)
	HandleDeviceError(h *Handle, err error)
}
