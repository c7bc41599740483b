package audio

// FrameCallback receives complete capture frames in order
type FrameCallback func(Frame)

// CaptureConfig contains capture device configuration
type CaptureConfig struct {
	SampleRate int
	FrameSize  int
}

// Device is an open capture handle. Close must be idempotent and safe to call
// from any state; it releases the hardware device. A device that is not
// closed leaks the microphone handle (and the OS recording indicator).
type Device interface {
	Start() error
	Close() error
}

// Opener acquires capture devices. There is one real implementation (malgo)
// and a scripted fake for tests.
type Opener interface {
	Open(cfg CaptureConfig, cb FrameCallback) (Device, error)
}
