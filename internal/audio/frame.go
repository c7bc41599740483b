package audio

// Default capture parameters. The transcription service expects mono PCM at
// 24 kHz; the frame size bounds encode/send latency while keeping the
// per-callback overhead amortized.
const (
	DefaultSampleRate = 24000
	DefaultFrameSize  = 4096
	Channels          = 1
)

// Frame is a fixed-length block of mono float32 samples in [-1, 1], tagged
// with the rate it was captured at. Frames are consumed once by the encoder
// and not retained.
type Frame struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the frame length in seconds
func (f Frame) Duration() float64 {
	if f.SampleRate == 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(f.SampleRate)
}
