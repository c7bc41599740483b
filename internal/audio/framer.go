package audio

import (
	"encoding/binary"
	"math"
)

// Framer regroups capture callbacks of arbitrary length into fixed-size
// frames. Capture backends deliver whatever block size the platform hands
// them; downstream wants exactly frameSize samples at a time.
type Framer struct {
	frameSize  int
	sampleRate int
	buf        []float32
}

// NewFramer creates a new framer
func NewFramer(sampleRate, frameSize int) *Framer {
	return &Framer{
		frameSize:  frameSize,
		sampleRate: sampleRate,
		buf:        make([]float32, 0, frameSize*2),
	}
}

// Push adds samples to the framer and returns any complete frames
func (f *Framer) Push(samples []float32) []Frame {
	f.buf = append(f.buf, samples...)

	var frames []Frame
	for len(f.buf) >= f.frameSize {
		frame := Frame{
			Samples:    make([]float32, f.frameSize),
			SampleRate: f.sampleRate,
		}
		copy(frame.Samples, f.buf[:f.frameSize])
		f.buf = f.buf[f.frameSize:]
		frames = append(frames, frame)
	}

	// Reclaim capacity once the residue is small, otherwise the backing
	// array grows without bound as the slice head advances
	if len(f.buf) < f.frameSize && cap(f.buf) > f.frameSize*4 {
		residue := make([]float32, len(f.buf), f.frameSize*2)
		copy(residue, f.buf)
		f.buf = residue
	}

	return frames
}

// PushBytes decodes little-endian float32 sample data and pushes it. This is
// the shape malgo hands to the data callback when capturing in F32 format.
func (f *Framer) PushBytes(data []byte) []Frame {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return f.Push(samples)
}

// Reset discards any buffered samples
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
