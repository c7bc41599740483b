package audio

import (
	"encoding/base64"
	"math"
)

// EncodeFrame converts a frame of float32 samples to 16-bit signed PCM and
// returns it base64-encoded for transport over a text-framed channel. Pure
// and allocation-cheap; it runs once per frame on the capture cadence.
func EncodeFrame(f Frame) string {
	pcm := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(math.Round(float64(s) * 32768))
		} else {
			v = int16(math.Round(float64(s) * 32767))
		}
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(pcm)
}
