package audio

import (
	"encoding/base64"
	"testing"
)

func decodePCM16(t *testing.T, encoded string) []int16 {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	if len(raw)%2 != 0 {
		t.Fatalf("odd PCM byte count: %d", len(raw))
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	}
	return out
}

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    []int16
	}{
		{
			name:    "silence",
			samples: []float32{0, 0},
			want:    []int16{0, 0},
		},
		{
			name:    "full scale",
			samples: []float32{1, -1},
			want:    []int16{32767, -32768},
		},
		{
			name:    "half scale",
			samples: []float32{0.5, -0.5},
			want:    []int16{16384, -16384},
		},
		{
			name:    "out of range clamps",
			samples: []float32{1.5, -2},
			want:    []int16{32767, -32768},
		},
		{
			name:    "empty frame",
			samples: nil,
			want:    []int16{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodePCM16(t, EncodeFrame(Frame{Samples: tt.samples, SampleRate: 24000}))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}
