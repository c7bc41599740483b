package audio

import "math"

// Smoothing defaults. Attack is deliberately larger than decay so the level
// rises quickly with speech onset and falls gently when it ends, which keeps
// a UI meter responsive without jitter.
const (
	DefaultLevelGain   = 35.0
	DefaultAttackCoeff = 0.5
	DefaultDecayCoeff  = 0.08
)

// LevelMeter derives a smoothed loudness estimate in [0, 1] from raw sample
// frames. Quiet microphones produce RMS values around 0.002-0.05, hence the
// empirical gain before clamping.
type LevelMeter struct {
	gain     float64
	attack   float64
	decay    float64
	smoothed float64
}

// NewLevelMeter creates a level meter with the given gain. A gain <= 0 uses
// the default.
func NewLevelMeter(gain float64) *LevelMeter {
	if gain <= 0 {
		gain = DefaultLevelGain
	}
	return &LevelMeter{
		gain:   gain,
		attack: DefaultAttackCoeff,
		decay:  DefaultDecayCoeff,
	}
}

// Process consumes one frame of samples and returns the updated smoothed level
func (m *LevelMeter) Process(samples []float32) float64 {
	if len(samples) == 0 {
		return m.smoothed
	}

	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))

	raw := rms * m.gain
	if raw > 1 {
		raw = 1
	}

	coeff := m.decay
	if raw > m.smoothed {
		coeff = m.attack
	}
	m.smoothed += (raw - m.smoothed) * coeff

	return m.smoothed
}

// Level returns the current smoothed level
func (m *LevelMeter) Level() float64 {
	return m.smoothed
}

// Reset zeroes the meter
func (m *LevelMeter) Reset() {
	m.smoothed = 0
}
