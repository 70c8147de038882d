// Package audio moves raw waveforms in and out of the synthesis model:
// multi-format decode and encode, channel and sample-rate normalization,
// loudness normalization and duration validation.
package audio

import "math"

// Buffer is an in-memory mono waveform. Samples are floating-point
// amplitudes in [-1, 1]; SampleRate is in Hz. Buffers produced by the
// codec's decode path are always single-channel.
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Info is a read-only projection of derived buffer metrics.
type Info struct {
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	SampleCount     int     `json:"num_samples"`
	RMS             float64 `json:"rms_level"`
	Peak            float64 `json:"peak_level"`
}

// Duration returns the buffer duration in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}

	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// RMS returns the root-mean-square amplitude.
func (b *Buffer) RMS() float64 {
	if len(b.Samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range b.Samples {
		sum += s * s
	}

	return math.Sqrt(sum / float64(len(b.Samples)))
}

// Peak returns the maximum absolute amplitude.
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		if abs := math.Abs(s); abs > peak {
			peak = abs
		}
	}

	return peak
}

// Info returns derived metrics for the buffer. No side effects.
func (b *Buffer) Info() Info {
	return Info{
		DurationSeconds: b.Duration(),
		SampleRate:      b.SampleRate,
		SampleCount:     len(b.Samples),
		RMS:             b.RMS(),
		Peak:            b.Peak(),
	}
}

// ValidateMinDuration reports whether the buffer is at least minSeconds
// long. Used to reject reference audio that is too short for voice
// cloning: 1 second is the hard floor, 3+ seconds recommended.
func ValidateMinDuration(b *Buffer, minSeconds float64) bool {
	return b.Duration() >= minSeconds
}
