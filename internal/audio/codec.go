package audio

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Capabilities records which optional codec features are available. The
// check runs once at construction; call sites consult the flags instead of
// probing per call.
type Capabilities struct {
	// Resample enables sample-rate conversion during decode.
	Resample bool

	// Loudness enables RMS loudness normalization.
	Loudness bool

	// LossyEncode enables mp3/ogg output via the external transcoder.
	LossyEncode bool
}

// DetectCapabilities probes the optional codec features. Resampling and
// loudness normalization are built in; lossy encoding requires ffmpeg on
// PATH.
func DetectCapabilities() Capabilities {
	caps := Capabilities{
		Resample: true,
		Loudness: true,
	}

	if _, err := exec.LookPath(ffmpegBinary); err == nil {
		caps.LossyEncode = true
	} else {
		slog.Warn("ffmpeg not found, lossy encoding will fall back to wav")
	}

	return caps
}

// Codec converts between in-memory waveforms and encoded byte streams.
// A zero-value Codec is not usable; construct with NewCodec.
type Codec struct {
	caps    Capabilities
	tempDir string
}

// NewCodec creates a Codec with detected capabilities.
func NewCodec() *Codec {
	return NewCodecWithCapabilities(DetectCapabilities())
}

// NewCodecWithCapabilities creates a Codec with explicit capability flags.
// Used by tests and degraded deployments.
func NewCodecWithCapabilities(caps Capabilities) *Codec {
	return &Codec{
		caps:    caps,
		tempDir: os.TempDir(),
	}
}

// Capabilities returns the detected capability flags.
func (c *Codec) Capabilities() Capabilities {
	return c.caps
}

// Decode loads audio from a file path (string), encoded bytes ([]byte) or
// an already-decoded *Buffer. The result is always mono: multi-channel
// input is averaged across channels.
//
// When source is a *Buffer, targetRate is mandatory and taken as the
// buffer's declared rate. Otherwise, a non-zero targetRate that differs
// from the decoded rate triggers resampling; if the resample capability is
// off, the audio is returned at its original rate with a warning rather
// than failing the decode.
func (c *Codec) Decode(source any, targetRate int) (*Buffer, error) {
	switch src := source.(type) {
	case *Buffer:
		if targetRate <= 0 {
			return nil, fmt.Errorf("%w: target rate required when source is a decoded buffer", ErrInvalidInput)
		}
		return &Buffer{Samples: src.Samples, SampleRate: targetRate}, nil

	case []byte:
		return c.decodeBytes(src, targetRate)

	case string:
		data, err := os.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
			}
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidInput, src, err)
		}
		return c.decodeBytes(data, targetRate)

	default:
		return nil, fmt.Errorf("%w: unsupported source type %T", ErrInvalidInput, source)
	}
}

func (c *Codec) decodeBytes(data []byte, targetRate int) (*Buffer, error) {
	buf, err := decodeContainer(data)
	if err != nil {
		return nil, err
	}

	if targetRate > 0 && targetRate != buf.SampleRate {
		if !c.caps.Resample {
			slog.Warn("Resampling unavailable, keeping original rate",
				"original_rate", buf.SampleRate, "requested_rate", targetRate)
			return buf, nil
		}

		buf.Samples = resample(buf.Samples, buf.SampleRate, targetRate)
		buf.SampleRate = targetRate
	}

	return buf, nil
}

// decodeContainer sniffs the container format and decodes to mono.
func decodeContainer(data []byte) (*Buffer, error) {
	if len(data) >= 4 && bytes.Equal(data[:4], []byte("RIFF")) {
		return decodeWAV(data)
	}

	return decodeMP3(data)
}

func decodeWAV(data []byte) (*Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav stream", ErrDecoding)
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}

	channels := pcm.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	bitDepth := int(d.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	frames := len(pcm.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(pcm.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float64(channels)
	}

	if channels > 1 {
		slog.Info("Converted multi-channel audio to mono", "channels", channels)
	}

	return &Buffer{Samples: samples, SampleRate: pcm.Format.SampleRate}, nil
}

func decodeMP3(data []byte) (*Buffer, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}

	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}

	// go-mp3 always yields interleaved 16-bit little-endian stereo.
	frames := len(raw) / 4
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		left := int16(uint16(raw[i*4]) | uint16(raw[i*4+1])<<8)
		right := int16(uint16(raw[i*4+2]) | uint16(raw[i*4+3])<<8)
		samples[i] = (float64(left) + float64(right)) / 2 / 32768
	}

	slog.Info("Converted multi-channel audio to mono", "channels", 2)

	return &Buffer{Samples: samples, SampleRate: d.SampleRate()}, nil
}

// NormalizeLoudness scales samples so the RMS amplitude matches targetDB
// (converted from dB to linear as 10^(targetDB/20)). Silence is returned
// unchanged, as is the input when the loudness capability is off. The
// input buffer is not mutated.
func (c *Codec) NormalizeLoudness(b *Buffer, targetDB float64) *Buffer {
	if !c.caps.Loudness {
		slog.Warn("Loudness normalization unavailable, returning audio unchanged")
		return b
	}

	rms := b.RMS()
	if rms == 0 {
		return b
	}

	target := math.Pow(10, targetDB/20.0)
	gain := target / rms

	out := make([]float64, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = s * gain
	}

	return &Buffer{Samples: out, SampleRate: b.SampleRate}
}

// intBufferFromSamples clamps float samples into a 16-bit go-audio buffer.
func intBufferFromSamples(b *Buffer) *gaudio.IntBuffer {
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}

	return &gaudio.IntBuffer{
		Data:           data,
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: b.SampleRate},
		SourceBitDepth: 16,
	}
}
