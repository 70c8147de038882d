// Package engine defines the narrow interface through which the serving
// core consumes the synthesis model. The model itself is opaque: the core
// decides which device, precision and model instance serve a request, not
// how synthesis works.
package engine

import (
	"context"

	"github.com/resona-team/resona/internal/audio"
	"github.com/resona-team/resona/internal/device"
)

// SynthesisRequest carries the inputs of one synthesis call. Fields beyond
// Text are role-specific: Voice for pre-built voices, Instruction for
// natural-language voice design or tone control, ReferenceAudio plus
// ReferenceText for cloning.
type SynthesisRequest struct {
	Text           string
	Language       string
	Voice          string
	Instruction    string
	Speed          float64
	ReferenceAudio *audio.Buffer
	ReferenceText  string
	XVectorOnly    bool
}

// Model is a loaded, ready-to-invoke synthesis model bound to a device and
// precision. Inference mode is fixed at load time; the handle exposes no
// training-mode mutation. Unless documented otherwise a Model is not safe
// for concurrent Synthesize calls.
type Model interface {
	// ID returns the model identifier the handle was loaded from.
	ID() string

	// Synthesize runs inference and returns the raw waveform. Blocking;
	// once started it runs to completion or failure.
	Synthesize(ctx context.Context, req *SynthesisRequest) (*audio.Buffer, error)

	// Release frees the resources held by the handle.
	Release() error
}

// Tokenizer is the loaded tokenizer shared across all roles and profiles.
type Tokenizer interface {
	ID() string
	Release() error
}

// Loader acquires model and tokenizer instances. Loading is expensive and
// possibly network-involving; callers are expected to cache the results.
type Loader interface {
	LoadModel(ctx context.Context, id string, dev device.Profile) (Model, error)
	LoadTokenizer(ctx context.Context, id string, dev device.Profile) (Tokenizer, error)
}

// DeviceCacheReleaser is an optional interface for loaders that keep
// device-side cached allocations beyond the lifetime of individual
// handles.
type DeviceCacheReleaser interface {
	ReleaseDeviceCache(ctx context.Context) error
}
