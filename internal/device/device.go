// Package device selects the execution device and numeric precision used
// for model construction. Detection runs once per process; the resulting
// profile is immutable.
package device

// Kind identifies the class of execution device.
type Kind string

const (
	// KindAccelerator is a dedicated compute accelerator (GPU).
	KindAccelerator Kind = "accelerator"

	// KindCPU is the general-purpose processor fallback.
	KindCPU Kind = "cpu"
)

// Precision is the numeric precision models are constructed with.
type Precision string

const (
	// PrecisionReduced (bf16) is used on accelerators for throughput.
	PrecisionReduced Precision = "bf16"

	// PrecisionFull (f32) is used on CPUs, where reduced precision may be
	// unsupported or slow.
	PrecisionFull Precision = "f32"
)

// Profile describes the device a model instance is bound to.
type Profile struct {
	Kind                 Kind      `json:"kind"`
	Name                 string    `json:"name"` // e.g. "cuda:0" or "cpu"
	Precision            Precision `json:"precision"`
	TotalMemoryBytes     uint64    `json:"total_memory_bytes,omitempty"`
	AvailableMemoryBytes uint64    `json:"available_memory_bytes,omitempty"`
	ComputeThreads       int       `json:"compute_threads,omitempty"`
	InteropThreads       int       `json:"interop_threads,omitempty"`
}

// IsAccelerator reports whether the profile is bound to an accelerator.
func (p Profile) IsAccelerator() bool {
	return p.Kind == KindAccelerator
}

// Status is a point-in-time accelerator memory reading.
type Status struct {
	Name             string
	TotalMemoryBytes uint64
	ReservedBytes    uint64
	AllocatedBytes   uint64
}

// Accelerator probes dedicated compute hardware. Implementations report
// ok=false when no accelerator is present; absence is a fallback, not an
// error.
type Accelerator interface {
	Probe() (Status, bool)
}
