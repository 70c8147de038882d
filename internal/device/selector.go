package device

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerGB = 1 << 30

// Selector performs the hardware capability probe. Detect is memoized for
// the process lifetime; construct one Selector in the composition root and
// share it.
type Selector struct {
	accel   Accelerator
	once    sync.Once
	profile Profile
}

// NewSelector creates a Selector backed by the given accelerator probe.
// Pass NewNvidiaSMI() in production; tests may pass a fake.
func NewSelector(accel Accelerator) *Selector {
	return &Selector{accel: accel}
}

// Detect inspects the hardware and returns the device profile. The probe
// runs exactly once; subsequent calls return the memoized result.
func (s *Selector) Detect() Profile {
	s.once.Do(func() {
		s.profile = s.detect()

		slog.Info("Device selected",
			"device", s.profile.Name,
			"precision", s.profile.Precision,
			"total_memory_bytes", s.profile.TotalMemoryBytes,
		)
	})

	return s.profile
}

func (s *Selector) detect() Profile {
	if status, ok := s.accel.Probe(); ok {
		slog.Info("Accelerator detected", "name", status.Name)

		return Profile{
			Kind:                 KindAccelerator,
			Name:                 "cuda:0",
			Precision:            PrecisionReduced,
			TotalMemoryBytes:     status.TotalMemoryBytes,
			AvailableMemoryBytes: availableBytes(status),
		}
	}

	slog.Warn("No accelerator available, falling back to CPU")

	profile := Profile{
		Kind:      KindCPU,
		Name:      "cpu",
		Precision: PrecisionFull,
	}

	cores := logicalCores()
	profile.ComputeThreads = cores
	profile.InteropThreads = max(1, cores/2)

	// Best-effort concurrency tuning; failures are ignored.
	runtime.GOMAXPROCS(cores)

	if vm, err := mem.VirtualMemory(); err == nil {
		profile.TotalMemoryBytes = vm.Total
		profile.AvailableMemoryBytes = vm.Available
	}

	return profile
}

// AvailableMemoryGB returns the accelerator memory still available, in
// gigabytes: total minus (reserved + allocated), floored at zero. Returns 0
// when no accelerator is present. The reading is live, not memoized.
func (s *Selector) AvailableMemoryGB() float64 {
	if !s.Detect().IsAccelerator() {
		return 0
	}

	status, ok := s.accel.Probe()
	if !ok {
		return 0
	}

	return float64(availableBytes(status)) / bytesPerGB
}

func availableBytes(status Status) uint64 {
	used := status.ReservedBytes + status.AllocatedBytes
	if used >= status.TotalMemoryBytes {
		return 0
	}

	return status.TotalMemoryBytes - used
}

func logicalCores() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}

	return runtime.NumCPU()
}
