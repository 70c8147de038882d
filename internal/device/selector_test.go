package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeAccel is a scriptable accelerator probe.
type fakeAccel struct {
	status Status
	ok     bool
	probes int
}

func (f *fakeAccel) Probe() (Status, bool) {
	f.probes++
	return f.status, f.ok
}

func TestSelector_AcceleratorProfile(t *testing.T) {
	accel := &fakeAccel{
		status: Status{
			Name:             "NVIDIA GeForce RTX 4090",
			TotalMemoryBytes: 24 * bytesPerGB,
			ReservedBytes:    1 * bytesPerGB,
			AllocatedBytes:   3 * bytesPerGB,
		},
		ok: true,
	}

	profile := NewSelector(accel).Detect()
	assert.Equal(t, KindAccelerator, profile.Kind)
	assert.Equal(t, "cuda:0", profile.Name)
	assert.Equal(t, PrecisionReduced, profile.Precision)
	assert.True(t, profile.IsAccelerator())
	assert.Equal(t, uint64(24*bytesPerGB), profile.TotalMemoryBytes)
	assert.Equal(t, uint64(20*bytesPerGB), profile.AvailableMemoryBytes)
}

func TestSelector_CPUFallback(t *testing.T) {
	s := NewSelector(&fakeAccel{})

	profile := s.Detect()
	assert.Equal(t, KindCPU, profile.Kind)
	assert.Equal(t, "cpu", profile.Name)
	assert.Equal(t, PrecisionFull, profile.Precision)
	assert.False(t, profile.IsAccelerator())
	assert.Greater(t, profile.ComputeThreads, 0)
	assert.GreaterOrEqual(t, profile.InteropThreads, 1)
	assert.LessOrEqual(t, profile.InteropThreads, profile.ComputeThreads)

	assert.Zero(t, s.AvailableMemoryGB())
}

func TestSelector_DetectMemoized(t *testing.T) {
	accel := &fakeAccel{status: Status{TotalMemoryBytes: 8 * bytesPerGB}, ok: true}
	s := NewSelector(accel)

	first := s.Detect()
	second := s.Detect()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, accel.probes)
}

func TestSelector_AvailableMemoryIsLive(t *testing.T) {
	accel := &fakeAccel{
		status: Status{TotalMemoryBytes: 8 * bytesPerGB, AllocatedBytes: 2 * bytesPerGB},
		ok:     true,
	}
	s := NewSelector(accel)
	s.Detect()

	assert.InDelta(t, 6.0, s.AvailableMemoryGB(), 1e-9)

	// A later reading reflects new allocations.
	accel.status.AllocatedBytes = 5 * bytesPerGB
	assert.InDelta(t, 3.0, s.AvailableMemoryGB(), 1e-9)
}

func TestSelector_AvailableMemoryFloorsAtZero(t *testing.T) {
	accel := &fakeAccel{
		status: Status{
			TotalMemoryBytes: 8 * bytesPerGB,
			ReservedBytes:    6 * bytesPerGB,
			AllocatedBytes:   4 * bytesPerGB,
		},
		ok: true,
	}
	s := NewSelector(accel)
	s.Detect()

	assert.Zero(t, s.AvailableMemoryGB())
}

func TestParseSMILine(t *testing.T) {
	status, ok := parseSMILine("NVIDIA GeForce RTX 4090, 24564, 380, 1024")
	assert.True(t, ok)
	assert.Equal(t, "NVIDIA GeForce RTX 4090", status.Name)
	assert.Equal(t, uint64(24564)*mib, status.TotalMemoryBytes)
	assert.Equal(t, uint64(380)*mib, status.ReservedBytes)
	assert.Equal(t, uint64(1024)*mib, status.AllocatedBytes)

	_, ok = parseSMILine("")
	assert.False(t, ok)

	_, ok = parseSMILine("name, not-a-number, 0, 0")
	assert.False(t, ok)
}
