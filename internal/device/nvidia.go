package device

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	nvidiaSMIBinary  = "nvidia-smi"
	nvidiaSMITimeout = 5 * time.Second
	mib              = 1 << 20
)

// NvidiaSMI probes NVIDIA hardware through the nvidia-smi CLI. Probe
// reports absent when the binary is missing or the query fails; there is
// no error path.
type NvidiaSMI struct{}

// NewNvidiaSMI creates the production accelerator probe.
func NewNvidiaSMI() *NvidiaSMI {
	return &NvidiaSMI{}
}

// Probe queries device 0 for its name and memory counters.
func (n *NvidiaSMI) Probe() (Status, bool) {
	if _, err := exec.LookPath(nvidiaSMIBinary); err != nil {
		return Status{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), nvidiaSMITimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, nvidiaSMIBinary,
		"--query-gpu=name,memory.total,memory.reserved,memory.used",
		"--format=csv,noheader,nounits",
		"--id=0",
	)

	output, err := cmd.Output()
	if err != nil {
		slog.Debug("nvidia-smi query failed", "error", err)
		return Status{}, false
	}

	status, ok := parseSMILine(strings.TrimSpace(string(output)))
	if !ok {
		slog.Debug("nvidia-smi output unparseable", "output", string(output))
		return Status{}, false
	}

	return status, true
}

// parseSMILine parses "name, total, reserved, used" with MiB values.
func parseSMILine(line string) (Status, bool) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return Status{}, false
	}

	total, err1 := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
	reserved, err2 := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
	used, err3 := strconv.ParseUint(strings.TrimSpace(fields[3]), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Status{}, false
	}

	return Status{
		Name:             strings.TrimSpace(fields[0]),
		TotalMemoryBytes: total * mib,
		ReservedBytes:    reserved * mib,
		AllocatedBytes:   used * mib,
	}, true
}
