package monitoring

import (
	"os"
	"strconv"
	"strings"
)

// DetectMemoryLimit reads the container memory limit from the cgroup
// filesystem, trying v2 before v1. Returns 0 when no limit applies
// (bare metal, development machines, containers without limits).
func DetectMemoryLimit() int64 {
	// cgroup v2: a number in bytes, or "max" for unlimited.
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		raw := strings.TrimSpace(string(data))
		if raw != "max" {
			if limit, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return limit
			}
		}
	}

	// cgroup v1 fallback.
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		if limit, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			return limit
		}
	}

	return 0
}

// Rough per-connection footprint: the send buffer dominates (256 frames of
// a few hundred bytes each), plus goroutine stacks for the two pumps and
// struct overhead.
const bytesPerConnection = 96 * 1024

// Runtime floor reserved for the Go heap, goroutine stacks, and clients
// (database pool, NATS).
const runtimeOverheadBytes = 96 * 1024 * 1024

// MaxConnectionsForMemory converts a container memory limit into a safe
// connection cap. A zero limit means no cap could be derived.
func MaxConnectionsForMemory(memoryLimitBytes int64) int {
	if memoryLimitBytes == 0 {
		return 0
	}

	available := memoryLimitBytes - runtimeOverheadBytes
	if available < 0 {
		// Very small containers still get half their memory for connections.
		available = memoryLimitBytes / 2
	}

	maxConns := int(available / bytesPerConnection)
	if maxConns < 64 {
		maxConns = 64
	}
	if maxConns > 50000 {
		maxConns = 50000
	}
	return maxConns
}
