package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrNoFreePort is returned when the registry exhausts its allocation attempts
// without finding a port that is both kernel-free and unclaimed in-process.
const ErrNoFreePort = sentinel.Error("no free port available")

// maxPortRetries is the maximum number of attempts to find a port not already
// in the registry. This guards against pathological cases where the kernel
// keeps handing back recently-released ports.
const maxPortRetries = 20

// PortRegistry tracks ports currently reserved by this process to prevent the
// TOCTOU race where two concurrent Allocate calls receive the same port from
// the kernel (because the first caller closed its probe listener before the
// second caller opened theirs).
//
// The Environment creates one PortRegistry and shares it via dependency
// injection with every Instance it manages.
type PortRegistry struct {
	mu    sync.Mutex
	ports map[int]struct{}
	log   *slog.Logger
}

// NewPortRegistry creates a new PortRegistry ready for use.
// If logger is nil, slog.Default() is used as a fallback.
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{
		ports: make(map[int]struct{}),
		log:   logger,
	}
}

// reserve attempts to register a port in the registry.
// Returns true if the port was successfully reserved, false if already taken.
func (r *PortRegistry) reserve(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; ok {
		return false
	}
	r.ports[port] = struct{}{}
	return true
}

// Release removes a port from the registry, allowing it to be reused.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, port)
}

// Claim registers an explicitly-configured port in the registry so that
// auto-allocation for other instances cannot hand out the same port. Returns
// false if the port is already claimed by another instance in this process.
func (r *PortRegistry) Claim(port int) bool {
	return r.reserve(port)
}

// Allocate asks the kernel for a free ephemeral port on 127.0.0.1, skipping
// any ports already claimed in the registry. The probe listener is closed
// before returning, but the port stays registered until the caller invokes
// Release, which keeps concurrent allocations from colliding in the window
// between close and the server process binding the port.
func (r *PortRegistry) Allocate() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("resolve tcp address: %w", err)
	}

	for i := 0; i < maxPortRetries; i++ {
		l, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return 0, fmt.Errorf("listen on tcp address: %w", err)
		}
		tcpAddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			_ = l.Close()
			return 0, fmt.Errorf("unexpected address type: %T", l.Addr())
		}
		port := tcpAddr.Port
		if r.reserve(port) {
			if closeErr := l.Close(); closeErr != nil {
				r.log.Warn("close probe listener after port allocation", "port", port, "error", closeErr)
			}
			return port, nil
		}
		// Port already in registry, close and retry to get a different one.
		r.log.Debug("port already in registry, retrying", "port", port)
		_ = l.Close()
	}
	return 0, fmt.Errorf("allocate unique port: exhausted %d attempts: %w", maxPortRetries, ErrNoFreePort)
}
