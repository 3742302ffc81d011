package core

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/giantswarm/pgenv/internal/command"
)

// ReadinessProbe decides whether a freshly started server is accepting
// connections. It is polled at the configured interval until it reports
// ready or the readiness timeout elapses. A non-nil error is fatal and
// aborts the wait; "not yet" is (false, nil).
type ReadinessProbe interface {
	Ready(ctx context.Context, host string, port int) (bool, error)
}

// Compile-time checks that both probes satisfy ReadinessProbe.
var (
	_ ReadinessProbe = (*TCPProbe)(nil)
	_ ReadinessProbe = (*GatewayProbe)(nil)
)

// defaultProbeDialTimeout bounds a single TCP connect attempt so one hung
// dial cannot eat multiple poll intervals.
const defaultProbeDialTimeout = time.Second

// TCPProbe reports ready once the server's listen port accepts a TCP
// connection. It needs no utility binaries and is the default probe.
type TCPProbe struct {
	// DialTimeout bounds one connection attempt. Zero means one second.
	DialTimeout time.Duration
}

// Ready implements ReadinessProbe. Connection failures mean "not yet",
// never a fatal error; the poll deadline is the overall arbiter.
func (p *TCPProbe) Ready(ctx context.Context, host string, port int) (bool, error) {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = defaultProbeDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}

// GatewayProbe asks the server itself via the readiness utility, planned and
// executed through the command gateway. More truthful than a bare TCP
// connect (the server accepts connections slightly before it finishes
// recovery) at the cost of one process execution per poll.
type GatewayProbe struct {
	Planner  command.Planner
	Runner   command.Runner
	Binaries map[string]string
}

// Ready implements ReadinessProbe. A plan or spawn failure is fatal; a
// non-zero exit means "not yet".
func (p *GatewayProbe) Ready(ctx context.Context, host string, port int) (bool, error) {
	inv, err := p.Planner.Plan(command.OpCheckReady, command.Facts{
		Binaries: p.Binaries,
		Host:     host,
		Port:     port,
	})
	if err != nil {
		return false, err
	}
	result, err := p.Runner.Run(ctx, inv)
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0, nil
}
