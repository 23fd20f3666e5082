package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Azure/go-amqp"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/infrawatch/sg-bridge/pkg/ring"
)

// Egress drains the ring and forwards each message body as one datagram.
// It is the ring's single consumer.
type Egress struct {
	services.Service

	cfg    Config
	rb     *ring.Ring
	logger kitlog.Logger

	sock      int
	peer      unix.Sockaddr
	connected bool
	flags     int

	// scratch message reused across iterations, cleared not reallocated
	scratch amqp.Message

	sent       atomic.Int64
	wouldBlock atomic.Int64
	decodeErrs atomic.Int64
}

func newEgress(cfg Config, rb *ring.Ring, logger kitlog.Logger) *Egress {
	e := &Egress{
		cfg:    cfg,
		rb:     rb,
		logger: kitlog.With(logger, "component", "socket-egress"),
		sock:   -1,
	}
	if !cfg.BlockingSend {
		e.flags = unix.MSG_DONTWAIT
	}
	e.Service = services.NewBasicService(e.starting, e.running, e.stopping)
	return e
}

func (e *Egress) starting(_ context.Context) error {
	switch e.cfg.Domain {
	case DomainInet:
		return e.openInet()
	default:
		return e.openUnix()
	}
}

func (e *Egress) openUnix() error {
	sock, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return fmt.Errorf("failed to open datagram socket: %w", err)
	}

	// SOCK_SEQPACKET is connection oriented; the consumer must be listening
	sa := &unix.SockaddrUnix{Name: e.cfg.UnixSocketPath}
	if err := unix.Connect(sock, sa); err != nil {
		_ = unix.Close(sock)
		return fmt.Errorf("failed to connect to %s: %w", e.cfg.UnixSocketPath, err)
	}

	e.sock = sock
	e.peer = sa
	e.connected = true
	level.Info(e.logger).Log("msg", "unix socket open", "path", e.cfg.UnixSocketPath)
	return nil
}

func (e *Egress) openInet() error {
	hostPort := net.JoinHostPort(e.cfg.InetHost, e.cfg.InetPort)
	addr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", hostPort, err)
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil {
		s := &unix.SockaddrInet4{Port: addr.Port}
		copy(s.Addr[:], ip4)
		sa = s
	} else {
		family = unix.AF_INET6
		s := &unix.SockaddrInet6{Port: addr.Port}
		copy(s.Addr[:], addr.IP.To16())
		sa = s
	}

	sock, err := unix.Socket(family, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("failed to open datagram socket: %w", err)
	}

	e.sock = sock
	e.peer = sa
	level.Info(e.logger).Log("msg", "udp peer resolved", "addr", addr)
	return nil
}

func (e *Egress) running(ctx context.Context) error {
	// Pop blocks outside the reach of ctx; closing the ring is the
	// cancellation point.
	go func() {
		<-ctx.Done()
		e.rb.Close()
	}()

	for {
		slot, ok := e.rb.Pop()
		if !ok {
			return nil
		}
		e.forward(slot)
	}
}

// forward decodes one ring slot and sends its body downstream. Transient
// failures are counted, never fatal.
func (e *Egress) forward(slot []byte) {
	e.scratch = amqp.Message{}
	if err := e.scratch.UnmarshalBinary(slot); err != nil {
		e.decodeErrs.Inc()
		metricDecodeErrors.Inc()
		return
	}

	body := e.scratch.GetData()
	if len(body) == 0 {
		return
	}

	// a nil address sends on the connected seqpacket socket
	addr := e.peer
	if e.connected {
		addr = nil
	}
	err := unix.Sendto(e.sock, body, e.flags, addr)
	switch {
	case err == nil:
		e.sent.Inc()
		metricSockSent.Inc()
	case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
		e.wouldBlock.Inc()
		metricSockWouldBlock.Inc()
	default:
		level.Error(e.logger).Log("msg", "socket send failed", "err", err)
	}
}

func (e *Egress) stopping(_ error) error {
	e.rb.Close()
	if e.sock >= 0 {
		_ = unix.Close(e.sock)
	}
	level.Info(e.logger).Log("msg", "socket egress stopped")
	return nil
}

// Stats used by the supervisor's reporting loop.

func (e *Egress) Sent() int64 { return e.sent.Load() }

func (e *Egress) WouldBlock() int64 { return e.wouldBlock.Load() }

func (e *Egress) DecodeErrors() int64 { return e.decodeErrs.Load() }
