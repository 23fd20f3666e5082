package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Azure/go-amqp"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"go.uber.org/atomic"

	"github.com/infrawatch/sg-bridge/pkg/amqputil"
	"github.com/infrawatch/sg-bridge/pkg/ring"
)

// errMessageCountReached signals the configured stop-at-count; it is a
// worker-initiated shutdown and maps to exit code 1.
var errMessageCountReached = errors.New("message count reached")

const receiverLinkName = "sa_receiver"

// amqpReceiver is the slice of *amqp.Receiver the bridge uses; tests swap in
// a fake peer.
type amqpReceiver interface {
	Receive(ctx context.Context, opts *amqp.ReceiveOptions) (*amqp.Message, error)
	AcceptMessage(ctx context.Context, msg *amqp.Message) error
	RejectMessage(ctx context.Context, msg *amqp.Message, e *amqp.Error) error
	IssueCredit(credit uint32) error
	Close(ctx context.Context) error
}

// Receiver drives the AMQP 1.0 receiver link and produces into the ring.
// The initial grant is the ring's slot count; after that, credit top-ups
// never raise the peer's credit above the ring's free capacity.
type Receiver struct {
	services.Service

	cfg    Config
	rb     *ring.Ring
	logger kitlog.Logger

	conn     *amqp.Conn
	session  *amqp.Session
	link     amqpReceiver
	listener net.Listener

	// credit the peer still holds, mirrored locally
	credit int64

	received  atomic.Int64
	partial   atomic.Int64
	oversize  atomic.Int64
	maxQDepth atomic.Int64
}

func newReceiver(cfg Config, rb *ring.Ring, logger kitlog.Logger) *Receiver {
	r := &Receiver{
		cfg:    cfg,
		rb:     rb,
		logger: kitlog.With(logger, "component", "amqp-receiver"),
	}
	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)
	return r
}

func (r *Receiver) starting(ctx context.Context) error {
	opts := &amqp.ConnOptions{
		ContainerID: r.cfg.ContainerID,
		SASLType:    amqp.SASLTypeAnonymous(),
	}
	if r.cfg.Connection.User != "" {
		opts.SASLType = amqp.SASLTypePlain(r.cfg.Connection.User, r.cfg.Connection.Password)
	}

	var err error
	if r.cfg.Standalone {
		r.conn, err = r.accept(ctx)
	} else {
		level.Info(r.logger).Log("msg", "connecting", "addr", r.cfg.Connection.DialAddr())
		r.conn, err = amqp.Dial(ctx, r.cfg.Connection.DialAddr(), opts)
	}
	if err != nil {
		return fmt.Errorf("failed to open amqp connection: %w", err)
	}

	r.session, err = r.conn.NewSession(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to open amqp session: %w", err)
	}

	// manual credit: the ring dictates how much the peer may send
	link, err := r.session.NewReceiver(ctx, r.cfg.Connection.Address, &amqp.ReceiverOptions{
		Name:           receiverLinkName,
		Credit:         -1,
		SettlementMode: amqp.ReceiverSettleModeFirst.Ptr(),
	})
	if err != nil {
		return fmt.Errorf("failed to attach receiver link: %w", err)
	}
	r.link = link

	initial := int64(r.rb.Capacity())
	if err := r.link.IssueCredit(uint32(initial)); err != nil {
		return fmt.Errorf("failed to issue initial credit: %w", err)
	}
	r.credit = initial

	level.Info(r.logger).Log("msg", "receiver link attached", "address", r.cfg.Connection.Address, "credit", initial)
	return nil
}

// accept waits for one inbound TCP connection and runs the AMQP handshake
// over it. SASL is not negotiated on accepted connections.
func (r *Receiver) accept(ctx context.Context) (*amqp.Conn, error) {
	addr := net.JoinHostPort(r.cfg.Connection.Host, r.cfg.Connection.Port)

	var err error
	r.listener, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	level.Info(r.logger).Log("msg", "listening", "addr", r.listener.Addr())

	done := ctx.Done()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-done:
			_ = r.listener.Close()
		case <-stop:
		}
	}()

	conn, err := r.listener.Accept()
	if err != nil {
		return nil, err
	}
	level.Debug(r.logger).Log("msg", "accepted connection", "peer", conn.RemoteAddr())

	return amqp.NewConn(ctx, conn, &amqp.ConnOptions{ContainerID: r.cfg.ContainerID})
}

func (r *Receiver) running(ctx context.Context) error {
	for {
		msg, err := r.link.Receive(ctx, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return amqputil.DescribeError(err)
		}

		if err := r.handleMessage(ctx, msg); err != nil {
			return err
		}

		if r.cfg.MessageCount > 0 && r.received.Load() >= int64(r.cfg.MessageCount) {
			level.Info(r.logger).Log("msg", "message count reached", "count", r.received.Load())
			return errMessageCountReached
		}
	}
}

func (r *Receiver) handleMessage(ctx context.Context, msg *amqp.Message) error {
	r.credit--

	// the link mux only hands over fully assembled messages, so a
	// re-encode cannot realistically fail; treat it as fatal if it does
	encoded, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode delivery: %w", err)
	}

	if n := len(msg.Data); n > 1 {
		r.partial.Add(int64(n - 1))
		metricAMQPPartial.Add(float64(n - 1))
	}

	if !r.rb.Append(encoded) {
		// larger than a slot: reject outright, it can never be forwarded
		r.oversize.Inc()
		metricAMQPOversize.Inc()
		r.rb.ResetHead()
		rejectErr := r.link.RejectMessage(ctx, msg, &amqp.Error{
			Condition:   amqp.ErrCondMessageSizeExceeded,
			Description: fmt.Sprintf("message exceeds ring slot size %d", r.cfg.RingSize),
		})
		if rejectErr != nil && ctx.Err() == nil {
			return amqputil.DescribeError(rejectErr)
		}
		return r.replenish(1)
	}

	// drop-on-full is the ring's call; overruns are counted there and the
	// head slot has already been recycled for the next delivery
	r.rb.Commit()

	if inUse := int64(r.rb.InUse()); inUse > r.maxQDepth.Load() {
		r.maxQDepth.Store(inUse)
		metricRingMaxDepth.Set(float64(inUse))
	}

	if err := r.link.AcceptMessage(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return amqputil.DescribeError(err)
	}
	r.received.Inc()
	metricAMQPReceived.Inc()

	return r.replenish(0)
}

// replenish tops the peer's credit back up to the ring's free capacity,
// extra compensates deliveries that never consumed a slot.
func (r *Receiver) replenish(extra int64) error {
	r.credit += extra
	free := int64(r.rb.Free())
	if r.credit >= free {
		return nil
	}

	grant := free - r.credit
	if err := r.link.IssueCredit(uint32(grant)); err != nil {
		return fmt.Errorf("failed to issue credit: %w", err)
	}
	r.credit = free
	return nil
}

func (r *Receiver) stopping(_ error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.link != nil {
		_ = r.link.Close(ctx)
	}
	if r.session != nil {
		_ = r.session.Close(ctx)
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
	if r.listener != nil {
		_ = r.listener.Close()
	}

	level.Info(r.logger).Log("msg", "amqp receiver stopped")
	return nil
}

// Stats used by the supervisor's reporting loop.

func (r *Receiver) Received() int64 { return r.received.Load() }

func (r *Receiver) Partial() int64 { return r.partial.Load() }

func (r *Receiver) MaxQueueDepth() int64 { return r.maxQDepth.Load() }
