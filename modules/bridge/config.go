package bridge

import (
	"flag"
	"fmt"
	"time"

	"github.com/infrawatch/sg-bridge/pkg/amqputil"
	"github.com/infrawatch/sg-bridge/pkg/ring"
)

const (
	DomainUnix = "unix"
	DomainInet = "inet"

	DefaultUnixSocketPath = "/tmp/smartgateway"
	DefaultInetHost       = "127.0.0.1"
	DefaultInetPort       = "30000"
)

type Config struct {
	AMQPURL      string        `yaml:"amqp_url"`
	ContainerID  string        `yaml:"container_id"`
	MessageCount int           `yaml:"message_count"`
	Standalone   bool          `yaml:"standalone"`
	StatPeriod   time.Duration `yaml:"stat_period"`
	Verbose      bool          `yaml:"verbose"`

	Domain         string `yaml:"domain"`
	UnixSocketPath string `yaml:"unix_socket_path"`
	InetHost       string `yaml:"inet_host"`
	InetPort       string `yaml:"inet_port"`
	BlockingSend   bool   `yaml:"blocking_send"`

	RingCount int `yaml:"ring_count"`
	RingSize  int `yaml:"ring_size"`

	// Connection is derived from AMQPURL by Validate.
	Connection *amqputil.Connection `yaml:"-"`
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.AMQPURL, prefix+"amqp-url", amqputil.DefaultURL, "AMQP endpoint, amqp://[user[:password]@]host[:port]/address.")
	f.StringVar(&c.ContainerID, prefix+"cid", "", "AMQP container id, should be unique. Defaults to sa-<random>.")
	f.IntVar(&c.MessageCount, prefix+"count", 0, "Number of AMQP messages to receive before exiting, 0 for continuous.")
	f.BoolVar(&c.Standalone, prefix+"standalone", false, "Listen for the AMQP peer instead of connecting out.")
	f.DurationVar(&c.StatPeriod, prefix+"stat-period", 0, "How often to report stats, 0 disables.")
	f.BoolVar(&c.Verbose, prefix+"verbose", false, "Enable debug logging.")

	f.StringVar(&c.Domain, prefix+"domain", DomainUnix, "Datagram socket domain, unix or inet.")
	f.StringVar(&c.UnixSocketPath, prefix+"gw-unix", DefaultUnixSocketPath, "Unix socket path of the downstream consumer.")
	f.StringVar(&c.InetHost, prefix+"gw-inet-host", DefaultInetHost, "Downstream UDP host.")
	f.StringVar(&c.InetPort, prefix+"gw-inet-port", DefaultInetPort, "Downstream UDP port.")
	f.BoolVar(&c.BlockingSend, prefix+"block", false, "Block on socket sends instead of dropping when the consumer is behind.")

	f.IntVar(&c.RingCount, prefix+"ring-count", ring.DefaultSlotCount, "Ring buffer slot count.")
	f.IntVar(&c.RingSize, prefix+"ring-size", ring.DefaultSlotSize, "Ring buffer slot size in bytes.")
}

func (c *Config) Validate() error {
	conn, err := amqputil.Parse(c.AMQPURL)
	if err != nil {
		return err
	}
	c.Connection = conn

	if c.ContainerID == "" {
		c.ContainerID = amqputil.ContainerID()
	}

	switch c.Domain {
	case DomainUnix, DomainInet:
	default:
		return fmt.Errorf("unknown socket domain %q", c.Domain)
	}

	if c.RingCount < 2 || c.RingSize <= 0 {
		return fmt.Errorf("invalid ring geometry %dx%d", c.RingCount, c.RingSize)
	}

	return nil
}
