package amqputil

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultPort = "5672"
	// DefaultURL is the bridge's endpoint when no URL is given.
	DefaultURL = "amqp://127.0.0.1:5672/collectd/telemetry"
)

// Connection is the broken-out form of an amqp:// URL,
// amqp://[user[:password]@]host[:port]/address.
type Connection struct {
	URL      string
	User     string
	Password string
	Host     string
	Port     string
	Address  string
}

// Parse splits an amqp URL into its connection parts. The address is
// everything after the authority, without the leading slash.
func Parse(rawURL string) (*Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid amqp url %q: %w", rawURL, err)
	}
	if u.Scheme != "amqp" {
		return nil, fmt.Errorf("invalid amqp url %q: scheme must be amqp", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid amqp url %q: missing host", rawURL)
	}

	c := &Connection{
		URL:  rawURL,
		Host: u.Host,
		Port: DefaultPort,
	}
	if host, port, err := net.SplitHostPort(u.Host); err == nil {
		c.Host = host
		c.Port = port
	}
	if u.User != nil {
		c.User = u.User.Username()
		c.Password, _ = u.User.Password()
	}

	c.Address = strings.TrimPrefix(u.Path, "/")
	if c.Address == "" {
		return nil, fmt.Errorf("invalid amqp url %q: missing address", rawURL)
	}

	return c, nil
}

// DialAddr is the scheme://host:port form the AMQP dialer wants.
func (c *Connection) DialAddr() string {
	return "amqp://" + net.JoinHostPort(c.Host, c.Port)
}

// ContainerID returns a unique default AMQP container id.
func ContainerID() string {
	return "sa-" + uuid.NewString()[:8]
}
