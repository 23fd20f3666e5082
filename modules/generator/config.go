package generator

import (
	"flag"
	"fmt"

	"github.com/infrawatch/sg-bridge/pkg/amqputil"
	"github.com/infrawatch/sg-bridge/pkg/gen"
)

const DefaultAddress = "collectd/telemetry"

type Config struct {
	// Host and Port are the positional amqp_ip / amqp_port arguments.
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	Address     string `yaml:"address"`
	ContainerID string `yaml:"container_id"`

	// MessageCount counts telemetry records, not AMQP messages; the run
	// stops once this many records have been sent. 0 is continuous.
	MessageCount      int `yaml:"message_count"`
	RecordsPerMessage int `yaml:"records_per_message"`
	Hosts             int `yaml:"hosts"`
	MetricsPerHost    int `yaml:"metrics_per_host"`
	Workers           int `yaml:"workers"`

	BurstSize  int  `yaml:"burst_size"`
	SleepUsec  int  `yaml:"sleep_usec"`
	Presettled bool `yaml:"presettled"`
	Verbose    bool `yaml:"verbose"`

	Mode string `yaml:"mode"`

	mode gen.Mode
}

func (c *Config) RegisterFlagsAndApplyDefaults(f *flag.FlagSet) {
	f.StringVar(&c.ContainerID, "i", "", "AMQP container id, should be unique. Defaults to sa-<random>.")
	f.StringVar(&c.Address, "a", DefaultAddress, "AMQP address of the endpoint.")
	f.IntVar(&c.MessageCount, "c", 0, "Telemetry record count to stop at, 0 for continuous.")
	f.IntVar(&c.RecordsPerMessage, "n", 1, "Telemetry records per AMQP message.")
	f.IntVar(&c.Hosts, "o", 1, "Simulated host count.")
	f.IntVar(&c.MetricsPerHost, "m", 1, "Metrics per simulated host.")
	f.IntVar(&c.Workers, "t", 1, "Concurrent sender sessions.")
	f.IntVar(&c.BurstSize, "b", 0, "Max messages per burst, 0 for no cap (a burst then ends only at the record count).")
	f.IntVar(&c.SleepUsec, "s", 0, "Microseconds to sleep between bursts.")
	f.BoolVar(&c.Presettled, "p", false, "Send presettled (fire and forget).")
	f.BoolVar(&c.Verbose, "v", false, "Print extra info.")
	f.StringVar(&c.Mode, "mode", "metric", "Payload shape: metric, log or event.")
}

func (c *Config) Validate() error {
	if c.Host == "" || c.Port == "" {
		return fmt.Errorf("amqp_ip and amqp_port are required")
	}

	var err error
	if c.mode, err = gen.ParseMode(c.Mode); err != nil {
		return err
	}

	if c.ContainerID == "" {
		c.ContainerID = amqputil.ContainerID()
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.RecordsPerMessage < 1 {
		c.RecordsPerMessage = 1
	}

	return nil
}
