package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/infrawatch/sg-bridge/modules/bridge"
	"github.com/infrawatch/sg-bridge/pkg/util/log"
)

var (
	prometheusListenAddress string
	prometheusPath          string
)

func init() {
	flag.StringVar(&prometheusListenAddress, "prometheus-listen-address", "", "The address to listen on for Prometheus scrapes. Empty disables the endpoint.")
	flag.StringVar(&prometheusPath, "prometheus-path", "/metrics", "The path to publish Prometheus metrics to.")
}

func main() {
	var cfg bridge.Config
	cfg.RegisterFlagsAndApplyDefaults("", flag.CommandLine)
	flag.Parse()

	log.InitLogger(cfg.Verbose)

	b, err := bridge.New(cfg, log.Logger)
	if err != nil {
		level.Error(log.Logger).Log("msg", "invalid configuration", "err", err)
		flag.Usage()
		os.Exit(1)
	}

	if prometheusListenAddress != "" {
		go func() {
			http.Handle(prometheusPath, promhttp.Handler())
			if err := http.ListenAndServe(prometheusListenAddress, nil); err != nil {
				level.Error(log.Logger).Log("msg", "metrics endpoint failed", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level.Info(log.Logger).Log("msg", "starting sg-bridge", "amqp_url", cfg.AMQPURL, "domain", cfg.Domain)

	if err := b.Run(ctx); err != nil {
		level.Error(log.Logger).Log("msg", "bridge exited", "err", err)
		os.Exit(1)
	}
}
