package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/infrawatch/sg-bridge/modules/generator"
)

var (
	prometheusListenAddress string
	prometheusPath          string

	logger *zap.Logger
)

func init() {
	flag.StringVar(&prometheusListenAddress, "prometheus-listen-address", "", "The address to listen on for Prometheus scrapes. Empty disables the endpoint.")
	flag.StringVar(&prometheusPath, "prometheus-path", "/metrics", "The path to publish Prometheus metrics to.")
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [OPTIONS] amqp_ip amqp_port\n\n", os.Args[0])
	fmt.Fprintf(flag.CommandLine.Output(), "Synthetic telemetry generator for AMQP 1.0 pipelines.\n\n")
	flag.PrintDefaults()
}

func main() {
	var cfg generator.Config
	cfg.RegisterFlagsAndApplyDefaults(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()

	config := zap.NewDevelopmentEncoderConfig()
	lvl := zapcore.InfoLevel
	if cfg.Verbose {
		lvl = zapcore.DebugLevel
	}
	logger = zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(config),
		os.Stdout,
		lvl,
	))

	if flag.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Missing required arguments -- exiting!")
		usage()
		os.Exit(1)
	}
	cfg.Host = flag.Arg(0)
	cfg.Port = flag.Arg(1)

	g, err := generator.New(cfg, logger)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		usage()
		os.Exit(1)
	}

	if prometheusListenAddress != "" {
		go func() {
			http.Handle(prometheusPath, promhttp.Handler())
			if err := http.ListenAndServe(prometheusListenAddress, nil); err != nil {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("sg-gen starting")

	if err := g.Run(ctx); err != nil {
		logger.Error("generator exited", zap.Error(err))
		os.Exit(1)
	}

	stats := g.Stats()
	logger.Info("done",
		zap.Int64("messages", stats.AMQPSent.Load()),
		zap.Int64("records", stats.RecordsSent.Load()),
		zap.Int64("acknowledged", stats.Acknowledged.Load()),
		zap.Int64("bursts", stats.TotalBursts.Load()),
	)
}
