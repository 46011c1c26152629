// SPDX-License-Identifier: GPL-3.0-or-later

// Command pacesim runs the paced sender experiment in virtual time.
//
// It prints congestion window changes of the traced session as
// "<seconds>\t<cwnd>" lines and receive drops as "RxDrop at <seconds>"
// lines on the standard output, and a per-session summary on the
// standard error. Configuration comes from PACESIM_* environment
// variables, an optional .env file (see PACESIM_ENV_FILE) and flags,
// in increasing order of precedence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbmk-project/pacesim/config"
	"github.com/rbmk-project/pacesim/metrics"
	"github.com/rbmk-project/pacesim/mqtt"
	"github.com/rbmk-project/pacesim/scenario"
	"github.com/rbmk-project/pacesim/trace"
)

// envFile names the variable overriding the .env file path.
const envFile = "PACESIM_ENV_FILE"

var newMQTTClient = func(cfg config.MQTT, logger *slog.Logger) (mqttClient, error) {
	client, err := mqtt.NewClient(mqtt.Config{
		BrokerURL: cfg.BrokerURL,
		ClientID:  cfg.ClientID,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, err
	}
	client.Logger = logger
	return client, nil
}

type mqttClient interface {
	mqtt.Publisher
	Connect() error
	Close() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	path := os.Getenv(envFile)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Overload(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "dotenv: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	flags := flag.NewFlagSet("pacesim", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.DurationVar(&cfg.Simulation.Latency, "latency", cfg.Simulation.Latency, "propagation delay of every link")
	flags.TextVar(&cfg.Simulation.Bandwidth, "bandwidth", cfg.Simulation.Bandwidth, "access link data rate")
	flags.TextVar(&cfg.Simulation.BottleneckBandwidth, "bottleneck-bandwidth", cfg.Simulation.BottleneckBandwidth, "bottleneck link data rate")
	flags.Float64Var(&cfg.Simulation.ErrorRate, "error-rate", cfg.Simulation.ErrorRate, "per-byte receive error rate")
	flags.Uint64Var(&cfg.Simulation.Seed, "seed", cfg.Simulation.Seed, "error model seed")
	flags.DurationVar(&cfg.Simulation.Stop, "stop", cfg.Simulation.Stop, "simulation end")
	flags.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.Metrics.Enabled, "metrics", cfg.Metrics.Enabled, "serve metrics after the run until interrupted")
	flags.StringVar(&cfg.Metrics.Bind, "metrics-bind", cfg.Metrics.Bind, "metrics listen address")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", flags.Args())
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	sc := scenario.New()
	sc.Logger = logger
	defer sc.Close()
	if err := sc.AddDefaultSessions(cfg.Params()); err != nil {
		fmt.Fprintf(stderr, "scenario: %v\n", err)
		return 1
	}
	sc.AttachWriter(&trace.Writer{W: stdout})

	reg := prometheus.NewRegistry()
	coll := metrics.New(reg)
	for _, sess := range sc.Sessions() {
		coll.Observe(sess.Name(), sess.Traces())
	}

	if cfg.MQTT.BrokerURL != "" {
		client, err := newMQTTClient(cfg.MQTT, logger)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		if err := client.Connect(); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		defer client.Close()
		exporter := mqtt.NewExporter(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS)
		exporter.Logger = logger
		for _, sess := range sc.Sessions() {
			exporter.Observe(sess.Name(), sess.Traces())
		}
	}

	for _, summary := range sc.Run(cfg.Simulation.Stop) {
		writeSummary(stderr, summary)
	}

	if cfg.Metrics.Enabled {
		return serveMetrics(ctx, logger, stderr, metrics.NewServer(cfg.Metrics.Bind, reg))
	}
	return 0
}

// writeSummary writes a one-line session summary.
func writeSummary(w io.Writer, summary scenario.Summary) {
	fmt.Fprintf(
		w,
		"# %s: state=%s packets=%d sent=%d received=%d drops=%d retransmits=%d",
		summary.Name,
		summary.State,
		summary.PacketsSent,
		summary.BytesSent,
		summary.BytesReceived,
		summary.Drops,
		summary.Retransmits,
	)
	if summary.Err != nil {
		fmt.Fprintf(w, " err=%q", summary.Err.Error())
	}
	fmt.Fprintln(w)
}

// serveMetrics serves the metrics until the context is done.
func serveMetrics(ctx context.Context, logger *slog.Logger, stderr io.Writer, srv *metrics.Server) int {
	srv.Logger = logger
	errch := make(chan error, 1)
	go func() { errch <- srv.Start() }()

	select {
	case err := <-errch:
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	return 0
}
