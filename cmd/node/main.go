// Command node runs one Athernet station on an audio device and reads
// commands from stdin:
//
//	r <num> <len>                 send num random coded frames of len bits
//	s <file>                      send a file reliably
//	ping <ip> [-n n] [-i s] [-l b] ping an address across the link
//	stats                         print link counters
//	e                             exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"Athernet/pkg/async"
	"Athernet/pkg/config"
	"Athernet/pkg/device"
	"Athernet/pkg/iface"
	"Athernet/pkg/layers"
	"Athernet/pkg/telemetry"
)

func main() {
	var configFile = pflag.StringP("config", "c", "config.yml", "Station configuration file.")
	var address = pflag.IntP("address", "a", -1, "Override mac_layer.address.")
	var backend = pflag.StringP("backend", "d", "", "Override device.backend (loopback, portaudio, asio).")
	var bridge = pflag.BoolP("bridge", "b", false, "Forward IP traffic through a host TUN device.")
	var capture = pflag.String("capture", "", "Write bridged packets to a pcap file.")
	var output = pflag.StringP("output", "o", "received.bin", "Where files sent by the peer are stored.")
	var listen = pflag.StringP("telemetry", "t", "", "Serve telemetry over websocket on this address.")
	var logLevel = pflag.StringP("log-level", "v", "", "Override telemetry.log_level.")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if errors.Is(err, fs.ErrNotExist) && !pflag.CommandLine.Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *address >= 0 {
		cfg = cfg.WithAddress(*address)
	}
	if *backend != "" {
		cfg.Device.Backend = *backend
	}
	if *bridge {
		cfg.TUN.Bridge = true
	}
	if *capture != "" {
		cfg.TUN.Capture = *capture
	}
	if *listen != "" {
		cfg.Telemetry.Addr = *listen
	}
	if *logLevel != "" {
		cfg.Telemetry.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: telemetry.ParseLevel(cfg.Telemetry.LogLevel)}))
	if err := run(cfg, *output, log); err != nil {
		log.Error("node failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, output string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sinks := telemetry.Multi{telemetry.NewLogSink(log)}
	var hub *telemetry.Hub
	if cfg.Telemetry.Addr != "" {
		hub = telemetry.NewHub(log)
		sinks = append(sinks, hub)
	}

	dev, err := device.Open(&cfg.Device)
	if err != nil {
		return err
	}
	link, err := layers.Open(cfg, dev, layers.WithLogger(log), layers.WithSink(sinks))
	if err != nil {
		return err
	}
	defer link.Close()

	if hub != nil {
		hub.Stats = func() any { return link.Stats() }
		go func() {
			if err := hub.Serve(ctx, cfg.Telemetry.Addr); err != nil {
				log.Error("telemetry server failed", "err", err)
			}
		}()
	}

	prefix, err := cfg.TUN.Prefix(cfg.MACLayer.Address)
	if err != nil {
		return err
	}
	br := iface.NewBridge(link, prefix.Addr(), log)
	if cfg.TUN.Bridge {
		tun, err := iface.OpenTUN(prefix, log)
		if err != nil {
			return err
		}
		defer tun.Close()
		br.Attach(tun)
	}
	if cfg.TUN.Capture != "" {
		f, err := os.Create(cfg.TUN.Capture)
		if err != nil {
			return err
		}
		defer f.Close()
		c, err := iface.NewCapture(f)
		if err != nil {
			return err
		}
		br.Record(c)
	}

	n := &node{cfg: cfg, link: link, bridge: br, log: log, output: output}
	ctx, cancel := context.WithCancel(ctx)
	workers := async.Gather0(
		async.Job(func() {
			if err := br.Run(ctx); err != nil && !errors.Is(err, layers.ErrClosed) {
				log.Warn("bridge stopped", "err", err)
			}
		}),
		async.Job(func() { n.storeFiles(ctx) }),
		async.Job(func() { n.countCoded(ctx) }),
	)
	defer func() {
		cancel()
		<-workers
	}()

	fmt.Printf("Station %d (%v) running, type e to exit\n", cfg.MACLayer.Address, prefix)
	lines := async.Lines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-link.DeadSignal():
			n.stopPing()
			return layers.ErrLinkDead
		case line, ok := <-lines:
			if !ok {
				n.stopPing()
				return nil
			}
			args := strings.Fields(line)
			if len(args) == 0 {
				continue
			}
			if args[0] == "e" {
				n.stopPing()
				return nil
			}
			if err := n.exec(ctx, args); err != nil {
				fmt.Printf("%s: %v\n", args[0], err)
			}
		}
	}
}
