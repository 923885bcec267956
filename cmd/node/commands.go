package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/atomic"
	"golang.org/x/exp/rand"

	"Athernet/internel/syncutil"
	"Athernet/internel/utils"
	"Athernet/pkg/config"
	"Athernet/pkg/iface"
	"Athernet/pkg/layers"
)

var errUsage = errors.New("wrong usage")

type node struct {
	cfg    *config.Config
	link   *layers.Link
	bridge *iface.Bridge
	log    *slog.Logger
	output string

	coded atomic.Uint64

	mu         syncutil.Mutex
	pingCancel context.CancelFunc
	pingDone   <-chan struct{}
}

func (n *node) exec(ctx context.Context, args []string) error {
	switch args[0] {
	case "r":
		if len(args) != 3 {
			return errUsage
		}
		num, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		length, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		return n.randomTest(num, length)
	case "s":
		if len(args) != 2 {
			return errUsage
		}
		return n.sendFile(ctx, args[1])
	case "ping":
		return n.ping(ctx, args[1:])
	case "stats":
		fmt.Printf("%+v coded=%d\n", n.link.Stats(), n.coded.Load())
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

// randomTest queues num coded frames of random bits.
func (n *node) randomTest(num, length int) error {
	if num <= 0 || length <= 0 || length > n.link.MaxPayload() {
		return fmt.Errorf("%w: need 0 < len <= %d", errUsage, n.link.MaxPayload())
	}
	r := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	for range num {
		bits := make([]bool, length)
		for i := range bits {
			bits[i] = r.Intn(2) == 1
		}
		if err := n.link.SendCoded(bits); err != nil {
			return err
		}
	}
	fmt.Printf("Queued %d coded frames of %d bits\n", num, length)
	return nil
}

func (n *node) countCoded(ctx context.Context) {
	for {
		bits, err := n.link.ReceiveCoded(ctx)
		if err != nil {
			return
		}
		count := n.coded.Inc()
		n.log.Debug("coded frame", "bits", len(bits), "count", count)
	}
}

func (n *node) sendFile(ctx context.Context, name string) error {
	data, err := utils.ReadBinary[byte](name)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := n.bridge.SendData(ctx, data); err != nil {
		return err
	}
	if err := n.link.Flush(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)
	fmt.Printf("Sent %d bytes in %v (%.0f bit/s)\n", len(data), elapsed.Round(time.Millisecond), float64(8*len(data))/elapsed.Seconds())
	return nil
}

// storeFiles writes every file received from the peer to the output path.
func (n *node) storeFiles(ctx context.Context) {
	for {
		data, err := n.bridge.Data(ctx)
		if err != nil {
			return
		}
		if err := utils.WriteBinary(n.output, data); err != nil {
			n.log.Error("store file", "err", err)
			continue
		}
		fmt.Printf("Received %d bytes into %s\n", len(data), n.output)
	}
}

// ping replaces any running ping with a new one in the background.
func (n *node) ping(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("ping", pflag.ContinueOnError)
	times := flags.IntP("count", "n", 10, "Number of requests.")
	interval := flags.Float64P("interval", "i", 1, "Seconds between requests.")
	length := flags.IntP("length", "l", 10, "Payload bytes.")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errUsage
	}
	dst, err := netip.ParseAddr(flags.Arg(0))
	if err != nil {
		return err
	}

	n.stopPing()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	n.mu.Lock()
	n.pingCancel, n.pingDone = cancel, done
	n.mu.Unlock()

	every := time.Duration(*interval * float64(time.Second))
	go func() {
		defer close(done)
		received := 0
		for seq := range *times {
			request, cancel := context.WithTimeout(ctx, max(every, 2*time.Second))
			rtt, err := n.bridge.Ping(request, dst, uint16(seq), *length)
			cancel()
			switch {
			case err == nil:
				received++
				fmt.Printf("Reply from %v: seq=%d time=%v\n", dst, seq, rtt.Round(time.Millisecond))
			case ctx.Err() != nil:
				return
			default:
				fmt.Printf("Request to %v seq=%d: %v\n", dst, seq, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(max(every-rtt, 0)):
			}
		}
		fmt.Printf("%d/%d replies from %v\n", received, *times, dst)
	}()
	return nil
}

func (n *node) stopPing() {
	n.mu.Lock()
	cancel, done := n.pingCancel, n.pingDone
	n.pingCancel, n.pingDone = nil, nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
