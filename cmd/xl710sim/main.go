// xl710 transmit/receive data-path core
// https://github.com/ethermark/i40e
//
// Copyright (c) Ethermark Systems
// https://ethermark.dev
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command xl710sim drives an xl710.Trqpair against an in-process
// loopback device model: it wires the DMA allocator, register file,
// and upstream framing collaborators from spec.md §6 to software
// reference implementations instead of real hardware, transmits a
// batch of synthetic frames, and reports what came back through the
// receive ring.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"net/http"

	"github.com/ethermark/i40e/dma"
	"github.com/ethermark/i40e/internal/regio"
	"github.com/ethermark/i40e/xl710"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xl710sim",
		Short: "Drive an xl710 transmit/receive queue pair against a loopback device model",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		ringSize  int
		mtu       int
		frames    int
		frameSize int
		metrics   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send a batch of synthetic frames through a loopback ring pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd.Context(), runOpts{
				ringSize:  ringSize,
				mtu:       mtu,
				frames:    frames,
				frameSize: frameSize,
				metrics:   metrics,
			})
		},
	}

	cmd.Flags().IntVar(&ringSize, "ring-size", 64, "descriptor ring depth (power of two)")
	cmd.Flags().IntVar(&mtu, "mtu", 1500, "receive MTU")
	cmd.Flags().IntVar(&frames, "frames", 16, "number of synthetic frames to transmit")
	cmd.Flags().IntVar(&frameSize, "frame-size", 512, "size in bytes of each synthetic frame")
	cmd.Flags().StringVar(&metrics, "metrics-addr", "", "if set, serve Prometheus metrics at this address (e.g. :9710)")

	return cmd
}

type runOpts struct {
	ringSize  int
	mtu       int
	frames    int
	frameSize int
	metrics   string
}

func runSim(ctx context.Context, opts runOpts) error {
	log, err := xl710.NewLogger()
	if err != nil {
		return fmt.Errorf("xl710sim: building logger: %w", err)
	}
	defer log.Sync()

	cfg := xl710.Config{RingSize: opts.ringSize, MTU: opts.mtu}.WithDefaults()

	region := dma.NewRegion(0x1000, 64*1024*1024)
	rxRegs := regio.NewFile()
	txRegs := regio.NewFile()
	framing := &loopbackFraming{log: log}

	var unblocked int
	pair, err := xl710.NewTrqpair(cfg, region, rxRegs, txRegs, framing, nil, log, func() {
		unblocked++
		log.Info("xl710sim: tx ring unblocked")
	})
	if err != nil {
		return fmt.Errorf("xl710sim: building trqpair: %w", err)
	}

	if opts.metrics != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(pair.Collector())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.Info("xl710sim: serving metrics", zap.String("addr", opts.metrics))
			if err := http.ListenAndServe(opts.metrics, mux); err != nil {
				log.Warn("xl710sim: metrics server exited", zap.Error(err))
			}
		}()
	}

	pair.Start()

	device := newLoopbackDevice(rxRegs, txRegs, cfg.RingSize, log)
	stop := make(chan struct{})
	go device.run(region, stop)
	defer close(stop)

	sent := 0
	for i := 0; i < opts.frames; i++ {
		payload := syntheticFrame(opts.frameSize, i)
		frame := xl710.NewFrameChain([][]byte{payload})

		if rejected, err := pair.Send(frame); err != nil {
			log.Warn("xl710sim: send rejected", zap.Int("index", i), zap.Error(err))
			_ = rejected
			continue
		}
		sent++
	}
	log.Info("xl710sim: frames submitted", zap.Int("sent", sent), zap.Int("requested", opts.frames))

	deadline := time.Now().Add(2 * time.Second)
	received := 0
	for time.Now().Before(deadline) && received < sent {
		pair.Reclaim()
		delivered := pair.Poll(xl710.QuotaUnlimited)
		for _, f := range delivered {
			received++
			if f.Loan != nil {
				f.Loan.Free()
			}
		}
		if len(delivered) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}

	log.Info("xl710sim: run complete", zap.Int("sent", sent), zap.Int("received", received), zap.Int("unblock_events", unblocked))

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return pair.Shutdown(shutdownCtx)
}

func syntheticFrame(size, seq int) []byte {
	if size < 34 {
		size = 34
	}
	b := make([]byte, size)
	// Destination MAC, source MAC, EtherType IPv4.
	copy(b[0:6], []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01})
	copy(b[6:12], []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02})
	b[12], b[13] = 0x08, 0x00
	// Minimal IPv4 header: version/IHL, total length, protocol UDP.
	b[14] = 0x45
	totalLen := size - 14
	b[16], b[17] = byte(totalLen>>8), byte(totalLen)
	b[23] = 17 // UDP
	b[26+(seq%8)] = byte(seq)
	return b
}
