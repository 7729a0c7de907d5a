// ABOUTME: Entry point for the D-MIC sender
// ABOUTME: Parses CLI flags, picks a capture backend, and streams to the receiver
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmic-audio/dmic-go/internal/capture"
	"github.com/dmic-audio/dmic-go/internal/config"
	"github.com/dmic-audio/dmic-go/internal/discovery"
	"github.com/dmic-audio/dmic-go/internal/meter"
	"github.com/dmic-audio/dmic-go/internal/sender"
	"github.com/dmic-audio/dmic-go/internal/ui"
	"github.com/dmic-audio/dmic-go/internal/version"
)

var (
	receiverAddr = flag.String("receiver", "", "Receiver host (skip mDNS discovery)")
	port         = flag.Int("port", sender.DefaultPort, "Receiver UDP port")
	configPath   = flag.String("config", "", "Optional yaml config file")
	tone         = flag.Bool("tone", false, "Stream a 440Hz test tone instead of the microphone")
	logFile      = flag.String("log-file", "dmic-sender.log", "Log file path")
	noTUI        = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	autoStart    = flag.Bool("start", false, "Start streaming immediately (with -no-tui)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s sender %s\n", version.Product, version.Version)
		return
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var provider capture.Provider
	if *tone {
		provider = capture.NewToneProvider(cfg.Audio.Rates)
		log.Printf("Using tone capture backend")
	} else {
		provider = capture.NewMalgoProvider(cfg.Audio.Rates, nil)
	}

	session := sender.New(sender.Config{
		Provider:  provider,
		BlockSize: cfg.Audio.BlockSize,
		Retries:   cfg.Negotiate.Retries,
		Backoff:   cfg.Negotiate.Backoff,
		Meter:     meter.NewWithOptions(cfg.Meter.Norm, cfg.Meter.Stride),
	})

	// Find the receiver: manual address wins, otherwise browse mDNS.
	host := *receiverAddr
	targetPort := *port
	if targetPort == 0 {
		targetPort = cfg.Network.Port
	}
	if host == "" {
		log.Printf("Browsing for receivers...")
		disc := discovery.NewManager(discovery.Config{})
		if err := disc.Browse(); err != nil {
			log.Fatalf("Failed to start discovery: %v", err)
		}

		select {
		case rcv := <-disc.Receivers():
			host = rcv.Host
			targetPort = rcv.Port
			log.Printf("Discovered receiver %s at %s:%d", rcv.Name, host, targetPort)
		case <-time.After(10 * time.Second):
			disc.Stop()
			log.Fatalf("No receiver found after 10 seconds; use -receiver to set one manually")
		}
		disc.Stop()
	}

	controls := ui.Controls{
		Start: func() error {
			return session.Start(host, targetPort)
		},
		Stop: func() error {
			return session.Stop()
		},
		Status: func() ui.Status {
			stats := session.Stats()
			status := ui.Status{
				State:   session.State().String(),
				Level:   session.Level(),
				Packets: stats.Packets,
				Bytes:   stats.Bytes,
				Errors:  stats.SendErrors + stats.ReadErrors,
			}
			if format := session.Format(); format.SampleRate > 0 {
				status.Detail = fmt.Sprintf("%s @ %dHz mono", session.Remote(), format.SampleRate)
			}
			if err := session.Err(); err != nil {
				status.Detail = err.Error()
			}
			return status
		},
	}

	if useTUI {
		prog := ui.Run(fmt.Sprintf("%s Sender %s", version.Product, version.Version), controls)
		if _, err := prog.Run(); err != nil {
			log.Fatalf("TUI failed: %v", err)
		}
	} else {
		log.Printf("Starting %s sender %s -> %s:%d", version.Product, version.Version, host, targetPort)

		if *autoStart {
			if err := session.Start(host, targetPort); err != nil {
				log.Fatalf("Failed to start streaming: %v", err)
			}
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Printf("Shutdown signal received")
	}

	if err := session.Stop(); err != nil && err != sender.ErrNotActive {
		log.Printf("Error stopping session: %v", err)
	}

	log.Printf("Sender stopped")
}
