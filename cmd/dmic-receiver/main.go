// ABOUTME: Entry point for the D-MIC receiver
// ABOUTME: Binds the audio port, advertises via mDNS, and plays inbound PCM
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmic-audio/dmic-go/internal/config"
	"github.com/dmic-audio/dmic-go/internal/discovery"
	"github.com/dmic-audio/dmic-go/internal/meter"
	"github.com/dmic-audio/dmic-go/internal/playback"
	"github.com/dmic-audio/dmic-go/internal/receiver"
	"github.com/dmic-audio/dmic-go/internal/ui"
	"github.com/dmic-audio/dmic-go/internal/version"
)

var (
	port        = flag.Int("port", receiver.DefaultPort, "UDP port to listen on")
	rate        = flag.Int("rate", receiver.DefaultSampleRate, "Playout sample rate in Hz")
	name        = flag.String("name", "", "Receiver friendly name (default: hostname-dmic)")
	configPath  = flag.String("config", "", "Optional yaml config file")
	noAdvertise = flag.Bool("no-advertise", false, "Skip mDNS advertisement")
	logFile     = flag.String("log-file", "dmic-receiver.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s receiver %s\n", version.Product, version.Version)
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
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	listenPort := *port
	if listenPort == 0 {
		listenPort = cfg.Network.Port
	}

	receiverName := *name
	if receiverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		receiverName = fmt.Sprintf("%s-dmic", hostname)
	}

	session := receiver.New(receiver.Config{
		Provider:    playback.NewOtoProvider(nil),
		SampleRate:  *rate,
		MaxDatagram: cfg.Network.MaxDatagram,
		Meter:       meter.NewWithOptions(cfg.Meter.Norm, cfg.Meter.Stride),
	})

	// The receiver listens from launch; senders expect it to be there.
	if err := session.Start(listenPort); err != nil {
		log.Fatalf("Failed to start receiver: %v", err)
	}

	var disc *discovery.Manager
	if !*noAdvertise {
		disc = discovery.NewManager(discovery.Config{
			ServiceName: receiverName,
			Port:        listenPort,
		})
		if err := disc.Advertise(); err != nil {
			log.Printf("mDNS advertisement failed: %v", err)
		}
	}

	controls := ui.Controls{
		Start: func() error {
			return session.Start(listenPort)
		},
		Stop: func() error {
			return session.Stop()
		},
		Status: func() ui.Status {
			stats := session.Stats()
			status := ui.Status{
				State:   session.State().String(),
				Level:   session.Level(),
				Detail:  fmt.Sprintf(":%d @ %dHz mono", listenPort, *rate),
				Packets: stats.Packets,
				Bytes:   stats.Bytes,
				Errors:  stats.Dropped + stats.WriteErrors,
			}
			if err := session.Err(); err != nil {
				status.Detail = err.Error()
			}
			return status
		},
	}

	if useTUI {
		prog := ui.Run(fmt.Sprintf("%s Receiver %s", version.Product, version.Version), controls)
		if _, err := prog.Run(); err != nil {
			log.Fatalf("TUI failed: %v", err)
		}
	} else {
		log.Printf("Starting %s receiver %s (%s) on :%d", version.Product, version.Version, receiverName, listenPort)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Printf("Shutdown signal received")
	}

	if disc != nil {
		disc.Stop()
	}
	if err := session.Stop(); err != nil && err != receiver.ErrNotActive {
		log.Printf("Error stopping session: %v", err)
	}

	log.Printf("Receiver stopped")
}
