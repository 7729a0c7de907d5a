// ABOUTME: mDNS discovery of the audio receiver
// ABOUTME: The receiver advertises itself; the sender browses instead of typing an IP
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

// serviceType is the mDNS service the receiver registers under.
const serviceType = "_dmic._udp"

// Logf receives discovery log output. A nil Logf falls back to the
// standard logger.
type Logf func(format string, args ...any)

// Config holds discovery configuration.
type Config struct {
	ServiceName string
	Port        int
	Logf        Logf
}

// Manager handles mDNS operations for one endpoint.
type Manager struct {
	config    Config
	logf      Logf
	ctx       context.Context
	cancel    context.CancelFunc
	receivers chan *ReceiverInfo
}

// ReceiverInfo describes a discovered receiver.
type ReceiverInfo struct {
	Name string
	Host string
	Port int
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	logf := config.Logf
	if logf == nil {
		logf = log.Printf
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:    config,
		logf:      logf,
		ctx:       ctx,
		cancel:    cancel,
		receivers: make(chan *ReceiverInfo, 10),
	}
}

// Advertise registers this receiver's audio port via mDNS.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		serviceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"proto=pcm16le"},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logf("discovery: advertising %s on port %d (%s)", m.config.ServiceName, m.config.Port, serviceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for receivers on the LAN.
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop repeatedly queries until the manager stops.
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				receiver := &ReceiverInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				m.logf("discovery: found receiver %s at %s:%d", receiver.Name, receiver.Host, receiver.Port)

				select {
				case m.receivers <- receiver:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: serviceType,
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// Receivers returns the channel of discovered receivers.
func (m *Manager) Receivers() <-chan *ReceiverInfo {
	return m.receivers
}

// Stop stops the discovery manager.
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns the non-loopback IPv4 addresses of up interfaces.
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
