// Package lan makes a board reachable on the local network: it
// advertises the server over mDNS and picks the address worth putting
// in a share link.
package lan

import (
	"fmt"
	"os"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service boards advertise and browse for.
const ServiceType = "_liveboard._tcp"

// Advertiser keeps a board's mDNS announcement alive.
type Advertiser struct {
	srv    *mdns.Server
	logger *zap.Logger
}

// Advertise announces this host's board on the local network so other
// machines can find it without knowing its address.
func Advertise(port int, logger *zap.Logger) (*Advertiser, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("resolve hostname: %w", err)
	}

	service, err := mdns.NewMDNSService(
		host,
		ServiceType,
		"", // default ".local" domain
		"", // default OS hostname
		port,
		nil, // auto-detect IPs
		[]string{"liveboard"},
	)
	if err != nil {
		return nil, fmt.Errorf("create mDNS service: %w", err)
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mDNS server: %w", err)
	}

	logger.Info("advertising on the local network",
		zap.String("service", ServiceType),
		zap.String("instance", host),
		zap.Int("port", port))
	return &Advertiser{srv: srv, logger: logger}, nil
}

func (a *Advertiser) Shutdown() {
	if err := a.srv.Shutdown(); err != nil {
		a.logger.Warn("mDNS shutdown failed", zap.Error(err))
	}
}

// Board is another liveboard instance found on the network.
type Board struct {
	Host string
	Addr string
}

// Discover browses the local network for boards. It blocks for the
// duration of the mDNS query.
func Discover() ([]Board, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan struct{})

	var boards []Board
	go func() {
		defer close(done)
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			boards = append(boards, Board{
				Host: e.Host,
				Addr: fmt.Sprintf("%s:%d", e.AddrV4, e.Port),
			})
		}
	}()

	err := mdns.Lookup(ServiceType, entries)
	close(entries)
	<-done
	return boards, err
}
