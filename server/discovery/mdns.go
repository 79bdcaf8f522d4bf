package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType は LAN 上で広告する mDNS サービス種別です。
const ServiceType = "_drawsync._tcp"

var ErrInvalidPort = errors.New("discovery: invalid port")

// Advertiser は mDNS でサーバーの所在を広告します。
type Advertiser struct {
	server *mdns.Server
}

// Advertise は instance 名で port を広告します。instance が空ならホスト名を使います。
func Advertise(instance string, port int, info []string) (*Advertiser, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("discovery: hostname: %w", err)
		}
		instance = host
	}
	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("discovery: create service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: start server: %w", err)
	}
	slog.Info("discovery: advertising", "instance", instance, "service", ServiceType, "port", port)
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Browse は timeout の間 LAN を探索し、見つかったサーバーの host:port を返します。
func Browse(timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan []string)
	go func() {
		var addrs []string
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			addrs = append(addrs, fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port))
		}
		done <- addrs
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	addrs := <-done
	if err != nil {
		return nil, fmt.Errorf("discovery: query: %w", err)
	}
	return addrs, nil
}
