package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"
	"github.com/google/uuid"
)

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu sync.Mutex

	// Active services keyed by upper-case address
	servers map[string]*zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// Advertise starts advertising a listening peer.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *PeerInfo) error {
	instanceName := InstanceName(info.Address)
	if err := ValidateInstanceName(instanceName); err != nil {
		return err
	}
	if info.Port == 0 {
		return fmt.Errorf("%w: port", ErrMissingRequired)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := strings.ToUpper(info.Address)
	if server, exists := a.servers[key]; exists {
		server.Shutdown()
		delete(a.servers, key)
	}

	txtStrings := TXTRecordsToStrings(EncodePeerTXT(info))

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		Domain,
		int(info.Port),
		txtStrings,
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register peer service: %w", err)
	}

	a.servers[key] = server
	return nil
}

// StopAdvertising stops the advertisement for an address.
func (a *MDNSAdvertiser) StopAdvertising(address string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := strings.ToUpper(address)
	server, exists := a.servers[key]
	if !exists {
		return ErrNotFound
	}

	server.Shutdown()
	delete(a.servers, key)
	return nil
}

// StopAll stops all advertisements.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, server := range a.servers {
		server.Shutdown()
		delete(a.servers, key)
	}
}

// entrySource streams raw browse results into out until ctx is done.
type entrySource func(ctx context.Context, out chan<- *ServiceEntry) error

// MDNSBrowser implements the Browser interface using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
	source entrySource

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	b := &MDNSBrowser{config: config}
	b.source = b.browseZeroconf
	return b
}

// Browse streams listening peers. Services are aggregated by instance name:
// addresses from multiple interfaces are combined into a single entry.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *PeerService, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *PeerService)
	entries := make(chan *ServiceEntry)

	go func() {
		defer close(out)

		services := make(map[string]*PeerService)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, err := entry.ToPeerService()
				if err != nil {
					continue
				}

				existing, found := services[svc.InstanceName]
				if found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.InstanceName] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(entries)
		_ = b.source(ctx, entries)
	}()

	return out, nil
}

// Resolve browses until a peer with the given address and service appears.
// A context without deadline is bounded by ResolveTimeout.
func (b *MDNSBrowser) Resolve(ctx context.Context, address string, serviceID uuid.UUID) (*PeerService, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ResolveTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case svc, ok := <-results:
			if !ok {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
			}
			if svc.Matches(address, serviceID) {
				return svc, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Stop stops all active browsing operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

// browseZeroconf is the production entry source.
func (b *MDNSBrowser) browseZeroconf(ctx context.Context, out chan<- *ServiceEntry) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	fctx, stop := context.WithCancel(ctx)
	defer stop()

	forwarded := make(chan struct{})
	go func(removed <-chan *zeroconf.ServiceEntry) {
		defer close(forwarded)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				select {
				case out <- fromZeroconf(entry):
				case <-fctx.Done():
					return
				}
			case _, ok := <-removed:
				if !ok {
					removed = nil
				}
			case <-fctx.Done():
				return
			}
		}
	}(removed)

	err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	if err == nil {
		<-ctx.Done()
	}
	stop()
	<-forwarded
	return err
}

// fromZeroconf converts a zeroconf entry to a ServiceEntry.
func fromZeroconf(entry *zeroconf.ServiceEntry) *ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &ServiceEntry{
		Instance: entry.Instance,
		Service:  ServiceType,
		Domain:   Domain,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

// interfaces returns the network interfaces to use. Returns nil to use all
// interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}

	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, new []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range new {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// Ensure MDNSAdvertiser implements Advertiser interface.
var _ Advertiser = (*MDNSAdvertiser)(nil)

// Ensure MDNSBrowser implements Browser interface.
var _ Browser = (*MDNSBrowser)(nil)
