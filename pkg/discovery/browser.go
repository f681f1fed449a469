package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Resolver finds the network endpoint of a listening peer by its Bluetooth
// address and service UUID.
type Resolver interface {
	Resolve(ctx context.Context, address string, serviceID uuid.UUID) (*PeerService, error)
}

// Browser provides mDNS service browsing capabilities.
type Browser interface {
	Resolver

	// Browse streams listening peers until ctx is cancelled.
	Browse(ctx context.Context) (<-chan *PeerService, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// ServiceEntry is a raw mDNS result, decoupled from the mDNS library.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToPeerService converts a ServiceEntry to PeerService.
func (e *ServiceEntry) ToPeerService() (*PeerService, error) {
	info, err := DecodePeerTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}

	return &PeerService{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    e.Addrs,
		Address:      info.Address,
		ServiceID:    info.ServiceID,
		Name:         info.Name,
	}, nil
}

// Matches reports whether the service is the given peer.
func (s *PeerService) Matches(address string, serviceID uuid.UUID) bool {
	return strings.EqualFold(s.Address, address) && s.ServiceID == serviceID
}

// StaticResolver resolves peers from a fixed table keyed by address.
// It is safe for concurrent use.
type StaticResolver struct {
	mu    sync.RWMutex
	peers map[string]*PeerService
}

// NewStaticResolver creates an empty StaticResolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{peers: make(map[string]*PeerService)}
}

// Add registers endpoint (host:port) for a peer.
func (r *StaticResolver) Add(address string, serviceID uuid.UUID, host string, port uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[strings.ToUpper(address)] = &PeerService{
		InstanceName: InstanceName(address),
		Host:         host,
		Port:         port,
		Address:      strings.ToUpper(address),
		ServiceID:    serviceID,
	}
}

// Remove forgets a peer.
func (r *StaticResolver) Remove(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, strings.ToUpper(address))
}

// Resolve returns the registered peer or ErrNotFound.
func (r *StaticResolver) Resolve(_ context.Context, address string, serviceID uuid.UUID) (*PeerService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.peers[strings.ToUpper(address)]
	if !ok || svc.ServiceID != serviceID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	cp := *svc
	return &cp, nil
}

var _ Resolver = (*StaticResolver)(nil)

// ChainResolver tries each resolver in order and returns the first match.
type ChainResolver []Resolver

// Resolve returns the first successful resolution, or the last error.
func (c ChainResolver) Resolve(ctx context.Context, address string, serviceID uuid.UUID) (*PeerService, error) {
	err := fmt.Errorf("%w: %s", ErrNotFound, address)
	for _, r := range c {
		svc, rerr := r.Resolve(ctx, address, serviceID)
		if rerr == nil {
			return svc, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err = rerr
	}
	return nil, err
}

var _ Resolver = ChainResolver(nil)
