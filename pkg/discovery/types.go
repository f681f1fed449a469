package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Service type constants for mDNS.
const (
	// ServiceType is the service type advertised by listening peers.
	ServiceType = "_nfcho._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// InstancePrefix prefixes every instance name.
	InstancePrefix = "nfcho-"
)

// TXT record key constants.
const (
	TXTKeyAddress = "addr" // Bluetooth address (XX:XX:XX:XX:XX:XX)
	TXTKeyService = "svc"  // Service UUID
	TXTKeyName    = "name" // Device name (optional)
)

// Timing constants.
const (
	// ResolveTimeout bounds a lookup when the caller's context has no deadline.
	ResolveTimeout = 10 * time.Second

	// DefaultTTL is the DNS record TTL for advertisements.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrNoAddresses         = errors.New("service has no addresses")
)

// PeerInfo is what a listening peer advertises.
type PeerInfo struct {
	// Address is the Bluetooth address the peer writes into its handshake.
	Address string

	// ServiceID is the RFCOMM service UUID being listened on.
	ServiceID uuid.UUID

	// Name is the device name (optional).
	Name string

	// Port is the TCP port accepting connections.
	Port uint16
}

// PeerService is a discovered listening peer.
type PeerService struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the target host name.
	Host string

	// Port is the TCP port.
	Port uint16

	// Addresses holds the resolved IP addresses.
	Addresses []string

	// Address is the Bluetooth address from TXT.
	Address string

	// ServiceID is the service UUID from TXT.
	ServiceID uuid.UUID

	// Name is the device name from TXT.
	Name string
}

// Endpoint returns host:port for dialing, preferring a resolved IP address
// over the host name.
func (s *PeerService) Endpoint() (string, error) {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	if host == "" {
		return "", ErrNoAddresses
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port))), nil
}
