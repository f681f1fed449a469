// Package discovery implements mDNS/DNS-SD discovery for handover peers that
// emulate RFCOMM over TCP.
//
// A listening peer advertises one instance of _nfcho._tcp per local address.
// Instance name format: nfcho-<address without separators>.
// TXT records include: addr (Bluetooth address the peer wrote to its tag),
// svc (service UUID) and optionally name (device name).
//
// A dialing peer only knows the address it read from the tag, so it browses
// for an instance whose addr and svc match and connects to its host and port.
// StaticResolver provides the same lookup from a fixed table for tests and
// networks without multicast.
package discovery
