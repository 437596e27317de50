// Package network hands out the IPv4 addresses the action dispatcher binds
// a package's container to, from a single preallocated CIDR range.
package network

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// IPPool allocates and releases IPv4 addresses out of a fixed CIDR range,
// the one shared resource the action dispatcher holds exclusively during
// Create. A successful allocation is owned by the installed entry until
// removal returns it.
type IPPool struct {
	mu        sync.Mutex
	network   *net.IPNet
	gateway   uint32
	broadcast uint32
	next      uint32
	leased    map[uint32]bool
}

// NewIPPool parses cidr (e.g. "10.88.0.0/16") and reserves the network and
// broadcast addresses plus .1 (conventionally the bridge gateway) so they
// are never handed to a package.
func NewIPPool(cidr string) (*IPPool, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("network: parsing pool cidr %q: %w", cidr, err)
	}
	if ip4 := ipnet.IP.To4(); ip4 == nil {
		return nil, fmt.Errorf("network: pool cidr %q is not IPv4", cidr)
	}

	base := binary.BigEndian.Uint32(ipnet.IP.To4())
	ones, bits := ipnet.Mask.Size()
	size := uint32(1) << uint(bits-ones)
	broadcast := base + size - 1
	gateway := base + 1

	return &IPPool{
		network:   ipnet,
		gateway:   gateway,
		broadcast: broadcast,
		next:      gateway + 1,
		leased:    make(map[uint32]bool),
	}, nil
}

// Allocate leases the next free address in the pool, wrapping around to
// the start of the usable range once it reaches the broadcast address.
// Fails with no free addresses left, which the dispatcher's Create
// surfaces as a Network-kind error.
func (p *IPPool) Allocate() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.gateway + 1
	for n := start; n < p.broadcast; n++ {
		addr := p.next
		p.next++
		if p.next >= p.broadcast {
			p.next = start
		}
		if p.leased[addr] {
			continue
		}
		p.leased[addr] = true
		return intToIP(addr).String(), nil
	}
	return "", fmt.Errorf("network: ip pool %s exhausted", p.network)
}

// Release returns ip to the pool so a later Allocate can reuse it, called
// on package removal.
func (p *IPPool) Release(ip string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return
	}
	delete(p.leased, binary.BigEndian.Uint32(parsed))
}

// Allocated reports how many addresses are currently leased, for the
// metrics collector's IPPoolAllocatedTotal gauge.
func (p *IPPool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

func intToIP(n uint32) net.IP {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return net.IP(b)
}
