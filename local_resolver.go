package noip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first global unicast address
// of the given family assigned to the named interface.
//
// This is mostly useful for IPv6, where the address on the interface is usually the public one.
// Loopback, link-local and private addresses are skipped.
func InterfaceResolver(iface string, family Family) Resolver {
	return interfaceResolver{iface: iface, family: family}
}

type interfaceResolver struct {
	iface  string
	family Family
}

func (r interfaceResolver) Resolve(ctx context.Context) (string, error) {
	addr, err := r.lookup()
	if err != nil {
		return "", &ResolveError{Provider: ProviderName("interface " + r.iface), Family: r.family, Err: err}
	}
	return addr.String(), nil
}

func (r interfaceResolver) lookup() (netip.Addr, error) {
	iface, err := net.InterfaceByName(r.iface)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error getting interface %s by name: %w", r.iface, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error looking up addresses for interface %s: %w", r.iface, err)
	}
	// addr: ip+net:192.168.86.253/24
	// addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
	// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
	var parseErrors []error
	for _, a := range addrs {
		prefix, err := netip.ParsePrefix(a.String())
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("error parsing local ip %s for interface %s: %s", a.String(), r.iface, err))
			continue
		}
		ip := prefix.Addr().Unmap()
		if !usable(ip, r.family) {
			continue
		}
		return ip, nil
	}
	parseErrors = append(parseErrors, fmt.Errorf("no public %s address on interface %s", r.family, r.iface))
	return netip.Addr{}, errors.Join(parseErrors...)
}

func usable(ip netip.Addr, family Family) bool {
	if family == IPv6 && !ip.Is6() || family != IPv6 && !ip.Is4() {
		return false
	}
	return ip.IsGlobalUnicast() && !ip.IsPrivate()
}
