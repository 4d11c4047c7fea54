// Package addr determines the IPv4 address the machine should be
// registered under.
package addr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// routeProbeTarget is never contacted: connecting a UDP socket only asks the
// kernel to pick a route and a local address for it.
const routeProbeTarget = "10.255.255.255:1"

var ErrNotIPv4 = errors.New("IPv6 addresses are not currently supported")

// Fixed always returns the operator supplied address.
type Fixed netip.Addr

func (f Fixed) Resolve(context.Context) (netip.Addr, error) {
	return netip.Addr(f), nil
}

// RouteResolver reports the local address of the outbound route.
type RouteResolver struct {
	Target string
}

func NewRouteResolver() *RouteResolver {
	return &RouteResolver{Target: routeProbeTarget}
}

func (r *RouteResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", r.Target)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("probing route to %s: %w", r.Target, err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address %s", conn.LocalAddr())
	}

	return toIPv4(local.IP)
}

func toIPv4(ip net.IP) (netip.Addr, error) {
	v4 := ip.To4()
	if v4 == nil {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrNotIPv4, ip)
	}

	return netip.AddrFrom4([4]byte(v4)), nil
}

// Parse accepts only dotted-decimal IPv4.
func Parse(s string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrNotIPv4, s)
	}

	return ip, nil
}
