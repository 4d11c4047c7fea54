package addr

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

const (
	openDNSServer = "208.67.222.222:53" // resolver1.opendns.com
	openDNSMyIP   = "myip.opendns.com."
)

// DNSResolver asks a resolver that echoes the querying address back, which
// yields the public address even behind NAT.
type DNSResolver struct {
	Server string
	Name   string
	client *dns.Client
}

func NewDNSResolver() *DNSResolver {
	return &DNSResolver{
		Server: openDNSServer,
		Name:   openDNSMyIP,
		client: &dns.Client{Net: "udp", Timeout: 5 * time.Second},
	}
}

func (r *DNSResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	message := new(dns.Msg)
	message.SetQuestion(dns.Fqdn(r.Name), dns.TypeA)
	message.RecursionDesired = false

	response, _, err := r.client.ExchangeContext(ctx, message, r.Server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("querying %s for %s: %w", r.Server, r.Name, err)
	}
	if response.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("querying %s for %s: %s", r.Server, r.Name, dns.RcodeToString[response.Rcode])
	}

	for _, answer := range response.Answer {
		if record, ok := answer.(*dns.A); ok {
			return toIPv4(record.A)
		}
	}

	return netip.Addr{}, fmt.Errorf("no A record for %s in answer from %s", r.Name, r.Server)
}
