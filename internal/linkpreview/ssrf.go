package linkpreview

import (
	"fmt"
	"net"
)

// cgnatBlock is the shared address space (100.64.0.0/10) used by
// carrier-grade NAT, which private-range checks alone would miss.
var cgnatBlock = mustParseCIDR("100.64.0.0/10")

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// guardIP rejects any address an SSRF-hardened fetcher must not reach:
// loopback, private, link-local, unspecified, multicast, CGNAT, and
// the cloud metadata address, including IPv4-mapped IPv6 forms.
func guardIP(ip net.IP) error {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast() {
		return fmt.Errorf("address %s is not publicly routable", ip)
	}
	if cgnatBlock.Contains(ip) {
		return fmt.Errorf("address %s is in the CGNAT range", ip)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("address %s is a cloud metadata endpoint", ip)
	}
	return nil
}

// guardHost resolves host and rejects it if any resolved address fails
// guardIP -- resolution happens once per fetch, immediately before
// connecting, to minimize the DNS-rebind window.
func guardHost(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		return guardIP(ip)
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("no addresses for %s", host)
	}
	for _, ip := range addrs {
		if err := guardIP(ip); err != nil {
			return err
		}
	}
	return nil
}
