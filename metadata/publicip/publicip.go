/*
Package publicip discovers the public IPv4 of the host the console service
runs on. It is the fallback for hosts that are not cloud instances (e.g. an
engineer's development machine), where no cloud metadata endpoint answers.
*/
package publicip

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shellboxhq/shellbox/utils"
)

// Endpoints are the HTTP services queried for the host's public IP, in
// order. They are declared as a var for testing convenience.
var Endpoints = []string{
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
}

// resolverAddress is the OpenDNS resolver used as a last resort when none
// of the HTTP endpoints are reachable. Resolving myip.opendns.com against
// it returns the caller's own address.
var resolverAddress = "resolver1.opendns.com:53"

// Get returns the public IPv4 of this host. It tries the HTTP endpoints in
// order and falls back to an OpenDNS lookup if none of them answer with a
// parseable address.
func Get(ctx context.Context) (net.IP, error) {
	client := resty.New().SetTimeout(3 * time.Second)

	for _, endpoint := range Endpoints {
		resp, err := client.R().SetContext(ctx).Get(endpoint)
		if err != nil || resp.StatusCode() != http.StatusOK {
			continue
		}

		ip := net.ParseIP(strings.TrimSpace(resp.String()))
		if ip == nil {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}

	return resolveWithOpenDNS(ctx)
}

func resolveWithOpenDNS(ctx context.Context) (net.IP, error) {
	resolver := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: 3 * time.Second}
			return d.DialContext(ctx, network, resolverAddress)
		},
	}

	ips, err := resolver.LookupIP(ctx, "ip4", "myip.opendns.com")
	if err != nil {
		return nil, utils.MakeError("failed to resolve public IP through OpenDNS: %s", err)
	}
	if len(ips) == 0 {
		return nil, utils.MakeError("OpenDNS returned no addresses for myip.opendns.com")
	}

	return ips[0].To4(), nil
}
