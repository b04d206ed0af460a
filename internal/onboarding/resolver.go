package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// Resolver finds the IP address a newly joined device answers on.
type Resolver interface {
	Resolve(ctx context.Context, ssid string) (string, error)
}

// StaticResolver answers every lookup with the same address. ESP8266
// access points serve on 192.168.4.1 by default.
type StaticResolver struct {
	Address string
}

// Resolve returns the configured address.
func (r StaticResolver) Resolve(context.Context, string) (string, error) {
	if r.Address == "" {
		return "", ErrDeviceNotFound
	}
	return r.Address, nil
}

// Resolvers tries each resolver in turn and returns the first address
// found.
type Resolvers []Resolver

// Resolve returns the first successful answer, or the last error.
func (rs Resolvers) Resolve(ctx context.Context, ssid string) (string, error) {
	err := ErrDeviceNotFound
	for _, r := range rs {
		addr, rerr := r.Resolve(ctx, ssid)
		if rerr == nil {
			return addr, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		err = rerr
	}
	return "", err
}

// MDNSResolver browses for Service on the local network and matches the
// device by instance name.
type MDNSResolver struct {
	Service string
	Domain  string
	Timeout time.Duration
}

// NewMDNSResolver creates a resolver for service, e.g. "_http._tcp".
func NewMDNSResolver(service string, timeout time.Duration) *MDNSResolver {
	return &MDNSResolver{Service: service, Domain: "local.", Timeout: timeout}
}

// Resolve browses until an instance matching ssid answers with an IPv4
// address or the timeout passes.
func (r *MDNSResolver) Resolve(ctx context.Context, ssid string) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("creating mDNS resolver: %w", err)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	browseCtx, stop := context.WithCancel(ctx)
	defer stop()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan string, 1)
	go func() {
		for {
			select {
			case <-browseCtx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if addr, ok := matchEntry(entry, ssid); ok {
					select {
					case found <- addr:
					default:
					}
					stop()
				}
			}
		}
	}()

	if err := resolver.Browse(browseCtx, r.Service, r.Domain, entries); err != nil {
		return "", fmt.Errorf("browsing %s: %w", r.Service, err)
	}

	select {
	case addr := <-found:
		return addr, nil
	case <-browseCtx.Done():
	}
	select {
	case addr := <-found:
		return addr, nil
	default:
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, ssid)
}

// matchEntry accepts entries whose instance or host name contains ssid,
// ignoring case, and returns their first IPv4 address.
func matchEntry(entry *zeroconf.ServiceEntry, ssid string) (string, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return "", false
	}
	want := strings.ToLower(ssid)
	if !strings.Contains(strings.ToLower(entry.Instance), want) &&
		!strings.Contains(strings.ToLower(entry.HostName), want) {
		return "", false
	}
	return entry.AddrIPv4[0].String(), true
}
