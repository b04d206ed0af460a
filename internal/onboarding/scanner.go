package onboarding

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Network is a Wi-Fi network seen by a scan. SignalStrength is a
// percentage.
type Network struct {
	SSID           string `json:"ssid"`
	SignalStrength int    `json:"signalStrength"`
	IsConnected    bool   `json:"isConnected"`
}

// Scanner gives access to the Wi-Fi radio.
type Scanner interface {
	Scan(ctx context.Context) ([]Network, error)
	Connect(ctx context.Context, ssid, password string) error
}

// SimulatedScanner fabricates a neighbourhood of networks. Scans and
// connects take Delay, and connecting succeeds for any non-empty password.
type SimulatedScanner struct {
	Delay    time.Duration
	Networks []Network
}

// NewSimulatedScanner returns a scanner that sees two plugs named after
// prefix and one household network.
func NewSimulatedScanner(prefix string, delay time.Duration) *SimulatedScanner {
	return &SimulatedScanner{
		Delay: delay,
		Networks: []Network{
			{SSID: prefix + "_A1B2C3", SignalStrength: 82},
			{SSID: prefix + "_D4E5F6", SignalStrength: 47},
			{SSID: "HomeNetwork", SignalStrength: 95, IsConnected: true},
		},
	}
}

// Scan returns the fabricated networks, strongest first.
func (s *SimulatedScanner) Scan(ctx context.Context) ([]Network, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	out := slices.Clone(s.Networks)
	slices.SortStableFunc(out, func(a, b Network) int { return b.SignalStrength - a.SignalStrength })
	return out, nil
}

// Connect succeeds when ssid is one of the fabricated networks.
func (s *SimulatedScanner) Connect(ctx context.Context, ssid, password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	if !slices.ContainsFunc(s.Networks, func(n Network) bool { return n.SSID == ssid }) {
		return fmt.Errorf("%w: %s", ErrNetworkNotFound, ssid)
	}
	return nil
}

func (s *SimulatedScanner) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsDevice reports whether ssid belongs to a plug with the given prefix.
func IsDevice(ssid, prefix string) bool {
	return prefix != "" && strings.HasPrefix(ssid, prefix)
}
