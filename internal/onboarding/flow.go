package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// Step is where a Flow currently stands.
type Step string

// Onboarding steps, in order.
const (
	StepScan      Step = "scan"
	StepConnect   Step = "connect"
	StepConfigure Step = "configure"
	StepDone      Step = "done"
)

// DefaultDevicePrefix is the SSID prefix of plugs that have not been set up.
const DefaultDevicePrefix = "ESP8266"

// DeviceCreator persists the onboarded device. device.Repository satisfies
// it.
type DeviceCreator interface {
	Create(ctx context.Context, d device.NewDevice) (string, error)
}

// Logger defines the logging interface used by onboarding.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config wires a Flow to its collaborators.
type Config struct {
	Scanner  Scanner
	Resolver Resolver // optional; devices are created without an address when nil
	Devices  DeviceCreator
	Prefix   string // defaults to DefaultDevicePrefix
	Logger   Logger
}

// Status is a snapshot of a Flow.
type Status struct {
	Step     Step      `json:"step"`
	Networks []Network `json:"networks"`
	Selected string    `json:"selected,omitempty"`
	DeviceID string    `json:"deviceId,omitempty"`
}

// Configuration names the device being onboarded.
type Configuration struct {
	RoomID string      `json:"roomId"`
	Name   string      `json:"name"`
	Type   device.Type `json:"type"`
}

// Flow takes one device from scan to creation. It is safe for concurrent
// use; steps are serialised.
type Flow struct {
	cfg Config

	mu       sync.Mutex
	step     Step
	networks []Network
	selected string
	deviceID string
}

// NewFlow creates a flow at the scan step.
func NewFlow(cfg Config) *Flow {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultDevicePrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Flow{cfg: cfg, step: StepScan}
}

// Status returns the current step and last scan results.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Step:     f.step,
		Networks: append([]Network(nil), f.networks...),
		Selected: f.selected,
		DeviceID: f.deviceID,
	}
}

// Scan lists nearby networks and returns the flow to the scan step. It may
// be repeated at any point before the device is created.
func (f *Flow) Scan(ctx context.Context) ([]Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step == StepDone {
		return nil, fmt.Errorf("%w: device already created", ErrWrongStep)
	}

	networks, err := f.cfg.Scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning networks: %w", err)
	}
	f.networks = networks
	f.selected = ""
	f.step = StepScan
	f.cfg.Logger.Debug("onboarding scan complete", "networks", len(networks))
	return append([]Network(nil), networks...), nil
}

// Select picks the device network. It must have been seen by the last scan
// and carry the device prefix.
func (f *Flow) Select(ssid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepScan && f.step != StepConnect {
		return fmt.Errorf("%w: cannot select at %s", ErrWrongStep, f.step)
	}

	found := false
	for _, n := range f.networks {
		if n.SSID == ssid {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNetworkNotFound, ssid)
	}
	if !IsDevice(ssid, f.cfg.Prefix) {
		return fmt.Errorf("%w: select a %s network", ErrNotADevice, f.cfg.Prefix)
	}

	f.selected = ssid
	f.step = StepConnect
	return nil
}

// Connect joins the selected network with password.
func (f *Flow) Connect(ctx context.Context, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepConnect {
		return fmt.Errorf("%w: cannot connect at %s", ErrWrongStep, f.step)
	}
	if password == "" {
		return ErrPasswordRequired
	}

	if err := f.cfg.Scanner.Connect(ctx, f.selected, password); err != nil {
		if errors.Is(err, ErrPasswordRequired) || errors.Is(err, ErrNetworkNotFound) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrConnectFailed, f.selected, err)
	}
	f.step = StepConfigure
	f.cfg.Logger.Info("connected to device network", "ssid", f.selected)
	return nil
}

// Configure creates the device in the given room and finishes the flow. A
// device whose address cannot be resolved is created without one.
func (f *Flow) Configure(ctx context.Context, c Configuration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepConfigure {
		return "", fmt.Errorf("%w: cannot configure at %s", ErrWrongStep, f.step)
	}

	nd := device.NewDevice{
		Name:   strings.TrimSpace(c.Name),
		Type:   c.Type,
		RoomID: c.RoomID,
		SSID:   f.selected,
	}
	if err := device.ValidateNewDevice(nd); err != nil {
		return "", err
	}

	if f.cfg.Resolver != nil {
		addr, err := f.cfg.Resolver.Resolve(ctx, f.selected)
		switch {
		case err == nil:
			nd.IPAddress = addr
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			f.cfg.Logger.Warn("device address not resolved", "ssid", f.selected, "error", err)
		}
	}

	id, err := f.cfg.Devices.Create(ctx, nd)
	if err != nil {
		return "", err
	}
	f.deviceID = id
	f.step = StepDone
	f.cfg.Logger.Info("device onboarded", "device_id", id, "ssid", f.selected, "ip", nd.IPAddress)
	return id, nil
}
