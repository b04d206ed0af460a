// Smart Home Core - back end for homes, rooms and power-monitored devices.
//
// This is the main entry point for the smart home core. It serves:
//   - Email/password and federated sign-in
//   - Homes, rooms and devices with live snapshots over WebSocket
//   - Voltage telemetry sampling and chart backfill
//   - Guided onboarding of new smart plugs
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/smarthome-core/migrations"

	"github.com/nerrad567/smarthome-core/internal/api"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthome-core/internal/onboarding"
	"github.com/nerrad567/smarthome-core/internal/smarthome"
	"github.com/nerrad567/smarthome-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// mqttSampleMaxAge is how long a device's last published sample stays usable.
const mqttSampleMaxAge = 5 * time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting smart home core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Embedded broker first so the MQTT client below can reach it.
	if cfg.MQTT.Enabled && cfg.MQTT.Embedded.Enabled {
		broker, brokerErr := mqtt.StartBroker(cfg.MQTT.Embedded, log.Component("broker").Logger)
		if brokerErr != nil {
			return fmt.Errorf("starting embedded broker: %w", brokerErr)
		}
		defer func() {
			log.Info("stopping embedded broker")
			if closeErr := broker.Close(); closeErr != nil {
				log.Error("error stopping broker", "error", closeErr)
			}
		}()
		if cfg.MQTT, err = broker.ClientConfig(cfg.MQTT); err != nil {
			return fmt.Errorf("configuring embedded broker client: %w", err)
		}
		log.Info("embedded MQTT broker started", "address", broker.Address())
	}

	client, err := smarthome.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("opening smart home client: %w", err)
	}
	defer func() {
		log.Info("closing smart home client")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing client", "error", closeErr)
		}
	}()
	log.Info("document store ready", "driver", cfg.Store.Driver)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, client, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		stopStates := telemetry.MirrorStates(client.Feed(), &statePublisher{client: mqttClient, log: log})
		defer stopStates()
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		stopMirror := telemetry.MirrorStates(client.Feed(), influxClient)
		defer stopMirror()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	source, err := startTelemetry(ctx, cfg, client, mqttClient, influxClient, log)
	if err != nil {
		return err
	}

	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.Component("api"),
		Client:     client,
		Telemetry:  source,
		Onboarding: newOnboarding(cfg, client, log),
		MQTT:       transportStatus(mqttClient),
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server listening", "address", srv.Addr())

	if err := healthCheck(ctx, client, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, MQTT, client, broker.

	log.Info("smart home core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SMARTHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT connects to the broker and relays store changes to peers.
//
// Parameters:
//   - cfg: Application configuration
//   - client: Smart home client whose changes are relayed
//   - log: Logger instance
//
// Returns:
//   - *mqtt.Client: Connected client; the caller closes it
//   - error: If the connection or relay fails
func connectMQTT(cfg *config.Config, client *smarthome.Client, log *logging.Logger) (*mqtt.Client, error) {
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	relay, err := client.AttachRelay(mqttClient, cfg.MQTT.Broker.ClientID)
	if err != nil {
		_ = mqttClient.Close()
		return nil, fmt.Errorf("attaching change relay: %w", err)
	}
	log.Info("change relay started", "origin", relay.Origin())
	return mqttClient, nil
}

// startTelemetry picks the configured source and runs the sampler in the
// background until ctx is cancelled. It returns the source for chart
// backfill, or nil when telemetry is disabled.
func startTelemetry(ctx context.Context, cfg *config.Config, client *smarthome.Client, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) (telemetry.Source, error) {
	if !cfg.Telemetry.Enabled {
		log.Info("telemetry disabled")
		return nil, nil
	}

	var source telemetry.Source
	switch cfg.Telemetry.Source {
	case config.TelemetrySourceMQTT:
		mqttSource := telemetry.NewMQTTSource(mqttClient, mqttSampleMaxAge)
		if err := mqttSource.Start(); err != nil {
			return nil, fmt.Errorf("starting MQTT telemetry: %w", err)
		}
		source = mqttSource
	default:
		source = telemetry.NewSyntheticSource(cfg.Telemetry.Seed)
	}

	sampler := telemetry.NewSampler(client.Devices, source, cfg.TelemetryInterval())
	sampler.SetLogger(log.Component("telemetry"))
	if influxClient != nil {
		sampler.SetMirror(influxClient)
	}
	go func() {
		//nolint:errcheck // Run only returns ctx.Err() on shutdown
		sampler.Run(ctx)
	}()
	log.Info("telemetry sampler started",
		"source", cfg.Telemetry.Source,
		"interval", cfg.TelemetryInterval(),
	)
	return source, nil
}

// newOnboarding builds the session store for guided device setup. Device
// addresses are looked up over mDNS, falling back to the soft AP address
// the plugs use before they join the home network.
func newOnboarding(cfg *config.Config, client *smarthome.Client, log *logging.Logger) *onboarding.Sessions {
	scanner := onboarding.NewSimulatedScanner(cfg.Onboarding.DevicePrefix, time.Second)
	resolver := onboarding.Resolvers{
		onboarding.NewMDNSResolver(cfg.Onboarding.MDNSService, time.Duration(cfg.Onboarding.DiscoveryTimeout)*time.Second),
		onboarding.StaticResolver{Address: "192.168.4.1"},
	}
	flowLog := log.Component("onboarding")
	return onboarding.NewSessions(func() *onboarding.Flow {
		return onboarding.NewFlow(onboarding.Config{
			Scanner:  scanner,
			Resolver: resolver,
			Devices:  client.Devices,
			Prefix:   cfg.Onboarding.DevicePrefix,
			Logger:   flowLog,
		})
	}, 0)
}

// transportStatus avoids handing the API a typed nil.
func transportStatus(c *mqtt.Client) api.TransportStatus {
	if c == nil {
		return nil
	}
	return c
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - client: Smart home client to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, client *smarthome.Client, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// statePublisher publishes device on/off transitions on each device's
// retained state topic, so plugs can follow the core.
type statePublisher struct {
	client *mqtt.Client
	log    *logging.Logger
}

type stateMessage struct {
	IsOn      bool  `json:"isOn"`
	Timestamp int64 `json:"timestamp"`
}

// WriteDeviceState implements telemetry.StateWriter.
func (p *statePublisher) WriteDeviceState(deviceID string, isOn bool, at time.Time) {
	payload, err := json.Marshal(stateMessage{IsOn: isOn, Timestamp: at.UnixMilli()})
	if err != nil {
		return
	}
	if err := p.client.Publish(mqtt.Topics{}.DeviceState(deviceID), payload, p.client.QoS(), true); err != nil {
		p.log.Warn("publishing device state failed", "device_id", deviceID, "error", err)
	}
}
