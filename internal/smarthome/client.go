package smarthome

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/identity"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-core/internal/location"
	"github.com/nerrad567/smarthome-core/internal/replication"
)

// Client is the process-wide connection to the data access layer. All
// fields are ready for use after Open and must not be reassigned.
type Client struct {
	Homes    *location.HomeRepository
	Rooms    *location.RoomRepository
	Devices  *device.Repository
	Profiles *identity.ProfileStore
	Accounts *identity.LocalProvider
	Identity *identity.Gateway

	db    *database.DB
	store docstore.Store
	log   *logging.Logger

	mu     sync.Mutex
	relay  *replication.Relay
	closed bool
}

// Open connects the configured document store, applies SQLite migrations
// and wires the repositories and identity gateway.
//
// Accounts and sessions always live in SQLite at cfg.Database.Path; the
// documents live in SQLite too unless cfg.Store.Driver selects MongoDB.
func Open(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Client, error) {
	if cfg == nil {
		return nil, ErrMissingConfig
	}
	if log == nil {
		log = logging.Discard()
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	feed := docstore.NewFeed()
	store, err := openStore(ctx, cfg, db, feed)
	if err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, err
	}

	c := newClient(db, store, cfg.Security, log)
	log.Info("smart home client opened", "store", cfg.Store.Driver, "database", db.Path())
	return c, nil
}

func openStore(ctx context.Context, cfg *config.Config, db *database.DB, feed *docstore.Feed) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite, "":
		return docstore.NewSQLiteStore(db.DB, feed), nil
	case config.StoreDriverMongoDB:
		store, err := docstore.ConnectMongo(ctx, docstore.MongoConfig{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			ConnectTimeout: time.Duration(cfg.MongoDB.ConnectTimeout) * time.Second,
		}, feed)
		if err != nil {
			return nil, fmt.Errorf("connecting document store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Store.Driver)
	}
}

func newClient(db *database.DB, store docstore.Store, sec config.SecurityConfig, log *logging.Logger) *Client {
	rooms := location.NewRoomRepository(store)
	homes := location.NewHomeRepository(store, rooms)
	devices := device.NewRepository(store, rooms)
	rooms.SetDeviceDeleter(devices)

	rooms.SetLogger(log.Component("rooms"))
	homes.SetLogger(log.Component("homes"))
	devices.SetLogger(log.Component("devices"))

	accounts := identity.NewLocalProvider(db.DB, identity.LocalConfig{
		Secret:   sec.JWT.Secret,
		TokenTTL: time.Duration(sec.JWT.AccessTokenTTL) * time.Minute,
		Federated: identity.NewFederatedVerifier(identity.FederatedConfig{
			Name:     sec.Federated.Name,
			Issuer:   sec.Federated.Issuer,
			Audience: sec.Federated.Audience,
			Secret:   sec.Federated.Secret,
		}),
	})
	profiles := identity.NewProfileStore(store)
	gateway := identity.NewGateway(accounts, profiles)
	gateway.SetLogger(log.Component("identity"))

	return &Client{
		Homes:    homes,
		Rooms:    rooms,
		Devices:  devices,
		Profiles: profiles,
		Accounts: accounts,
		Identity: gateway,
		db:       db,
		store:    store,
		log:      log,
	}
}

// Store returns the document store.
func (c *Client) Store() docstore.Store {
	return c.store
}

// Feed returns the change feed every write is published on.
func (c *Client) Feed() *docstore.Feed {
	return c.store.Feed()
}

// AttachRelay starts relaying changes with peers over transport. Only one
// relay may be attached; it is stopped by Close.
func (c *Client) AttachRelay(transport replication.Transport, origin string) (*replication.Relay, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.relay != nil {
		return nil, ErrRelayAttached
	}

	relay := replication.NewRelay(c.store.Feed(), transport, origin)
	relay.SetLogger(c.log.Component("replication"))
	if err := relay.Start(); err != nil {
		return nil, fmt.Errorf("starting relay: %w", err)
	}
	c.relay = relay
	return relay, nil
}

// Relay returns the attached relay, or nil.
func (c *Client) Relay() *replication.Relay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relay
}

// DBStats reports the account database connection pool.
func (c *Client) DBStats() sql.DBStats {
	return c.db.Stats()
}

// HealthCheck verifies the account database and the document store.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.db.HealthCheck(ctx); err != nil {
		return err
	}
	if err := c.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("document store: %w", err)
	}
	return nil
}

// Close stops the relay and releases the store and database. Subscriptions
// should be released first. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	relay := c.relay
	c.relay = nil
	c.mu.Unlock()

	if relay != nil {
		relay.Stop()
	}

	var errs []error
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, err)
	}
	c.log.Info("smart home client closed")
	return errors.Join(errs...)
}
