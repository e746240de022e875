// Light Manager - MQTT-controlled lighting controller
//
// This is the main entry point for the light manager. It holds one broker
// session on the command topic, toggles the configured output channels
// in response to TOGGLE events, and republishes every received message
// under the audit prefix.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lightmanager/lightmanager/internal/api"
	"github.com/lightmanager/lightmanager/internal/audit"
	"github.com/lightmanager/lightmanager/internal/channel"
	"github.com/lightmanager/lightmanager/internal/command"
	"github.com/lightmanager/lightmanager/internal/infrastructure/config"
	"github.com/lightmanager/lightmanager/internal/infrastructure/database"
	"github.com/lightmanager/lightmanager/internal/infrastructure/influxdb"
	"github.com/lightmanager/lightmanager/internal/infrastructure/logging"
	"github.com/lightmanager/lightmanager/internal/infrastructure/mqtt"
	"github.com/lightmanager/lightmanager/internal/metrics"
	"github.com/lightmanager/lightmanager/internal/output"
	"github.com/lightmanager/lightmanager/internal/provision"
	"github.com/lightmanager/lightmanager/internal/session"
	"github.com/lightmanager/lightmanager/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when LIGHTMANAGER_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// pollInterval is the idle wait between polls of a quiet session.
	pollInterval = 20 * time.Millisecond
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting light manager",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("device", cfg.Device.ID)
	log.Info("configuration loaded", "path", configPath)

	// Provisioned broker settings override config.yaml.
	settings := provision.NewStore(cfg.Provisioning.Path)
	if loadErr := settings.Load(); loadErr != nil {
		log.Warn("ignoring provisioned settings", "path", settings.Path(), "error", loadErr)
	} else if settings.GetConfig().ApplyTo(&cfg.MQTT.Broker) {
		log.Info("using provisioned broker",
			"host", cfg.MQTT.Broker.Host,
			"port", cfg.MQTT.Broker.Port,
		)
	}

	bindings, pins, err := channelBindings(cfg.Channels)
	if err != nil {
		return err
	}

	driver, err := output.New(cfg.Output, pins)
	if err != nil {
		return fmt.Errorf("creating output driver: %w", err)
	}
	defer func() {
		if closeErr := driver.Close(); closeErr != nil {
			log.Error("error closing output driver", "error", closeErr)
		}
	}()
	log.Info("output driver ready", "driver", cfg.Output.Driver, "pins", len(pins))

	registry, err := channel.NewRegistry(bindings, newMeteredOutput(driver, bindings))
	if err != nil {
		return fmt.Errorf("building channel registry: %w", err)
	}
	registry.SetLogger(log.Component("channel"))

	// Optional local persistence.
	var (
		db         *database.DB
		stateStore channel.StateStore
		auditRepo  audit.Repository
	)
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", db.Path())

		stateStore = channel.NewSQLiteStore(db.DB)
		auditRepo = audit.NewSQLiteRepository(db.DB)

		states, loadErr := stateStore.Load(ctx)
		if loadErr != nil {
			log.Warn("channel states not restored", "error", loadErr)
		} else {
			registry.Restore(states)
			log.Info("channel states restored", "count", len(states))
		}
	}

	if syncErr := registry.Sync(); syncErr != nil {
		log.Warn("initial output sync incomplete", "error", syncErr)
	}
	publishChannelMetrics(registry)

	// Optional telemetry.
	var influx *influxdb.Sink
	if cfg.InfluxDB.Enabled {
		influx, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err, "failed_batches", influx.FailedWrites())
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Live stream for API clients.
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.API.WebSocket, log.Component("websocket"))
	}

	onChange := channelChangeHook(ctx, stateStore, influx, log)
	if hub != nil {
		registry.SetOnChange(func(ch channel.Channel, previous channel.State) {
			onChange(ch, previous)
			hub.ChannelChanged(ch, previous)
		})
	} else {
		registry.SetOnChange(onChange)
	}

	// Capability table.
	table := command.NewTable()
	toggle := command.NewToggle(registry)
	toggle.SetLogger(log.Component("toggle"))
	if regErr := table.Register(command.TypeToggle, toggle); regErr != nil {
		return fmt.Errorf("registering toggle handler: %w", regErr)
	}

	// Broker transport and connection manager.
	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func(clientID string) {
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", clientID,
		)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT connection lost", "error", err)
	})
	mqttClient.SetOnDrop(func(string) {
		metrics.RecordInboxDrop()
	})
	defer func() {
		log.Info("closing MQTT client")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	var observers observerChain
	if auditRepo != nil {
		rec := audit.NewRecorder(auditRepo)
		rec.SetLogger(log.Component("audit"))
		observers = append(observers, rec)
	}
	if influx != nil {
		observers = append(observers, commandTelemetry(influx))
	}
	if hub != nil {
		observers = append(observers, hub)
	}

	manager, err := session.New(session.Options{
		Transport:      mqttClient,
		Dispatcher:     table,
		CommandTopic:   cfg.MQTT.Topics.Command,
		AuditPrefix:    cfg.MQTT.Topics.AuditPrefix,
		ClientIDPrefix: cfg.MQTT.Broker.ClientIDPrefix,
		SocketTimeout:  cfg.GetSocketTimeout(),
		RetryDelay:     cfg.GetRetryDelay(),
		Observer:       observers,
		Logger:         log.Component("session"),
	})
	if err != nil {
		return fmt.Errorf("creating connection manager: %w", err)
	}
	defer manager.Close()

	// Read-only status API.
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{"mqtt": mqttClient}
		if db != nil {
			checks["database"] = db
		}
		if influx != nil {
			checks["influxdb"] = influx
		}

		deps := api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Channels: lockedChannels{manager: manager, registry: registry},
			Session:  manager,
			Hub:      hub,
			Checks:   checks,
			Version:  version,
		}
		if auditRepo != nil {
			deps.Audit = auditRepo
		}

		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete",
		"command_topic", cfg.MQTT.Topics.Command,
		"audit_topic", session.AuditTopic(cfg.MQTT.Topics.AuditPrefix, cfg.MQTT.Topics.Command),
		"channels", registry.Len(),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.Run(gctx, pollInterval)
	})

	if hub != nil {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
	}

	if cfg.Output.StatusPin != "" {
		g.Go(func() error {
			err := output.Blink(gctx, driver, cfg.Output.StatusPin, output.BlinkCount, output.BlinkPeriod)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("status indicator failed", "pin", cfg.Output.StatusPin, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("light manager stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LIGHTMANAGER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LIGHTMANAGER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
