// brokerlink keeps one authenticated MQTT-over-TLS session to a broker alive
// indefinitely.
//
// It connects with a client certificate, probes the broker on a fixed
// interval and re-establishes the TLS transport when a probe goes
// unanswered and the connection is found dead.
//
// Usage:
//
//	brokerlink <cacert> <certpem> <privatekey> <clientid> <host>
//	brokerlink --config /etc/brokerlink/config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nerrad567/brokerlink/internal/api"
	"github.com/nerrad567/brokerlink/internal/credentials"
	"github.com/nerrad567/brokerlink/internal/infrastructure/config"
	"github.com/nerrad567/brokerlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/brokerlink/internal/infrastructure/logging"
	"github.com/nerrad567/brokerlink/internal/link"
	"github.com/nerrad567/brokerlink/internal/session"
	"github.com/nerrad567/brokerlink/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// defaultConfigPath is read when present and no --config or
// BROKERLINK_CONFIG is given.
const defaultConfigPath = "configs/config.yaml"

// positionalArgs is the number of positional values accepted besides zero.
const positionalArgs = 5

// cliOptions holds flag values before they are merged into the config.
type cliOptions struct {
	configPath          string
	port                int
	extendedDiagnostics bool
	logLevel            string
	logFormat           string
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the brokerlink command and its flags.
func newRootCommand() *cobra.Command {
	var opts cliOptions

	cmd := &cobra.Command{
		Use:   "brokerlink [cacert certpem privatekey clientid host]",
		Short: "Keep an MQTT-over-TLS broker session alive and self-healing",
		Long: `brokerlink maintains a single mutually authenticated TLS connection to an MQTT
broker, opens a session over it, and sends a liveness probe every keep-alive
interval. When a probe goes unanswered and the transport is found down, the
TLS connection is re-established and the session follows.

Settings come from defaults, then the config file (YAML or TOML), then
BROKERLINK_* environment variables, then positional values and flags.`,
		Example: `  brokerlink ca.crt device.crt device.key device-01 broker.example.com
  brokerlink --config /etc/brokerlink/config.toml --extended-diagnostics`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:          validateArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only flags set on the command line override the file
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			cfg, err := loadConfig(opts, changed, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to a YAML or TOML config file (default: $BROKERLINK_CONFIG or "+defaultConfigPath+" if present)")
	cmd.Flags().IntVar(&opts.port, "port", config.DefaultBrokerPort, "broker port")
	cmd.Flags().BoolVar(&opts.extendedDiagnostics, "extended-diagnostics", false, "log every transport and session event at info level")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "json", "log format: json or text")

	return cmd
}

// validateArgs accepts either no positional values or all five.
func validateArgs(_ *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != positionalArgs {
		return fmt.Errorf("expected 0 or %d arguments (cacert certpem privatekey clientid host), got %d", positionalArgs, len(args))
	}
	return nil
}

// loadConfig merges file, environment, positional values and changed flags,
// then validates the result.
func loadConfig(opts cliOptions, changed map[string]bool, args []string) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv("BROKERLINK_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		config.ApplyEnvOverrides(cfg)
	}

	if len(args) == positionalArgs {
		cfg.Credentials.CAFile = args[0]
		cfg.Credentials.CertFile = args[1]
		cfg.Credentials.KeyFile = args[2]
		cfg.Broker.ClientID = args[3]
		cfg.Broker.Host = args[4]
	}

	if changed["port"] {
		cfg.Broker.Port = opts.port
	}
	if changed["extended-diagnostics"] {
		cfg.Liveness.ExtendedDiagnostics = opts.extendedDiagnostics
	}
	if changed["log-level"] {
		cfg.Logging.Level = opts.logLevel
	}
	if changed["log-format"] {
		cfg.Logging.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run wires the components together and blocks until ctx is cancelled.
//
// Only startup problems are returned; once the link runs, every connection
// failure is logged and recovered from.
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting brokerlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	session.RoutePahoLogs(log.With("component", "paho"), cfg.Liveness.ExtendedDiagnostics)

	store, err := credentials.NewStore(credentials.Files{
		CAFile:   cfg.Credentials.CAFile,
		CertFile: cfg.Credentials.CertFile,
		KeyFile:  cfg.Credentials.KeyFile,
	}, cfg.Credentials.TLSVersion)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	store.SetLogger(log.With("component", "credentials"))
	files := store.Files()
	log.Info("credentials loaded",
		"ca_file", files.CAFile,
		"cert_file", files.CertFile,
		"tls_version", cfg.Credentials.TLSVersion,
	)

	if cfg.Credentials.Watch {
		go func() {
			if watchErr := store.Watch(ctx); watchErr != nil {
				log.Error("credential watcher stopped", "error", watchErr)
			}
		}()
	}

	tr := transport.New(store, transport.Options{})
	tr.SetLogger(log.With("component", "transport"))

	sess := session.New(session.Options{
		ProtocolVersion: cfg.Broker.ProtocolVersion,
		ProbeTopic:      cfg.ProbeTopic(),
	})
	sess.SetLogger(log.With("component", "session"))

	linkOpts := []link.Option{link.WithLogger(log.With("component", "link"))}
	var telemetry api.HealthChecker

	// Telemetry is optional and never blocks the link from starting
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB, cfg.Broker.ClientID)
		if connErr != nil {
			log.Warn("InfluxDB unavailable, telemetry disabled", "error", connErr)
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Warn("InfluxDB write error", "error", err)
			})
			linkOpts = append(linkOpts, link.WithRecorder(influxClient))
			telemetry = influxClient
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
		}
	}

	var hub *api.Hub
	if cfg.Status.Enabled {
		hub = api.NewHub(log.With("component", "api"))
		linkOpts = append(linkOpts, link.WithObserver(hub))
	}

	l, err := link.New(linkConfig(cfg), tr, sess, linkOpts...)
	if err != nil {
		return fmt.Errorf("creating link: %w", err)
	}

	if cfg.Status.Enabled {
		srv, srvErr := api.New(api.Deps{
			Config:    cfg.Status,
			Logger:    log.With("component", "api"),
			Status:    l,
			Telemetry: telemetry,
			Hub:       hub,
			Version:   version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating status server: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting status server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing status server", "error", closeErr)
			}
		}()
	}

	if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running link: %w", err)
	}

	log.Info("brokerlink stopped")
	return nil
}

// linkConfig builds the immutable connection configuration for the core.
func linkConfig(cfg *config.Config) link.Config {
	return link.Config{
		Host:                cfg.Broker.Host,
		Port:                cfg.Broker.Port,
		ClientID:            cfg.Broker.ClientID,
		KeepAliveInterval:   cfg.KeepAliveInterval(),
		ProbeTimeout:        cfg.ProbeTimeout(),
		ConnectWait:         cfg.ConnectWait(),
		ReconnectWait:       cfg.ReconnectWait(),
		ExtendedDiagnostics: cfg.Liveness.ExtendedDiagnostics,
	}
}
