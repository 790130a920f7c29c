package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/confwatch"
	"github.com/saltyorg/subrewind/internal/database"
	"github.com/saltyorg/subrewind/internal/logging"
	"github.com/saltyorg/subrewind/internal/maintenance"
	"github.com/saltyorg/subrewind/internal/monitor"
	"github.com/saltyorg/subrewind/internal/notification"
	"github.com/saltyorg/subrewind/internal/plex"
	"github.com/saltyorg/subrewind/internal/web"
)

var (
	version = "0.0.0-dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	configFile  string
	verbosity   int

	// Timeout flags (advanced)
	httpTimeout   time.Duration
	websocketPing time.Duration
	streamTimeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "subrewind",
		Short: "Subrewind - Plex rewind subtitle automation",
		Long:  `Subrewind watches Plex playback sessions and temporarily turns subtitles on when a viewer rewinds, restoring the previous selection once playback moves on.`,
		RunE:  run,
	}

	// Flags
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().StringVarP(&dbPath, "db", "d", "./subrewind.db", "SQLite database path (or set DB_PATH env var)")
	rootCmd.Flags().StringVarP(&configFile, "config-file", "c", "", "Optional KEY=VALUE settings file applied live on change")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	// Advanced timeout flags
	rootCmd.Flags().DurationVar(&httpTimeout, "http-timeout", 15*time.Second, "Timeout for HTTP requests to the Plex server")
	rootCmd.Flags().DurationVar(&websocketPing, "websocket-ping", 30*time.Second, "Interval between WebSocket keepalive pings")
	rootCmd.Flags().DurationVar(&streamTimeout, "stream-timeout", 10*time.Second, "Timeout for a single stream selection command")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("subrewind %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Check for PORT env var if flag not set
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if _, err := fmt.Sscanf(envPort, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
		}
	}

	// Check for DB_PATH env var if using default
	if dbPath == "./subrewind.db" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}

	// Validate port
	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}

	// Validate bind address if provided
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	// Validate and parse allow-subnet if provided
	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	// Setup logging
	setupLogging(verbosity)

	// Configure global timeouts
	config.SetGlobalTimeouts(&config.TimeoutConfig{
		HTTPClient:    httpTimeout,
		WebSocketPing: websocketPing,
		StreamCommand: streamTimeout,
	})

	// Warn if binding to all interfaces without an allow list
	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("database", dbPath).
		Msg("Starting Subrewind")

	// Initialize database
	db, err := database.New(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Re-apply logging with stored settings (level plus rotating file output).
	// Verbosity flags take precedence over the stored level.
	loader := config.NewLoader(db)
	level := loader.String("log.level", "info")
	switch {
	case verbosity == 1:
		level = "debug"
	case verbosity >= 2:
		level = "trace"
	}
	logging.Apply(level, loader, logging.FilePathForDB(db.Path()))

	// Create web server with bind address and allowed subnet
	isDev := version == "0.0.0-dev"
	server := web.NewServer(db, port, bind, allowedNet, isDev)
	server.SetVersionInfo(version, commit, date)
	sseBroker := server.SSEBroker()

	// Initialize notification manager
	notificationMgr := notification.NewManager(db)
	if err := notificationMgr.ReloadProviders(); err != nil {
		log.Error().Err(err).Msg("Failed to load notification providers")
	}
	defer notificationMgr.Stop()
	server.SetNotificationManager(notificationMgr)

	// Start notification manager (only starts if providers are configured)
	if started := notificationMgr.Start(); !started {
		log.Debug().Msg("Notification manager not started (no providers configured)")
	}

	// Build the Plex client when a connection is configured. The monitor is
	// constructed either way; Reload picks up the client after first-run setup.
	var client monitor.SessionSource
	plexURL := loader.String("plex.url", "")
	plexToken := loader.String("plex.token", "")
	if plexURL != "" && plexToken != "" {
		client = plex.NewClient(plexURL, plexToken)
	}

	// Initialize session monitor
	mon := monitor.New(client, monitor.OptionsFromSettings(loader), db)
	mon.SetSSEBroker(sseBroker)
	mon.SetNotifier(notificationMgr)
	server.SetMonitor(mon)
	defer mon.Stop()

	switch {
	case client == nil:
		log.Info().Msg("Plex connection not configured; monitor stays stopped until setup completes")
	case !loader.BoolDefaultTrue("monitor.enabled"):
		log.Info().Msg("Session monitor disabled in settings")
	default:
		if err := mon.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start session monitor")
		}
	}

	// Initialize maintenance scheduler
	maintenanceMgr := maintenance.NewManager(db)
	if err := maintenanceMgr.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start maintenance scheduler")
	}
	defer maintenanceMgr.Stop()
	server.SetMaintenanceManager(maintenanceMgr)

	// Watch the optional settings file
	if configFile != "" {
		watcher, err := confwatch.New(db, configFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", configFile).Msg("Failed to initialize settings file watcher")
		}
		watcher.SetMonitor(mon)
		watcher.SetSSEBroker(sseBroker)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("path", watcher.Path()).Msg("Failed to start settings file watcher")
		}
		defer watcher.Stop()
	}

	// Periodic update check for the about page and nav pill
	server.Handlers().StartUpdateChecker()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Subrewind stopped")
	return nil
}

func setupLogging(verbosity int) {
	// Pretty console output
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}

	switch verbosity {
	case 0:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case 1:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default: // 2+
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
