// Parlor - Game Lobby Orchestration Service
//
// Parlor fronts a catalog of community-published games: developers upload
// game packages over a TCP console, players log in, browse, download, and
// gather in rooms, and the service spawns one game-server process per
// started room. A REST API, MQTT telemetry, and an interactive console
// expose the running state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parlor-project/parlor/internal/api"
	"github.com/parlor-project/parlor/internal/catalog"
	"github.com/parlor-project/parlor/internal/cli"
	"github.com/parlor-project/parlor/internal/config"
	"github.com/parlor-project/parlor/internal/dispatch"
	"github.com/parlor-project/parlor/internal/events"
	"github.com/parlor-project/parlor/internal/lobby"
	"github.com/parlor-project/parlor/internal/network"
	"github.com/parlor-project/parlor/internal/protocol"
	"github.com/parlor-project/parlor/internal/scheduler"
	"github.com/parlor-project/parlor/internal/session"
	"github.com/parlor-project/parlor/internal/supervisor"
	"github.com/parlor-project/parlor/internal/telemetry"
	"github.com/parlor-project/parlor/internal/util"
)

const (
	AppName    = "Parlor"
	AppVersion = "1.0.0"
	Banner     = `
  _____           _
 |  __ \         | |
 | |__) |_ _ _ __| | ___  _ __
 |  ___/ _' | '__| |/ _ \| '__|
 | |  | (_| | |  | | (_) | |
 |_|   \__,_|_|  |_|\___/|_|  v%s
 Game Lobby Orchestration Service
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Parlor")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logging := cfg.GetApplicationData().Logging
	logCfg := util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxSizeMB:  logging.MaxSizeMB,
		MaxBackups: logging.MaxBackups,
		Console:    logging.Console,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	lobbyData := cfg.GetLobbyData()
	appData := cfg.GetApplicationData()

	// Game packages land here; create it up front so uploads never race a
	// missing parent directory.
	if err := util.EnsureDir(lobbyData.StorageDirectory); err != nil {
		log.Fatal().Err(err).Str("dir", lobbyData.StorageDirectory).Msg("failed to create storage directory")
	}

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	store, err := catalog.NewSQLiteStore(lobbyData.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open catalog database")
	}
	defer store.Close()

	sessions := session.NewRegistry()
	gameSupervisor := supervisor.New(lobbyData.GamePortBase)
	rooms := lobby.NewRegistry(gameSupervisor, eventBus)
	devClients := network.NewClientSet()

	// Wire request dispatchers for the two TCP surfaces
	lobbyDispatcher := dispatch.NewDispatcher("lobby", "Unknown lobby command.")
	dispatch.NewLobbyHandlers(sessions, rooms, store, eventBus).Register(lobbyDispatcher)

	devDispatcher := dispatch.NewDispatcher("developer", "Unknown developer command.")
	dispatch.NewDeveloperHandlers(store, lobbyData.StorageDirectory, devClients, eventBus).Register(devDispatcher)

	lobbyListener := network.NewTCPListener("lobby",
		fmt.Sprintf("%s:%d", lobbyData.BindAddress, lobbyData.LobbyPort),
		lobbyDispatcher.ServeConn)
	devListener := network.NewTCPListener("developer",
		fmt.Sprintf("%s:%d", lobbyData.BindAddress, lobbyData.DeveloperPort),
		devDispatcher.ServeConn)

	// Initialize REST API
	apiServer := api.NewServer(cfg, sessions, rooms, store)

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus, func() map[string]interface{} {
			total, active := rooms.Counts()
			return map[string]interface{}{
				"sessions":     sessions.Count(),
				"rooms_total":  total,
				"rooms_active": active,
				"processes":    len(rooms.ProcessStats()),
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize scheduler with the periodic tasks
	sched := scheduler.NewScheduler()

	keepAliveInterval := time.Duration(appData.Timers.KeepAliveInterval) * time.Second
	sched.AddTask("keepalive", keepAliveInterval, func(ctx context.Context) {
		ping := protocol.NewKeepAlive()
		sessions.Broadcast(ping)
		devClients.Broadcast(ping)
	})

	if mqttHandler != nil {
		statsInterval := time.Duration(appData.Timers.StatsPollingInterval) * time.Second
		sched.AddTask("telemetry_stats", statsInterval, mqttHandler.PublishStats)
	}

	// Initialize CLI
	cliHandler := cli.NewCLI(eventBus, sessions, rooms, store)

	// CLI quit and other internal shutdown requests land here
	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, event events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	// Task 1: Lobby TCP listener (fatal on failure; the service is pointless without it)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", lobbyData.LobbyPort).Msg("starting lobby listener")
		if err := startWithRetry(ctx, "lobby listener", lobbyListener.Start, 15); err != nil {
			log.Error().Err(err).Msg("lobby listener failed after retries")
			errCh <- fmt.Errorf("lobby listener: %w", err)
		}
	}()

	// Task 2: Developer TCP listener (fatal on failure)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", lobbyData.DeveloperPort).Msg("starting developer listener")
		if err := startWithRetry(ctx, "developer listener", devListener.Start, 15); err != nil {
			log.Error().Err(err).Msg("developer listener failed after retries")
			errCh <- fmt.Errorf("developer listener: %w", err)
		}
	}()

	// Task 3: REST API server (non-fatal)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", lobbyData.APIPort).Msg("starting REST API server")
		if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
			log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
		}
	}()

	// Task 4: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 5: Scheduler (keepalives, telemetry stats)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting task scheduler")
		sched.Start(ctx)
	}()

	// Task 6: Interactive console
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive console")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested from console")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Cancel the root context to signal all goroutines
	cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Stop the event bus last
	eventBus.Stop()

	log.Info().Msg("Parlor stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors. Uses a fixed 3-second interval between retries, giving the OS
// time to release sockets after a process is force-killed.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
