package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/trainmap/trainmap/internal/api"
	"github.com/trainmap/trainmap/internal/broadcast"
	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/internal/config"
	"github.com/trainmap/trainmap/internal/dispatcher"
	"github.com/trainmap/trainmap/internal/handlers"
	"github.com/trainmap/trainmap/internal/logging"
	"github.com/trainmap/trainmap/internal/monitor"
	intOtel "github.com/trainmap/trainmap/internal/otel"
	"github.com/trainmap/trainmap/internal/sim"
	"github.com/trainmap/trainmap/internal/world"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "trainmap"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()

	// Services
	simulation      *sim.Simulation
	broadcaster     *broadcast.Broadcaster
	eventDispatcher *dispatcher.Dispatcher
	monitorService  *monitor.Service
	sinks           *sinkSet

	// activeSim is read by the log context provider from any goroutine.
	activeSim atomic.Pointer[sim.Simulation]
)

func main() {
	configDir := pflag.StringP("config", "c", ".", "directory containing "+config.ConfigFileName)
	pflag.String("catalog", "", "route catalog YAML file (default: embedded catalog)")
	pflag.String("log-level", "", "log level override (debug, info, warn, error)")
	showVersion := pflag.BoolP("version", "v", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return
	}

	if err := run(*configDir, pflag.CommandLine); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func run(configDir string, flags *pflag.FlagSet) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initLogging(configDir, flags); err != nil {
		return err
	}
	zlog := logging.NewZerolog(LogFile, viper.GetString("logLevel"))

	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	broadcaster = broadcast.New(Logger)
	sinks = setupSinks(ctx, broadcaster, zlog)

	simCfg := config.GetSimConfig()
	loc, err := time.LoadLocation(simCfg.Timezone)
	if err != nil {
		Logger.Warn("Unknown timezone, using UTC", "timezone", simCfg.Timezone, "error", err)
		loc = time.UTC
	}
	simulation, err = sim.New(sim.Config{
		StaleAfterTicks:       simCfg.StaleAfterTicks,
		DefaultSegmentSeconds: simCfg.DefaultSegmentSeconds,
		AutoSpawn:             simCfg.AutoSpawn,
		Location:              loc,
	}, cat, world.NewMemory(), broadcaster, Logger)
	if err != nil {
		return fmt.Errorf("failed to create simulation: %w", err)
	}
	activeSim.Store(simulation)

	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	handlers.NewService(handlers.Dependencies{
		Sim:        simulation,
		Routes:     broadcaster,
		LogManager: SlogManager,
	}).Register(eventDispatcher)
	Logger.Debug("Registered commands", "commands", eventDispatcher.Commands())

	startMonitor()
	go checkServerStatus(ctx)

	broadcaster.Routes(broadcast.RouteSummaries(cat))
	Logger.Info("Published route catalog", "routes", len(cat.IDs()))

	go serveCommands(ctx, os.Stdin, os.Stdout, eventDispatcher, Logger)

	err = simulation.Run(ctx, simCfg.TickInterval)
	shutdown()
	return err
}

// initLogging loads the config and moves logging from the console to the
// session log file, with OTel and Graylog outputs when enabled.
func initLogging(configDir string, flags *pflag.FlagSet) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	err := config.Load(configDir)
	if err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}
	_ = viper.BindPFlag("catalogPath", flags.Lookup("catalog"))
	if flags.Changed("log-level") {
		_ = viper.BindPFlag("logLevel", flags.Lookup("log-level"))
	}

	LogFilePath = logging.LogFilePath(viper.GetString("logsDir"), AppName, SessionStartTime)
	LogFile, err = logging.OpenLogFile(LogFilePath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	Logger.Info("Begin logging in logs directory", "path", LogFilePath)

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		cfg := intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      LogFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		}
		if otelCfg.Metrics {
			cfg.MetricWriter = LogFile
			cfg.MetricInterval = otelCfg.MetricInterval
		}
		OTelProvider, err = intOtel.New(context.Background(), cfg)
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint, "metrics", otelCfg.Metrics)
		}
	}

	gelfCfg := config.GetGraylogConfig()
	if gelfCfg.Enabled {
		w, err := logging.DialGelf(gelfCfg.Address, AppName)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "address", gelfCfg.Address, "error", err)
		} else {
			level := slog.LevelInfo
			_ = level.UnmarshalText([]byte(viper.GetString("logLevel")))
			SlogManager.Extra = append(SlogManager.Extra, logging.NewGelfHandler(w, level, AppName))
		}
	}

	SlogManager.Context = func() []slog.Attr {
		s := activeSim.Load()
		if s == nil {
			return nil
		}
		return []slog.Attr{slog.Uint64("tick", s.CurrentTick())}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(LogFile, viper.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion)
	return nil
}

func loadCatalog() (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	path := viper.GetString("catalogPath")
	if path != "" {
		cat, err = catalog.LoadFile(path)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		return nil, err
	}

	simCfg := config.GetSimConfig()
	if projected := cat.ProjectUI(simCfg.UIWidth, simCfg.UIHeight); len(projected) > 0 {
		Logger.Info("Projected UI polylines from world bounds", "routes", projected)
	}
	Logger.Info("Loaded route catalog", "path", path, "routes", cat.IDs())
	return cat, nil
}

func startMonitor() {
	monCfg := config.GetMonitorConfig()
	if !monCfg.Enabled {
		return
	}
	monitorService = monitor.NewService(monitor.Dependencies{
		Stats:   simulation.Stats,
		Logger:  Logger,
		Dir:     filepath.Dir(LogFilePath),
		Pending: pendingWork,
	})
	if err := monitorService.Start(monCfg.Interval); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}
}

func pendingWork() map[string]int {
	out := map[string]int{"commands": simulation.Pending()}
	if sinks != nil && sinks.journal != nil {
		out["journal"] = sinks.journal.Pending()
		out["journalDropped"] = int(sinks.journal.Dropped())
	}
	return out
}

// checkServerStatus waits for the map web server to answer its healthcheck
// and logs the outcome. Observers cannot connect until it does.
func checkServerStatus(ctx context.Context) {
	serverURL := viper.GetString("api.serverUrl")
	if serverURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	client := api.New(serverURL, viper.GetString("api.apiKey"))
	if err := client.WaitReady(ctx, 5*time.Second); err != nil {
		if !errors.Is(err, context.Canceled) {
			Logger.Warn("Map server is not reachable", "url", serverURL, "error", err)
		}
		return
	}
	Logger.Info("Map server is reachable", "url", serverURL)
}

func shutdown() {
	Logger.Info("Shutting down", "tick", simulation.CurrentTick())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := eventDispatcher.Close(ctx); err != nil {
		Logger.Warn("Dispatcher did not drain", "error", err)
	}
	if monitorService != nil {
		monitorService.Stop()
	}
	if err := broadcaster.Close(); err != nil {
		Logger.Error("Failed to close sinks", "error", err)
	}
	sinks.close(Logger, SessionStartTime)

	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Error("Failed to shut down OTel provider", "error", err)
		}
	}
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}
