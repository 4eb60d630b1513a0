package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/OCAP2/tickbridge/internal/api"
	"github.com/OCAP2/tickbridge/internal/config"
	"github.com/OCAP2/tickbridge/internal/dispatcher"
	"github.com/OCAP2/tickbridge/internal/logging"
	"github.com/OCAP2/tickbridge/internal/monitor"
	intotel "github.com/OCAP2/tickbridge/internal/otel"
	"github.com/OCAP2/tickbridge/internal/recorder"
	"github.com/OCAP2/tickbridge/internal/signals"
	"github.com/OCAP2/tickbridge/internal/storage"
	"github.com/OCAP2/tickbridge/pkg/app"
	"github.com/OCAP2/tickbridge/pkg/bridge"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	ConfigDir string
	Ticks     uint64
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the tick loop",
		Long: `Start the tick loop with the runtime monitor and the signal forwarder as
background producers. Every bridged message is journaled to the configured
storage backend. SIGINT or SIGTERM ends the loop after the current tick.

Example:
  tickbridge run --config ./config
  tickbridge run --ticks 600`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			notify := make(chan os.Signal, 1)
			signal.Notify(notify, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(notify)

			return runHost(cmd.Context(), opts, notify)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigDir, "config", "", "directory containing "+config.FileName+" (defaults only when empty)")
	cmd.Flags().Uint64Var(&opts.Ticks, "ticks", 0, "stop after this many ticks (overrides tick.limit, 0 keeps it)")

	return cmd
}

// runHost runs the tick loop until a shutdown signal arrives on notify, the
// tick limit is reached or ctx is done, then tears everything down.
func runHost(ctx context.Context, opts *RunOptions, notify <-chan os.Signal) error {
	start := time.Now().UTC()

	if opts.ConfigDir != "" {
		if err := config.Load(opts.ConfigDir); err != nil {
			return err
		}
	} else {
		config.LoadDefaults()
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, appName, start)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	provider, err := intotel.New(intotel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		BatchTimeout:   otelCfg.BatchTimeout,
		MetricInterval: otelCfg.MetricInterval,
		LogWriter:      logFile,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OTel provider: %w", err)
	}

	var host *app.App
	setupOpts := []logging.SetupOption{
		logging.WithTick(func() uint64 {
			if host == nil {
				return 0
			}
			return host.Tick()
		}),
	}
	graylogCfg := config.GetGraylogConfig()
	var graylogErr error
	if graylogCfg.Enabled {
		w, err := logging.NewGraylogWriter(graylogCfg.Address)
		if err != nil {
			graylogErr = err
		} else {
			setupOpts = append(setupOpts, logging.WithGraylog(w))
		}
	}

	slogManager := logging.NewSlogManager()
	slogManager.Setup(logFile, config.GetString("logLevel"), provider.LoggerProvider(), setupOpts...)
	logger := slogManager.Logger()
	logger.Info("Logging to file", "path", logPath, "version", version)
	if graylogErr != nil {
		logger.Warn("Failed to connect to Graylog, continuing without it", "address", graylogCfg.Address, "error", graylogErr)
	}
	if opts.ConfigDir != "" {
		config.Watch(slogManager.SetLevel)
	}

	zlog := zerolog.New(logFile).With().Timestamp().Str("app", appName).Logger()

	d, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return err
	}
	host, err = app.New(app.WithLogger(logger), app.WithDispatcher(d))
	if err != nil {
		return err
	}
	bridge.DebugCapacity = config.GetBridgeConfig().DebugCapacity

	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, storage.Loggers{Logger: logger, DBLogger: zlog})
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	logger.Info("Storage initialized", "type", storageCfg.Type)

	rec, err := recorder.New(recorder.Dependencies{Backend: backend, Logger: logger})
	if err != nil {
		return errors.Join(err, backend.Close())
	}
	host.AddPlugins(recorder.Plugin{Recorder: rec, FlushEvery: storageCfg.FlushInterval})

	buildSystems(host, rec, limitFor(opts, config.GetTickConfig()))

	producerCtx, stopProducers := context.WithCancel(ctx)
	defer stopProducers()
	g, gctx := errgroup.WithContext(producerCtx)

	shutdownTx := bridge.SenderFor[signals.Shutdown](host.World()).Clone()
	g.Go(func() error {
		return signals.Forward(gctx, shutdownTx, notify)
	})

	if monitorCfg := config.GetMonitorConfig(); monitorCfg.Enabled {
		svc := monitor.NewService(monitor.Dependencies{
			Sender:   bridge.SenderFor[monitor.Status](host.World()),
			Logger:   logger,
			Interval: monitorCfg.Interval,
		})
		if err := svc.Start(); err != nil {
			logger.Error("Failed to start status monitor", "error", err)
		} else {
			g.Go(func() error {
				<-gctx.Done()
				svc.Stop()
				return nil
			})
		}
	}

	runErr := host.Run(ctx, config.GetTickConfig().Rate)

	stopProducers()
	producerErr := g.Wait()
	// Deliver what the producers sent before they stopped.
	host.Update()

	shutdownErr := host.Shutdown()
	logger.Info("Journal closed",
		"records", rec.Total(),
		"failed", rec.Failed(),
		"lastFlush", rec.LastFlushDuration(),
	)

	uploadErr := uploadJournal(backend, start, rec.Total(), logger)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	otelErr := errors.Join(slogManager.Flush(flushCtx), provider.Shutdown(flushCtx))

	return errors.Join(runErr, producerErr, shutdownErr, uploadErr, otelErr)
}

func limitFor(opts *RunOptions, tick config.TickConfig) uint64 {
	if opts.Ticks > 0 {
		return opts.Ticks
	}
	return tick.Limit
}

// buildSystems registers the bridged message types and the systems reacting
// to them.
func buildSystems(host *app.App, rec *recorder.Recorder, limit uint64) {
	bridge.AddEvent[monitor.Status](host)
	bridge.AddTrigger[signals.Shutdown](host)

	recorder.Events[monitor.Status](host, rec)
	recorder.Triggers[signals.Shutdown](host, rec)

	statuses := app.NewEventReader[monitor.Status](host.World())
	host.AddSystems(app.Update, app.Named("monitor.log", app.SystemFunc(func(w *app.World) {
		for _, s := range statuses.Read() {
			w.Logger().Debug("Runtime status",
				"goroutines", s.Goroutines,
				"heapAlloc", s.HeapAlloc,
				"numGC", s.NumGC,
			)
		}
	})))

	app.Observe(host.World(), func(w *app.World, s signals.Shutdown) error {
		w.Logger().Info("Shutdown requested", "signal", s.Signal)
		w.RequestExit()
		return nil
	})

	if limit > 0 {
		host.AddSystems(app.Last, app.Named("tick.limit", app.SystemFunc(func(w *app.World) {
			if w.Tick() >= limit {
				w.RequestExit()
			}
		})))
	}
}

// uploadJournal sends the exported journal to the collector when uploads
// are enabled and the backend produced a file.
func uploadJournal(backend storage.Backend, start time.Time, records uint64, logger *slog.Logger) error {
	uploadCfg := config.GetUploadConfig()
	if !uploadCfg.Enabled {
		return nil
	}
	exp, ok := backend.(storage.Exportable)
	if !ok || exp.ExportedFilePath() == "" {
		logger.Info("Nothing to upload", "reason", "storage backend produced no export")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := api.New(uploadCfg.URL, uploadCfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		logger.Error("Collector is unreachable, keeping journal locally", "path", exp.ExportedFilePath(), "error", err)
		return fmt.Errorf("journal upload skipped: %w", err)
	}

	host, _ := os.Hostname()
	meta := api.UploadMetadata{
		Host:      host,
		Records:   records,
		StartedAt: start,
		EndedAt:   time.Now().UTC(),
	}
	if err := client.Upload(ctx, exp.ExportedFilePath(), meta); err != nil {
		logger.Error("Failed to upload journal", "path", exp.ExportedFilePath(), "error", err)
		return err
	}
	logger.Info("Journal uploaded", "path", exp.ExportedFilePath(), "url", uploadCfg.URL)
	return nil
}
