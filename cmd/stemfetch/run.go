package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"stemfetch/internal/core/domain"
	"stemfetch/internal/core/ports"
	"stemfetch/internal/core/services"
	"stemfetch/internal/infrastructure/chunknet"
	"stemfetch/internal/infrastructure/console"
	"stemfetch/internal/infrastructure/decode"
	"stemfetch/internal/infrastructure/metadata"
	"stemfetch/internal/infrastructure/monitoring"
	"stemfetch/internal/infrastructure/tracksink"
	"stemfetch/pkg/config"
	"stemfetch/pkg/logger"
	"stemfetch/pkg/retry"
	"stemfetch/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

func run(ctx context.Context, recordingID, accessKey string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if outputDir != "" {
		cfg.Output.Directory = outputDir
	}
	if maxParallel > 0 {
		cfg.Ingest.MaxParallel = maxParallel
	}

	runID := uuid.New().String()

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar().With("run_id", runID)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("tracing shutdown", "error", err)
		}
	}()

	ctx, span := tracing.TraceRun(ctx, recordingID, runID)
	defer span.End()

	rec := domain.Recording{ID: domain.RecordingID(recordingID), Key: accessKey}
	log.Infow("starting ingestion", "recording", rec.ID)

	api := metadata.NewClient(cfg.Remote.APIURL, retry.DefaultConfig(), log)
	users, err := api.RecordingUsers(ctx, rec)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		log.Infow("recording has no tracks", "recording", rec.ID)
		return nil
	}

	descriptors := domain.DescriptorsFromUsers(users)

	sink, err := tracksink.NewWAVSink(cfg.Output.Directory, log)
	if err != nil {
		return err
	}

	jobs := make([]services.TrackJob, 0, len(descriptors))
	for _, desc := range descriptors {
		handle, err := sink.NewTrack(desc.Name)
		if err != nil {
			return fmt.Errorf("prepare track %d (%s): %w", desc.Index, desc.Name, err)
		}
		jobs = append(jobs, services.TrackJob{Desc: desc, Handle: handle})
	}

	progress := services.NewProgressTable(descriptors, console.NewRenderer(), cfg.Progress.RendersPerSecond)

	var metrics *monitoring.IngestCollector
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewIngestCollector()
		debug := monitoring.NewServer(cfg.Monitoring.Address, progress, log)
		debug.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := debug.Shutdown(shutdownCtx); err != nil {
				log.Warnw("debug server shutdown", "error", err)
			}
		}()
	}

	dialer := chunknet.NewDialer(chunknet.DialerConfig{
		SocketURL:        cfg.Remote.SocketURL,
		HandshakeTimeout: cfg.Remote.HandshakeTimeout,
		WriteTimeout:     cfg.Remote.WriteTimeout,
		QueueDepth:       cfg.Ingest.QueueDepth,
	}, collectorOrNop(metrics), log)

	decoder := decode.NewFactory(decode.Options{
		PrimeBytes:  cfg.Ingest.PrimeBytes,
		PacketBatch: cfg.Ingest.PacketBatch,
		Logger:      log,
	})

	loader := services.NewLoader(rec, dialer, decoder, progress, collectorOrNop(metrics), log)
	scheduler := services.NewScheduler(loader, cfg.Ingest.MaxParallel, log)

	if err := scheduler.RunAll(ctx, jobs); err != nil {
		for _, e := range multierr.Errors(err) {
			if le, ok := domain.AsLoadError(e); ok {
				fmt.Printf("track %d (%s) failed: %s: %v\n", le.Track, le.Name, le.Kind, le.Err)
			} else {
				fmt.Printf("track failed: %v\n", e)
			}
		}
		return fmt.Errorf("%d of %d tracks failed", len(multierr.Errors(err)), len(jobs))
	}

	log.Infow("ingestion finished", "recording", rec.ID, "tracks", len(jobs))
	return nil
}

// collectorOrNop keeps a typed nil from sneaking into an interface value.
func collectorOrNop(c *monitoring.IngestCollector) ports.Metrics {
	if c == nil {
		return ports.NopMetrics{}
	}
	return c
}
