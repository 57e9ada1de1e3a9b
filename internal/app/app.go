// Package app wires the Export Coordinator and its subsystems together
// from a loaded Config, mirroring the teacher's internal/app.Run entry
// point: read config, connect to infrastructure, run.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlas-health/atlas/internal/anonymize"
	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/batch"
	"github.com/atlas-health/atlas/internal/config"
	"github.com/atlas-health/atlas/internal/export"
	"github.com/atlas-health/atlas/internal/ids"
	"github.com/atlas-health/atlas/internal/notify"
	"github.com/atlas-health/atlas/internal/obslog"
	"github.com/atlas-health/atlas/internal/platform"
	"github.com/atlas-health/atlas/internal/sourceclient"
	"github.com/atlas-health/atlas/internal/targetstore/factory"
	"github.com/atlas-health/atlas/internal/transform"
	"github.com/atlas-health/atlas/internal/watermark"
)

// Run loads infrastructure clients from cfg, builds the Export Coordinator,
// and drives one full export pass. The returned error is set only for
// failures that are fatal to the run (§4.8/§7): everything else is folded
// into the returned Summary.
func Run(ctx context.Context, cfg *config.Config) (export.Summary, error) {
	logger := obslog.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting atlas export",
		"target", cfg.Target.Target,
		"mode", cfg.Export.Mode,
		"dry_run", cfg.Export.DryRun,
	)

	source, err := sourceclient.New(cfg.OpenEhr, logger)
	if err != nil {
		return export.Summary{}, err
	}
	if err := source.Authenticate(ctx); err != nil {
		return export.Summary{}, atlaserrors.Wrap(atlaserrors.SourceAuth, err, "authenticating to source")
	}

	targetBackend, err := factory.New(ctx, cfg.Target)
	if err != nil {
		return export.Summary{}, err
	}
	defer func() {
		if err := targetBackend.Close(ctx); err != nil {
			logger.Warn("closing target store", "error", err)
		}
	}()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		client, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, watermark store will run without cache or distributed locking", "error", err)
		} else {
			rdb = client
			defer func() {
				if err := rdb.Close(); err != nil {
					logger.Warn("closing redis", "error", err)
				}
			}()
		}
	}
	watermarks := watermark.NewCachedStore(targetBackend.Watermark, rdb, logger)

	anonEngine, err := anonymize.NewEngine(cfg.Anonymization)
	if err != nil {
		return export.Summary{}, err
	}

	transformer := transform.New(cfg.Export.CompositionFormat, cfg.Export.EnableChecksum, cfg.Export.AtlasVersion, cfg.Export.Mode)
	processor := batch.New(transformer, anonEngine, targetBackend.Store, watermarks, cfg.Export.DryRun, logger)

	templateIDs, err := parseTemplateIDs(cfg.OpenEhr.TemplateIDs)
	if err != nil {
		return export.Summary{}, err
	}
	subjectIDs, err := parseSubjectIDs(cfg.OpenEhr.SubjectIDs)
	if err != nil {
		return export.Summary{}, err
	}

	notifier := notify.NewSlackNotifier(cfg.Notification.SlackBotToken, cfg.Notification.SlackChannel, logger)

	shutdown := export.NewShutdown()

	// The coordinator runs against a context detached from ctx's
	// cancellation: interruption is communicated through the shutdown
	// watcher (checked at defined checkpoints, §5), not by aborting
	// in-flight calls. A hard cancellation only follows if the grace
	// period in shutdown_timeout_secs elapses with the coordinator still
	// unwinding.
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal observed, coordinator will unwind at the next checkpoint")
		shutdown.Trigger()

		timer := time.NewTimer(cfg.Export.ShutdownTimeout())
		defer timer.Stop()
		select {
		case <-timer.C:
			logger.Warn("shutdown grace period elapsed, cancelling outstanding operations")
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	coordinator := export.New(export.Params{
		Source:           source,
		Store:            targetBackend.Store,
		Watermarks:       watermarks,
		Processor:        processor,
		TemplateIDs:      templateIDs,
		SubjectIDs:       subjectIDs,
		Incremental:      cfg.Export.Mode != "full",
		BatchSize:        cfg.Export.BatchSize,
		ParallelSubjects: cfg.Export.ParallelSubjects,
		DryRun:           cfg.Export.DryRun,
		VerifyEnabled:    cfg.Verification.Enabled,
		Notifier:         notifier,
		Logger:           logger,
		Shutdown:         shutdown,
	})

	summary, err := coordinator.Run(runCtx)
	if err != nil {
		return summary, err
	}

	logger.Info("atlas export finished",
		"subjects", summary.SubjectsProcessed,
		"compositions", summary.CompositionsTotal,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"interrupted", summary.Interrupted,
		"duration", summary.Duration,
	)
	return summary, nil
}

func parseTemplateIDs(raw []string) ([]ids.TemplateId, error) {
	out := make([]ids.TemplateId, 0, len(raw))
	for _, v := range raw {
		tid, err := ids.NewTemplateId(v)
		if err != nil {
			return nil, err
		}
		out = append(out, tid)
	}
	return out, nil
}

func parseSubjectIDs(raw []string) ([]ids.SubjectId, error) {
	out := make([]ids.SubjectId, 0, len(raw))
	for _, v := range raw {
		sid, err := ids.NewSubjectId(v)
		if err != nil {
			return nil, err
		}
		out = append(out, sid)
	}
	return out, nil
}
