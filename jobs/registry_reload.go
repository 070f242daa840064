package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tradeboard/tradeboard/internal/jobs"
	"github.com/tradeboard/tradeboard/internal/registry/ingest"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// FingerprintNotifier records and announces data file versions.
type FingerprintNotifier interface {
	LastFingerprint(ctx context.Context) (ingest.Fingerprint, bool, error)
	Publish(ctx context.Context, fp ingest.Fingerprint) error
}

// RegistryReloadJob watches the configured data file for changes.
type RegistryReloadJob struct {
	Path     string
	Notifier FingerprintNotifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	stat     func(string) (ingest.Fingerprint, error)
}

// NewRegistryReloadJob wires dependencies for the reload check handler.
func NewRegistryReloadJob(path string, notifier FingerprintNotifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *RegistryReloadJob {
	return &RegistryReloadJob{
		Path:     path,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		stat:     ingest.Stat,
	}
}

// Handle processes TaskRegistryReloadCheck tasks.
func (j *RegistryReloadJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Notifier == nil {
		return errors.New("registry reload: handler not configured")
	}
	var payload RegistryReloadPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskRegistryReloadCheck)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("path", j.Path), slog.Bool("force", payload.Force))
	if j.Path == "" {
		logger.Debug("no data file configured, skipping reload check")
		return nil
	}

	fp, err := j.stat(j.Path)
	if err != nil {
		logger.Error("stat data file", slog.Any("error", err))
		return err
	}
	last, seen, err := j.Notifier.LastFingerprint(ctx)
	if err != nil {
		logger.Error("read last fingerprint", slog.Any("error", err))
		return err
	}
	if seen && !last.Changed(fp) && !payload.Force {
		return nil
	}
	if err := j.Notifier.Publish(ctx, fp); err != nil {
		logger.Error("announce reload", slog.Any("error", err))
		return err
	}
	j.metrics().FileChanged()
	logger.Info("registry data file changed, reload announced",
		slog.Int64("size", fp.Size),
		slog.Time("mod_time", fp.ModTime))
	return nil
}

func (j *RegistryReloadJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RegistryReloadJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
