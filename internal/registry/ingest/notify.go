package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	reloadChannel  = "registry.reload"
	fingerprintKey = "registry:fingerprint"
)

// Notifier coordinates reloads between the worker and server processes over
// Redis. The worker publishes when the data file changes; servers listen and
// reload their own snapshot.
type Notifier struct {
	client *redis.Client
	logger *slog.Logger
}

// NewNotifier builds a notifier on client.
func NewNotifier(client *redis.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, logger: logger}
}

// LastFingerprint returns the fingerprint recorded by the previous check.
func (n *Notifier) LastFingerprint(ctx context.Context) (Fingerprint, bool, error) {
	raw, err := n.client.Get(ctx, fingerprintKey).Bytes()
	if err == redis.Nil {
		return Fingerprint{}, false, nil
	}
	if err != nil {
		return Fingerprint{}, false, err
	}
	var fp Fingerprint
	if err := json.Unmarshal(raw, &fp); err != nil {
		return Fingerprint{}, false, err
	}
	return fp, true, nil
}

// Publish records fp and announces a reload.
func (n *Notifier) Publish(ctx context.Context, fp Fingerprint) error {
	raw, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	if err := n.client.Set(ctx, fingerprintKey, raw, 0).Err(); err != nil {
		return err
	}
	return n.client.Publish(ctx, reloadChannel, raw).Err()
}

// Listen reloads store whenever a reload is announced, until ctx ends.
func (n *Notifier) Listen(ctx context.Context, store *Store) error {
	pubsub := n.client.Subscribe(ctx, reloadChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				reloaded, err := store.ReloadIfChanged(ctx)
				if err != nil {
					n.logger.Error("registry reload failed", slog.Any("error", err))
					continue
				}
				if reloaded {
					n.logger.Info("registry reloaded on notification")
				}
			}
		}
	}()
	return nil
}
