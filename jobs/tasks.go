package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRegistryReloadCheck compares the data file fingerprint with the last
	// announced one and tells the servers to reload when it moved.
	TaskRegistryReloadCheck = "registry:reload_check"

	reloadUniqueTTL = time.Minute
)

// RegistryReloadPayload carries options for a reload check.
type RegistryReloadPayload struct {
	Force bool `json:"force"`
}

// NewRegistryReloadTask builds a reload check task. Unforced checks are
// unique for a minute so cron and manual triggers do not pile up.
func NewRegistryReloadTask(force bool) (*asynq.Task, error) {
	body, err := json.Marshal(RegistryReloadPayload{Force: force})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(time.Minute)}
	if !force {
		opts = append(opts, asynq.Unique(reloadUniqueTTL))
	}
	return asynq.NewTask(TaskRegistryReloadCheck, body, opts...), nil
}
