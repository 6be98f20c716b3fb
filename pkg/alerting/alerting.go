package alerting

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/redis"
	"github.com/backingwatch/backingx/pkg/utils"
)

// Channel carries alert payloads to whatever is listening (on-call relay,
// dashboard, nothing at all in development).
const Channel = "backingx:alerts"

// Alerter reports per-identifier failures out of band. Fire-and-forget: an
// implementation never returns an error into the pipeline.
type Alerter interface {
	ReportFailure(ctx context.Context, subject string, err error)
}

// HealthChecker is implemented by alerters with an external dependency;
// readiness probes consult it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// New picks the alerter for this process. DEV_MODE degrades to log-only;
// otherwise alerts go to Redis pub/sub, falling back to log-only when Redis
// is unreachable at startup.
func New(ctx context.Context, logger *zap.Logger) Alerter {
	if utils.EnvBool("DEV_MODE", false) {
		logger.Info("DEV_MODE set, alerts are log-only")
		return &LogAlerter{logger: logger}
	}
	client, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Warn("Redis unavailable, alerts are log-only", zap.Error(err))
		return &LogAlerter{logger: logger}
	}
	return &RedisAlerter{logger: logger, client: client}
}

// LogAlerter writes alerts to the process log only.
type LogAlerter struct {
	logger *zap.Logger
}

func (a *LogAlerter) ReportFailure(_ context.Context, subject string, err error) {
	a.logger.Error("Alert",
		zap.String("subject", subject),
		zap.Error(err))
}

// RedisAlerter publishes alerts to the alerts channel, best-effort, and
// always logs them too.
type RedisAlerter struct {
	logger *zap.Logger
	client *redis.Client
}

type payload struct {
	Subject   string    `json:"subject"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *RedisAlerter) ReportFailure(ctx context.Context, subject string, err error) {
	a.logger.Error("Alert",
		zap.String("subject", subject),
		zap.Error(err))

	body, marshalErr := json.Marshal(payload{
		Subject:   subject,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
	if marshalErr != nil {
		a.logger.Warn("Failed to encode alert", zap.Error(marshalErr))
		return
	}
	a.client.Publish(ctx, Channel, body)
}

// Health reports whether the alert channel is reachable.
func (a *RedisAlerter) Health(ctx context.Context) error {
	return a.client.Health(ctx)
}

// Close releases the Redis connection when the alerter owns one.
func (a *RedisAlerter) Close() error {
	return a.client.Close()
}
