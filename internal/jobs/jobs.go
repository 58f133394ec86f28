package jobs

import (
	"context"

	"anoa.com/marketchat/internal/entity"
	"go.uber.org/zap"
)

// IdempotencyPurger deletes expired message idempotency records.
type IdempotencyPurger interface {
	PurgeExpiredIdempotencyKeys(ctx context.Context) (int64, error)
}

// DigestSender enqueues email digests for one frequency.
type DigestSender interface {
	SendDigests(ctx context.Context, frequency entity.EmailFrequency) (int, error)
}

type idempotencyPurgeJob struct {
	purger IdempotencyPurger
	logger *zap.Logger
}

func NewIdempotencyPurgeJob(purger IdempotencyPurger, logger *zap.Logger) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &idempotencyPurgeJob{purger: purger, logger: logger}
}

func (j *idempotencyPurgeJob) Name() string     { return "idempotency-purge" }
func (j *idempotencyPurgeJob) Schedule() string { return "0 * * * *" }

func (j *idempotencyPurgeJob) Run(ctx context.Context) error {
	n, err := j.purger.PurgeExpiredIdempotencyKeys(ctx)
	if err != nil {
		return err
	}
	j.logger.Info("purged idempotency keys", zap.Int64("deleted", n))
	return nil
}

type digestJob struct {
	sender    DigestSender
	frequency entity.EmailFrequency
	schedule  string
	logger    *zap.Logger
}

// NewDigestJobs returns the daily (08:00) and weekly (Monday 08:00) digest
// jobs.
func NewDigestJobs(sender DigestSender, logger *zap.Logger) []Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return []Job{
		&digestJob{sender: sender, frequency: entity.EmailDaily, schedule: "0 8 * * *", logger: logger},
		&digestJob{sender: sender, frequency: entity.EmailWeekly, schedule: "0 8 * * 1", logger: logger},
	}
}

func (j *digestJob) Name() string     { return "email-digest-" + string(j.frequency) }
func (j *digestJob) Schedule() string { return j.schedule }

func (j *digestJob) Run(ctx context.Context) error {
	sent, err := j.sender.SendDigests(ctx, j.frequency)
	if err != nil {
		return err
	}
	j.logger.Info("email digests enqueued", zap.String("frequency", string(j.frequency)), zap.Int("sent", sent))
	return nil
}
