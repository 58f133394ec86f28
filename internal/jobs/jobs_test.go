package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"anoa.com/marketchat/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls int
	err   error
}

func (f *fakePurger) PurgeExpiredIdempotencyKeys(context.Context) (int64, error) {
	f.calls++
	return 3, f.err
}

type fakeDigests struct {
	mu    sync.Mutex
	freqs []entity.EmailFrequency
}

func (f *fakeDigests) SendDigests(_ context.Context, freq entity.EmailFrequency) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freqs = append(f.freqs, freq)
	return 1, nil
}

func TestSchedulerRegistersAndRunsJobs(t *testing.T) {
	s := NewScheduler(nil, time.Second)
	purger := &fakePurger{}
	digests := &fakeDigests{}

	require.NoError(t, s.Register(NewIdempotencyPurgeJob(purger, nil)))
	for _, job := range NewDigestJobs(digests, nil) {
		require.NoError(t, s.Register(job))
	}
	assert.Equal(t, []string{"idempotency-purge", "email-digest-daily", "email-digest-weekly"}, s.Jobs())

	require.NoError(t, s.RunByName(context.Background(), "idempotency-purge"))
	assert.Equal(t, 1, purger.calls)

	require.NoError(t, s.RunByName(context.Background(), "email-digest-weekly"))
	assert.Equal(t, []entity.EmailFrequency{entity.EmailWeekly}, digests.freqs)

	assert.Error(t, s.RunByName(context.Background(), "missing"))

	purger.err = errors.New("db down")
	assert.ErrorContains(t, s.RunByName(context.Background(), "idempotency-purge"), "db down")
}

type badJob struct{}

func (badJob) Name() string              { return "bad" }
func (badJob) Schedule() string          { return "every tuesday" }
func (badJob) Run(context.Context) error { return nil }

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	s := NewScheduler(nil, time.Second)
	assert.Error(t, s.Register(badJob{}))
	assert.Empty(t, s.Jobs())
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(nil, time.Second)
	require.NoError(t, s.Register(NewIdempotencyPurgeJob(&fakePurger{}, nil)))
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
